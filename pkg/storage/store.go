package storage

import "driftshare.io/driftshare/pkg/types"

// Store is the transactional persistence surface for every entity in
// pkg/types. Both engines (embedded, server) implement the same interface;
// callers never branch on which one they hold.
type Store interface {
	// Folders
	CreateFolder(f *types.Folder) error
	GetFolder(id string) (*types.Folder, error)
	GetFolderByPath(path string) (*types.Folder, error)
	ListFolders() ([]*types.Folder, error)
	UpdateFolder(f *types.Folder) error
	DeleteFolder(id string) error // cascades to files, their segments, and shares; articles, packed segments and commitments are kept

	// Files
	CreateFile(f *types.File) error
	UpsertFile(f *types.File) error
	GetFile(id string) (*types.File, error)
	GetLatestFileByPath(folderID, path string) (*types.File, error)
	ListFilesByFolder(folderID string) ([]*types.File, error)
	BulkInsertFiles(files []*types.File) error
	// ScanFiles streams rows for folderID to fn in batches of batchSize,
	// bounding memory for folders with millions of file rows.
	ScanFiles(folderID string, batchSize int, fn func(batch []*types.File) error) error
	DeleteFile(id string) error

	// Segments
	CreateSegment(s *types.Segment) error
	BulkInsertSegments(segs []*types.Segment) error
	GetSegment(id string) (*types.Segment, error)
	ListSegmentsByFile(fileID string) ([]*types.Segment, error)
	ListSegmentsByPackedSegment(packedID string) ([]*types.Segment, error)
	UpdateSegment(s *types.Segment) error
	DeleteSegmentsByFile(fileID string) error

	// PackedSegments
	CreatePackedSegment(p *types.PackedSegment) error
	GetPackedSegment(id string) (*types.PackedSegment, error)
	UpdatePackedSegment(p *types.PackedSegment) error

	// Shares
	CreateShare(s *types.Share) error
	GetShare(id string) (*types.Share, error)
	ListShares() ([]*types.Share, error)
	ListSharesByFolder(folderID string) ([]*types.Share, error)
	UpdateShare(s *types.Share) error
	DeleteShare(id string) error

	// MemberCommitments
	PutCommitment(c *types.MemberCommitment) error
	GetCommitment(shareID, userID string) (*types.MemberCommitment, error)
	ListCommitments(shareID string) ([]*types.MemberCommitment, error)

	// Articles
	CreateArticle(a *types.Article) error
	GetArticle(messageID string) (*types.Article, error)

	// Jobs
	CreateJob(j *types.Job) error
	GetJob(id string) (*types.Job, error)
	ListJobsByState(state types.JobState) ([]*types.Job, error)
	UpdateJob(j *types.Job) error
	DeleteJob(id string) error

	// WithTx runs fn inside one write transaction. Calls to WithTx may
	// nest (savepoint-style): an inner call shares the outer transaction
	// and only the outermost commit is durable, matching spec for nested
	// transactions via savepoints on engines without native savepoints.
	WithTx(fn func(tx Tx) error) error

	// SlowQueries returns the most recent slow-query records, most recent
	// first, per the last-100 ring buffer requirement.
	SlowQueries() []SlowQuery

	Close() error
}

// Tx is the transactional handle passed into WithTx callbacks. It exposes
// the same entity operations as Store; engines implement it by binding the
// outer Store's methods to the open transaction.
type Tx interface {
	Store
}

// SlowQuery records one operation that exceeded the slow-query threshold.
type SlowQuery struct {
	Operation string
	Duration  string
	At        string
}
