package types

import (
	"encoding/json"
	"time"
)

// Folder is a locally indexed directory tree that has been (or will be)
// published to the article network. Its identifier is generated once and
// never mutated; re-indexing bumps Version instead.
type Folder struct {
	ID                string
	Path              string
	DisplayName       string
	SigningPublicKey  []byte
	signingSeed       []byte // private half, never serialized outside the store
	contentKey        []byte // AEAD key every segment of this folder is encrypted with
	Version           int
	FileCount         int64
	TotalBytes        int64
	EncryptionEnabled bool
	RedundancyLevel   int
	TargetGroup       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// SigningSeed returns the folder's private Ed25519 seed. It is unexported
// as a field so callers go through the accessor and it stays out of any
// struct literal built from untrusted input.
func (f *Folder) SigningSeed() []byte { return f.signingSeed }

// SetSigningSeed installs the private half of the folder's signing keypair.
func (f *Folder) SetSigningSeed(seed []byte) { f.signingSeed = seed }

// ContentKey returns the key this folder's segments are encrypted with.
// publish_folder hands it to AccessControl so a share wraps the key the
// segments were actually sealed with, instead of a fresh unrelated one.
func (f *Folder) ContentKey() []byte { return f.contentKey }

// SetContentKey installs the folder's content-encryption key.
func (f *Folder) SetContentKey(key []byte) { f.contentKey = key }

// folderJSON mirrors Folder but gives the signing seed a name, so the
// store can round-trip it without the field living on the struct where a
// caller building a Folder from, say, a decoded API request could set it.
type folderJSON struct {
	ID                string
	Path              string
	DisplayName       string
	SigningPublicKey  []byte
	SigningSeed       []byte
	ContentKey        []byte
	Version           int
	FileCount         int64
	TotalBytes        int64
	EncryptionEnabled bool
	RedundancyLevel   int
	TargetGroup       string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (f *Folder) MarshalJSON() ([]byte, error) {
	return json.Marshal(folderJSON{
		ID: f.ID, Path: f.Path, DisplayName: f.DisplayName,
		SigningPublicKey: f.SigningPublicKey, SigningSeed: f.signingSeed, ContentKey: f.contentKey,
		Version: f.Version, FileCount: f.FileCount, TotalBytes: f.TotalBytes,
		EncryptionEnabled: f.EncryptionEnabled, RedundancyLevel: f.RedundancyLevel,
		TargetGroup: f.TargetGroup, CreatedAt: f.CreatedAt, UpdatedAt: f.UpdatedAt,
	})
}

func (f *Folder) UnmarshalJSON(data []byte) error {
	var aux folderJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	f.ID, f.Path, f.DisplayName = aux.ID, aux.Path, aux.DisplayName
	f.SigningPublicKey, f.signingSeed, f.contentKey = aux.SigningPublicKey, aux.SigningSeed, aux.ContentKey
	f.Version, f.FileCount, f.TotalBytes = aux.Version, aux.FileCount, aux.TotalBytes
	f.EncryptionEnabled, f.RedundancyLevel = aux.EncryptionEnabled, aux.RedundancyLevel
	f.TargetGroup, f.CreatedAt, f.UpdatedAt = aux.TargetGroup, aux.CreatedAt, aux.UpdatedAt
	return nil
}

// ChangeKind classifies a File row produced by a re-index pass.
type ChangeKind string

const (
	ChangeAdded     ChangeKind = "added"
	ChangeModified  ChangeKind = "modified"
	ChangeDeleted   ChangeKind = "deleted"
	ChangeUnchanged ChangeKind = "unchanged"
)

// File is one version of one path within a Folder. A new row is appended
// whenever the content hash changes; (FolderID, Path, Version) is unique.
type File struct {
	ID               string
	FolderID         string
	Path             string
	Size             int64
	ContentHash      string // hex SHA-256 over plaintext
	MIMEHint         string
	Version          int
	PreviousVersion  int
	ChangeKind       ChangeKind
	SegmentSize      int64
	TotalSegments    int
	UploadedSegments int
	EncryptionKeyRef string
	CreatedAt        time.Time
}

// SegmentState tracks an individual segment through the upload pipeline.
type SegmentState string

const (
	SegmentPending   SegmentState = "pending"
	SegmentUploading SegmentState = "uploading"
	SegmentUploaded  SegmentState = "uploaded"
	SegmentFailed    SegmentState = "failed"
	SegmentCancelled SegmentState = "cancelled"
)

// Segment is one ciphertext unit of a file, one-to-one with one article per
// redundancy copy. (FileID or PackedSegmentID, SegmentIndex, RedundancyIndex)
// is the natural key; (segment_id, redundancy_index) must be unique.
type Segment struct {
	ID              string
	FileID          string // empty when owned by a PackedSegment instead
	PackedSegmentID string
	SegmentIndex    int
	RedundancyIndex int
	PlaintextSize   int64
	CompressedSize  int64
	CiphertextHash  string
	OffsetStart     int64
	OffsetEnd       int64
	MessageID       string
	Subject         string
	TargetGroup     string
	Nonce           []byte
	State           SegmentState
	AttemptCount    int
	CreatedAt       time.Time
	UploadedAt      time.Time
}

// PackedSegment is one article body carrying several small files
// concatenated together. Member files reference it via Segment rows whose
// PackedSegmentID is set and whose OffsetStart/OffsetEnd mark their window.
type PackedSegment struct {
	ID              string
	FolderID        string
	TotalBytes      int64
	MemberCount     int
	CompressionType string
	MessageID       string
	CreatedAt       time.Time
}

// ShareKind records how much of a folder a share exposes. Per spec, it is
// recorded metadata only; the download path does not currently branch on it.
type ShareKind string

const (
	ShareKindFull        ShareKind = "full"
	ShareKindPartial     ShareKind = "partial"
	ShareKindIncremental ShareKind = "incremental"
)

// AccessTier selects the key-management protocol for a Share.
type AccessTier string

const (
	TierOpen       AccessTier = "open"
	TierMember     AccessTier = "member"
	TierPassphrase AccessTier = "passphrase"
)

// IndexRef points at the core index article(s) carrying a share's
// file-and-segment manifest: either one message id, or several that must be
// concatenated in order.
type IndexRef struct {
	MessageIDs []string
	Group      string
}

// Share is a published reference to a Folder at a particular version.
// The wrapped-key set is append-only until revocation.
type Share struct {
	ID                string // 24-char base32
	FolderID          string
	FolderVersion     int
	Kind              ShareKind
	Tier              AccessTier
	PassphraseSalt    []byte
	PassphraseHash    []byte            // PBKDF2-SHA256, presentation-only
	WrapSalt          []byte            // scrypt salt for tier=passphrase wrap key
	WrappedMasterKey  []byte            // tier=open and tier=passphrase
	MemberWrappedKeys map[string][]byte // user_id -> wrapped key, tier=member
	Expiry            time.Time
	Revoked           bool
	Index             IndexRef
	AllowList         []string
	DenyList          []string
	CreatedAt         time.Time
}

// MemberCommitment is one user's grant on one member-gated share.
// At most one live (non-revoked) commitment exists per (ShareID, UserID).
type MemberCommitment struct {
	ShareID        string
	UserID         string
	CommitmentHash string // hex SHA-256(share_id || user_id || user_public_key)
	WrappedKey     []byte
	Permissions    []string
	GrantedAt      time.Time
	RevokedAt      time.Time
}

// IsRevoked reports whether the commitment has been revoked.
func (c *MemberCommitment) IsRevoked() bool { return !c.RevokedAt.IsZero() }

// Article is the local, read-only-after-insert projection of a posted
// message on the article network.
type Article struct {
	MessageID string
	Group     string
	Subject   string
	Lines     int
	Server    string
	PostedAt  time.Time
}

// JobState tracks an uploader or retriever work item.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
	JobRetrying  JobState = "retrying"
	JobPaused    JobState = "paused"
)

// Job is a background work unit leased by an uploader or retriever worker.
type Job struct {
	ID           string
	Kind         string // "upload" or "download"
	EntityID     string // folder, file, or segment id being acted on
	SessionID    string
	Priority     int // 1 (highest) .. 10 (lowest)
	State        JobState
	AttemptCount int
	MaxRetries   int
	WorkerID     string
	Size         int64
	Error        string
	QueuedAt     time.Time
	UpdatedAt    time.Time
}
