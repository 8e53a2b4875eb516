package storage

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"driftshare.io/driftshare/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketFolders     = []byte("folders")
	bucketFiles       = []byte("files")
	bucketSegments    = []byte("segments")
	bucketPackedSegs  = []byte("packed_segments")
	bucketShares      = []byte("shares")
	bucketCommitments = []byte("commitments")
	bucketArticles    = []byte("articles")
	bucketJobs        = []byte("jobs")

	// secondary indexes, keyed by derived string -> primary id
	idxFolderByPath  = []byte("idx_folder_path")
	idxFilesByFolder = []byte("idx_files_by_folder") // folderID/path -> latest file id
)

const slowQueryThreshold = time.Second
const slowQueryRingSize = 100

// BoltStore implements Store against a single embedded bbolt database file,
// matching the on-disk layout described in spec §6 (single file, WAL-style
// durability via bbolt's own fsync policy, 256 MiB initial mmap).
type BoltStore struct {
	db *bolt.DB

	stateMu sync.Mutex // guards txDepth/curTx below
	txMu    sync.Mutex // held for the lifetime of an outermost WithTx
	txDepth int
	curTx   *bolt.Tx

	slowMu sync.Mutex
	slow   []SlowQuery
}

// NewBoltStore opens (creating if absent) the embedded database under dataDir.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "driftshare.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{
		Timeout:         5 * time.Second,
		InitialMmapSize: 256 << 20,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketFolders, bucketFiles, bucketSegments, bucketPackedSegs,
			bucketShares, bucketCommitments, bucketArticles, bucketJobs,
			idxFolderByPath, idxFilesByFolder,
		}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

// update runs fn against the currently open transaction if WithTx has one
// in flight on this goroutine, otherwise opens a short-lived one. Nested
// WithTx calls therefore share a single bbolt transaction — bbolt has no
// native savepoints, so "nested transaction" here means "joins the
// in-flight one"; only the outermost WithTx commits or rolls back.
func (s *BoltStore) update(fn func(tx *bolt.Tx) error) error {
	start := time.Now()
	var err error
	s.stateMu.Lock()
	cur := s.curTx
	s.stateMu.Unlock()
	if cur != nil {
		err = fn(cur)
	} else {
		err = s.db.Update(fn)
	}
	s.recordIfSlow("write", start)
	return err
}

func (s *BoltStore) view(fn func(tx *bolt.Tx) error) error {
	start := time.Now()
	s.stateMu.Lock()
	cur := s.curTx
	s.stateMu.Unlock()
	var err error
	if cur != nil {
		err = fn(cur)
	} else {
		err = s.db.View(fn)
	}
	s.recordIfSlow("read", start)
	return err
}

func (s *BoltStore) recordIfSlow(op string, start time.Time) {
	d := time.Since(start)
	if d < slowQueryThreshold {
		return
	}
	s.slowMu.Lock()
	defer s.slowMu.Unlock()
	s.slow = append(s.slow, SlowQuery{Operation: op, Duration: d.String(), At: time.Now().Format(time.RFC3339)})
	if len(s.slow) > slowQueryRingSize {
		s.slow = s.slow[len(s.slow)-slowQueryRingSize:]
	}
}

func (s *BoltStore) SlowQueries() []SlowQuery {
	s.slowMu.Lock()
	defer s.slowMu.Unlock()
	out := make([]SlowQuery, len(s.slow))
	for i, q := range s.slow {
		out[len(s.slow)-1-i] = q
	}
	return out
}

// WithTx implements the savepoint-style nesting described on Store.
func (s *BoltStore) WithTx(fn func(tx Tx) error) error {
	s.stateMu.Lock()
	depth := s.txDepth
	s.stateMu.Unlock()

	if depth == 0 {
		s.txMu.Lock()
		defer s.txMu.Unlock()

		tx, err := s.db.Begin(true)
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}
		s.stateMu.Lock()
		s.curTx = tx
		s.txDepth = 1
		s.stateMu.Unlock()

		err = fn(s)

		s.stateMu.Lock()
		s.txDepth = 0
		s.curTx = nil
		s.stateMu.Unlock()

		if err != nil {
			_ = tx.Rollback()
			return err
		}
		return tx.Commit()
	}

	s.stateMu.Lock()
	s.txDepth++
	s.stateMu.Unlock()
	err := fn(s)
	s.stateMu.Lock()
	s.txDepth--
	s.stateMu.Unlock()
	return err
}

func put(b *bolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

// --- Folders ---

func (s *BoltStore) CreateFolder(f *types.Folder) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFolders)
		if b.Get([]byte(f.ID)) != nil {
			return fmt.Errorf("%w: folder %s already exists", ErrAlreadyExists, f.ID)
		}
		if err := put(b, f.ID, f); err != nil {
			return err
		}
		return tx.Bucket(idxFolderByPath).Put([]byte(f.Path), []byte(f.ID))
	})
}

func (s *BoltStore) GetFolder(id string) (*types.Folder, error) {
	var f types.Folder
	err := s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFolders).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: folder %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &f)
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *BoltStore) GetFolderByPath(path string) (*types.Folder, error) {
	var id string
	err := s.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(idxFolderByPath).Get([]byte(path))
		if v == nil {
			return fmt.Errorf("%w: folder path %s", ErrNotFound, path)
		}
		id = string(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetFolder(id)
}

func (s *BoltStore) ListFolders() ([]*types.Folder, error) {
	var out []*types.Folder
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFolders).ForEach(func(k, v []byte) error {
			var f types.Folder
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			out = append(out, &f)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateFolder(f *types.Folder) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFolders)
		existing := b.Get([]byte(f.ID))
		if existing == nil {
			return fmt.Errorf("%w: folder %s", ErrNotFound, f.ID)
		}
		var prev types.Folder
		if err := json.Unmarshal(existing, &prev); err != nil {
			return err
		}
		if prev.Path != f.Path {
			// the folder identifier is fixed, but the path may legitimately
			// move; keep the path index consistent rather than reject it.
			if err := tx.Bucket(idxFolderByPath).Delete([]byte(prev.Path)); err != nil {
				return err
			}
			if err := tx.Bucket(idxFolderByPath).Put([]byte(f.Path), []byte(f.ID)); err != nil {
				return err
			}
		}
		return put(b, f.ID, f)
	})
}

func (s *BoltStore) DeleteFolder(id string) error {
	return s.WithTx(func(tx Tx) error {
		files, err := s.ListFilesByFolder(id)
		if err != nil {
			return err
		}
		for _, f := range files {
			if err := s.DeleteFile(f.ID); err != nil {
				return err
			}
		}
		shares, err := s.ListSharesByFolder(id)
		if err != nil {
			return err
		}
		for _, sh := range shares {
			if err := s.DeleteShare(sh.ID); err != nil {
				return err
			}
		}
		return s.update(func(btx *bolt.Tx) error {
			b := btx.Bucket(bucketFolders)
			data := b.Get([]byte(id))
			if data != nil {
				var f types.Folder
				if err := json.Unmarshal(data, &f); err == nil {
					_ = btx.Bucket(idxFolderByPath).Delete([]byte(f.Path))
				}
			}
			return b.Delete([]byte(id))
		})
	})
}

// --- Files ---

func fileIndexKey(folderID, path string) string { return folderID + "\x00" + path }

func (s *BoltStore) CreateFile(f *types.File) error {
	return s.upsertFile(f)
}

func (s *BoltStore) UpsertFile(f *types.File) error {
	return s.upsertFile(f)
}

func (s *BoltStore) upsertFile(f *types.File) error {
	return s.update(func(tx *bolt.Tx) error {
		if err := put(tx.Bucket(bucketFiles), f.ID, f); err != nil {
			return err
		}
		idx := tx.Bucket(idxFilesByFolder)
		key := fileIndexKey(f.FolderID, f.Path)
		cur := idx.Get([]byte(key))
		if cur == nil {
			return idx.Put([]byte(key), []byte(f.ID))
		}
		var existing types.File
		data := tx.Bucket(bucketFiles).Get(cur)
		if data != nil {
			if err := json.Unmarshal(data, &existing); err == nil && existing.Version > f.Version {
				return nil // index already points at a newer version
			}
		}
		return idx.Put([]byte(key), []byte(f.ID))
	})
}

func (s *BoltStore) GetFile(id string) (*types.File, error) {
	var f types.File
	err := s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketFiles).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: file %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &f)
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *BoltStore) GetLatestFileByPath(folderID, path string) (*types.File, error) {
	var id string
	err := s.view(func(tx *bolt.Tx) error {
		v := tx.Bucket(idxFilesByFolder).Get([]byte(fileIndexKey(folderID, path)))
		if v == nil {
			return fmt.Errorf("%w: file %s/%s", ErrNotFound, folderID, path)
		}
		id = string(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetFile(id)
}

func (s *BoltStore) ListFilesByFolder(folderID string) ([]*types.File, error) {
	var out []*types.File
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(k, v []byte) error {
			var f types.File
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			if f.FolderID == folderID {
				out = append(out, &f)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) BulkInsertFiles(files []*types.File) error {
	return s.WithTx(func(tx Tx) error {
		for _, f := range files {
			if err := s.upsertFile(f); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) ScanFiles(folderID string, batchSize int, fn func(batch []*types.File) error) error {
	if batchSize <= 0 {
		batchSize = 1000
	}
	batch := make([]*types.File, 0, batchSize)
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(k, v []byte) error {
			var f types.File
			if err := json.Unmarshal(v, &f); err != nil {
				return err
			}
			if f.FolderID != folderID {
				return nil
			}
			batch = append(batch, &f)
			if len(batch) >= batchSize {
				if err := fn(batch); err != nil {
					return err
				}
				batch = batch[:0]
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	if len(batch) > 0 {
		return fn(batch)
	}
	return nil
}

func (s *BoltStore) DeleteFile(id string) error {
	return s.WithTx(func(tx Tx) error {
		if err := s.DeleteSegmentsByFile(id); err != nil {
			return err
		}
		return s.update(func(btx *bolt.Tx) error {
			b := btx.Bucket(bucketFiles)
			data := b.Get([]byte(id))
			if data != nil {
				var f types.File
				if err := json.Unmarshal(data, &f); err == nil {
					key := []byte(fileIndexKey(f.FolderID, f.Path))
					idx := btx.Bucket(idxFilesByFolder)
					if string(idx.Get(key)) == id {
						_ = idx.Delete(key)
					}
				}
			}
			return b.Delete([]byte(id))
		})
	})
}

// --- Segments ---

func (s *BoltStore) CreateSegment(seg *types.Segment) error {
	return s.update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketSegments), seg.ID, seg)
	})
}

func (s *BoltStore) BulkInsertSegments(segs []*types.Segment) error {
	return s.WithTx(func(tx Tx) error {
		for _, seg := range segs {
			if err := s.CreateSegment(seg); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) GetSegment(id string) (*types.Segment, error) {
	var seg types.Segment
	err := s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSegments).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: segment %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &seg)
	})
	if err != nil {
		return nil, err
	}
	return &seg, nil
}

func (s *BoltStore) ListSegmentsByFile(fileID string) ([]*types.Segment, error) {
	var out []*types.Segment
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSegments).ForEach(func(k, v []byte) error {
			var seg types.Segment
			if err := json.Unmarshal(v, &seg); err != nil {
				return err
			}
			if seg.FileID == fileID {
				out = append(out, &seg)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListSegmentsByPackedSegment(packedID string) ([]*types.Segment, error) {
	var out []*types.Segment
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSegments).ForEach(func(k, v []byte) error {
			var seg types.Segment
			if err := json.Unmarshal(v, &seg); err != nil {
				return err
			}
			if seg.PackedSegmentID == packedID {
				out = append(out, &seg)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateSegment(seg *types.Segment) error {
	return s.CreateSegment(seg)
}

func (s *BoltStore) DeleteSegmentsByFile(fileID string) error {
	segs, err := s.ListSegmentsByFile(fileID)
	if err != nil {
		return err
	}
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSegments)
		for _, seg := range segs {
			if err := b.Delete([]byte(seg.ID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// --- PackedSegments ---

func (s *BoltStore) CreatePackedSegment(p *types.PackedSegment) error {
	return s.update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketPackedSegs), p.ID, p)
	})
}

func (s *BoltStore) GetPackedSegment(id string) (*types.PackedSegment, error) {
	var p types.PackedSegment
	err := s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketPackedSegs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: packed segment %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *BoltStore) UpdatePackedSegment(p *types.PackedSegment) error {
	return s.CreatePackedSegment(p)
}

// --- Shares ---

func (s *BoltStore) CreateShare(sh *types.Share) error {
	return s.update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketShares), sh.ID, sh)
	})
}

func (s *BoltStore) GetShare(id string) (*types.Share, error) {
	var sh types.Share
	err := s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketShares).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: share %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &sh)
	})
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

func (s *BoltStore) ListShares() ([]*types.Share, error) {
	var out []*types.Share
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketShares).ForEach(func(k, v []byte) error {
			var sh types.Share
			if err := json.Unmarshal(v, &sh); err != nil {
				return err
			}
			out = append(out, &sh)
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) ListSharesByFolder(folderID string) ([]*types.Share, error) {
	all, err := s.ListShares()
	if err != nil {
		return nil, err
	}
	var out []*types.Share
	for _, sh := range all {
		if sh.FolderID == folderID {
			out = append(out, sh)
		}
	}
	return out, nil
}

func (s *BoltStore) UpdateShare(sh *types.Share) error { return s.CreateShare(sh) }

func (s *BoltStore) DeleteShare(id string) error {
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketShares).Delete([]byte(id))
	})
}

// --- MemberCommitments ---

func commitmentKey(shareID, userID string) string { return shareID + "\x00" + userID }

func (s *BoltStore) PutCommitment(c *types.MemberCommitment) error {
	return s.update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketCommitments), commitmentKey(c.ShareID, c.UserID), c)
	})
}

func (s *BoltStore) GetCommitment(shareID, userID string) (*types.MemberCommitment, error) {
	var c types.MemberCommitment
	err := s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCommitments).Get([]byte(commitmentKey(shareID, userID)))
		if data == nil {
			return fmt.Errorf("%w: commitment %s/%s", ErrNotFound, shareID, userID)
		}
		return json.Unmarshal(data, &c)
	})
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *BoltStore) ListCommitments(shareID string) ([]*types.MemberCommitment, error) {
	var out []*types.MemberCommitment
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCommitments).ForEach(func(k, v []byte) error {
			var c types.MemberCommitment
			if err := json.Unmarshal(v, &c); err != nil {
				return err
			}
			if c.ShareID == shareID {
				out = append(out, &c)
			}
			return nil
		})
	})
	return out, err
}

// --- Articles ---

func (s *BoltStore) CreateArticle(a *types.Article) error {
	return s.update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketArticles)
		if b.Get([]byte(a.MessageID)) != nil {
			return fmt.Errorf("%w: article %s", ErrAlreadyExists, a.MessageID)
		}
		return put(b, a.MessageID, a)
	})
}

func (s *BoltStore) GetArticle(messageID string) (*types.Article, error) {
	var a types.Article
	err := s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketArticles).Get([]byte(messageID))
		if data == nil {
			return fmt.Errorf("%w: article %s", ErrNotFound, messageID)
		}
		return json.Unmarshal(data, &a)
	})
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// --- Jobs ---

func (s *BoltStore) CreateJob(j *types.Job) error {
	return s.update(func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketJobs), j.ID, j)
	})
}

func (s *BoltStore) GetJob(id string) (*types.Job, error) {
	var j types.Job
	err := s.view(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJobs).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: job %s", ErrNotFound, id)
		}
		return json.Unmarshal(data, &j)
	})
	if err != nil {
		return nil, err
	}
	return &j, nil
}

func (s *BoltStore) ListJobsByState(state types.JobState) ([]*types.Job, error) {
	var out []*types.Job
	err := s.view(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(k, v []byte) error {
			var j types.Job
			if err := json.Unmarshal(v, &j); err != nil {
				return err
			}
			if j.State == state {
				out = append(out, &j)
			}
			return nil
		})
	})
	return out, err
}

func (s *BoltStore) UpdateJob(j *types.Job) error { return s.CreateJob(j) }

func (s *BoltStore) DeleteJob(id string) error {
	return s.update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).Delete([]byte(id))
	})
}
