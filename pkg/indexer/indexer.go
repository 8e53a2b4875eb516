// Package indexer walks a folder tree, hashes each regular file, and
// records a versioned file row: added, modified, deleted,
// or unchanged relative to the store's prior view of that folder.
package indexer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"driftshare.io/driftshare/pkg/errs"
	"driftshare.io/driftshare/pkg/events"
	"driftshare.io/driftshare/pkg/log"
	"driftshare.io/driftshare/pkg/storage"
	"driftshare.io/driftshare/pkg/types"
)

// Config tunes the walk.
type Config struct {
	Workers          int
	HashChunkSize    int
	BatchSize        int
	ProgressCount    int           // emit progress every N files...
	ProgressInterval time.Duration // ...or this often, whichever trips first
}

func DefaultConfig() Config {
	return Config{
		Workers:          8,
		HashChunkSize:    64 * 1024,
		BatchSize:        1000,
		ProgressCount:    10,
		ProgressInterval: 200 * time.Millisecond,
	}
}

// Indexer walks one folder at a time and commits file rows in bulk batches.
type Indexer struct {
	store  storage.Store
	cfg    Config
	broker *events.Broker
	newID  func() (string, error)
}

func New(store storage.Store, cfg Config, broker *events.Broker, newID func() (string, error)) *Indexer {
	return &Indexer{store: store, cfg: cfg, broker: broker, newID: newID}
}

type walkResult struct {
	path string
	size int64
	hash string
	err  error
}

// Result summarizes one Index run.
type Result struct {
	Added     int
	Modified  int
	Unchanged int
	Deleted   int
}

// Index walks folder.Path, hashes every regular file with a bounded worker
// pool, compares against the store's prior view of the folder, and commits
// file rows in bulk batches of cfg.BatchSize.
func (ix *Indexer) Index(ctx context.Context, folder *types.Folder) (Result, error) {
	logger := log.WithFolderID(folder.ID)

	prior, err := ix.store.ListFilesByFolder(folder.ID)
	if err != nil {
		return Result{}, errs.Transient("indexer.Index", err)
	}
	priorByPath := make(map[string]*types.File, len(prior))
	seen := make(map[string]bool, len(prior))
	for _, f := range prior {
		if f.ChangeKind != types.ChangeDeleted {
			priorByPath[f.Path] = f
		}
	}

	paths := make(chan string, ix.cfg.Workers*4)
	results := make(chan walkResult, ix.cfg.Workers*4)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(paths)
		return filepath.WalkDir(folder.Path, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			select {
			case paths <- path:
			case <-gctx.Done():
				return gctx.Err()
			}
			return nil
		})
	})

	var workerWG sync.WaitGroup
	for i := 0; i < ix.cfg.Workers; i++ {
		workerWG.Add(1)
		g.Go(func() error {
			defer workerWG.Done()
			for path := range paths {
				rel, relErr := filepath.Rel(folder.Path, path)
				if relErr != nil {
					rel = path
				}
				hash, size, hashErr := hashFile(path, ix.cfg.HashChunkSize)
				select {
				case results <- walkResult{path: rel, size: size, hash: hash, err: hashErr}:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}

	go func() {
		workerWG.Wait()
		close(results)
	}()

	var (
		result   Result
		batch    []*types.File
		touched  = make(map[string]bool, len(prior))
		count    int
		lastEmit = time.Now()
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ix.store.BulkInsertFiles(batch); err != nil {
			return errs.Transient("indexer.Index", err)
		}
		batch = batch[:0]
		return nil
	}

	for r := range results {
		if r.err != nil {
			logger.Warn().Str("path", r.path).Err(r.err).Msg("failed to hash file")
			continue
		}
		touched[r.path] = true

		f, kind := ix.classify(folder, r, priorByPath[r.path])
		switch kind {
		case types.ChangeAdded:
			result.Added++
		case types.ChangeModified:
			result.Modified++
		case types.ChangeUnchanged:
			result.Unchanged++
		}
		batch = append(batch, f)
		count++

		if len(batch) >= ix.cfg.BatchSize {
			if err := flush(); err != nil {
				return result, err
			}
		}

		if count%ix.cfg.ProgressCount == 0 || time.Since(lastEmit) >= ix.cfg.ProgressInterval {
			ix.emitProgress(folder.ID, count, r.path)
			lastEmit = time.Now()
		}
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return result, errs.Transient("indexer.Index", err)
	}

	for path, f := range priorByPath {
		if touched[path] {
			continue
		}
		tombstone := *f
		tombstone.ChangeKind = types.ChangeDeleted
		tombstone.PreviousVersion = f.Version
		tombstone.Version = f.Version + 1
		tombstone.TotalSegments = 0
		tombstone.UploadedSegments = 0
		batch = append(batch, &tombstone)
		result.Deleted++
	}

	if err := flush(); err != nil {
		return result, err
	}

	ix.broker.Publish(&events.Event{
		Type:    events.EventIndexCompleted,
		Message: folder.ID,
		Metadata: map[string]string{
			"added": itoa(result.Added), "modified": itoa(result.Modified),
			"unchanged": itoa(result.Unchanged), "deleted": itoa(result.Deleted),
		},
	})

	return result, nil
}

func (ix *Indexer) classify(folder *types.Folder, r walkResult, prior *types.File) (*types.File, types.ChangeKind) {
	id, _ := ix.newID()
	now := time.Now()

	if prior == nil {
		return &types.File{
			ID: id, FolderID: folder.ID, Path: r.path, Size: r.size,
			ContentHash: r.hash, Version: 1, ChangeKind: types.ChangeAdded,
			CreatedAt: now,
		}, types.ChangeAdded
	}

	if prior.ContentHash == r.hash {
		return &types.File{
			ID: prior.ID, FolderID: folder.ID, Path: r.path, Size: r.size,
			ContentHash: r.hash, Version: prior.Version, ChangeKind: types.ChangeUnchanged,
			SegmentSize: prior.SegmentSize, TotalSegments: prior.TotalSegments,
			UploadedSegments: prior.UploadedSegments, EncryptionKeyRef: prior.EncryptionKeyRef,
			CreatedAt: prior.CreatedAt,
		}, types.ChangeUnchanged
	}

	return &types.File{
		ID: id, FolderID: folder.ID, Path: r.path, Size: r.size,
		ContentHash: r.hash, Version: prior.Version + 1, PreviousVersion: prior.Version,
		ChangeKind: types.ChangeModified, CreatedAt: now,
	}, types.ChangeModified
}

func (ix *Indexer) emitProgress(folderID string, current int, currentPath string) {
	if ix.broker == nil {
		return
	}
	ix.broker.Publish(&events.Event{
		Type:    events.EventIndexProgress,
		Message: folderID,
		Metadata: map[string]string{
			"current":      itoa(current),
			"current_path": currentPath,
		},
	})
}

func hashFile(path string, chunkSize int) (hexHash string, size int64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, chunkSize)
	n, err := io.CopyBuffer(h, f, buf)
	if err != nil {
		return "", 0, err
	}
	sum := h.Sum(nil)
	return hex.EncodeToString(sum), n, nil
}

func itoa(n int) string { return strconv.Itoa(n) }
