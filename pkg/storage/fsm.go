package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"driftshare.io/driftshare/pkg/types"
	"github.com/hashicorp/raft"
)

// Command is one state-change operation carried in the Raft log, modeled
// directly on the FSM command envelope used elsewhere in this stack: a
// string opcode plus its JSON-encoded payload.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const opTx = "tx"

// FSM applies committed Raft log entries against an embedded BoltStore and
// answers snapshot/restore requests with the store's full entity set.
type FSM struct {
	mu    sync.RWMutex
	store *BoltStore
}

// NewFSM wraps store as a Raft finite state machine.
func NewFSM(store *BoltStore) *FSM {
	return &FSM{store: store}
}

// Apply applies one committed log entry. Raft guarantees this is called in
// log order on every replica, so Apply is the only place writes happen.
func (f *FSM) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if cmd.Op == opTx {
		var batch []Command
		if err := json.Unmarshal(cmd.Data, &batch); err != nil {
			return fmt.Errorf("unmarshal tx batch: %w", err)
		}
		return f.store.WithTx(func(tx Tx) error {
			for _, sub := range batch {
				if err := applyCommand(tx, sub); err != nil {
					return err
				}
			}
			return nil
		})
	}

	return applyCommand(f.store, cmd)
}

// applyCommand dispatches one opcode against any Store (the top-level
// BoltStore or an in-flight Tx), letting tx batches and single commands
// share the same switch.
func applyCommand(s Store, cmd Command) error {
	switch cmd.Op {
	case "create_folder", "update_folder":
		var v types.Folder
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		if cmd.Op == "create_folder" {
			return s.CreateFolder(&v)
		}
		return s.UpdateFolder(&v)
	case "delete_folder":
		var id string
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		return s.DeleteFolder(id)

	case "upsert_file":
		var v types.File
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return s.UpsertFile(&v)
	case "bulk_insert_files":
		var v []*types.File
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return s.BulkInsertFiles(v)
	case "delete_file":
		var id string
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		return s.DeleteFile(id)

	case "create_segment", "update_segment":
		var v types.Segment
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		if cmd.Op == "create_segment" {
			return s.CreateSegment(&v)
		}
		return s.UpdateSegment(&v)
	case "bulk_insert_segments":
		var v []*types.Segment
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return s.BulkInsertSegments(v)
	case "delete_segments_by_file":
		var id string
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		return s.DeleteSegmentsByFile(id)

	case "create_packed_segment", "update_packed_segment":
		var v types.PackedSegment
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		if cmd.Op == "create_packed_segment" {
			return s.CreatePackedSegment(&v)
		}
		return s.UpdatePackedSegment(&v)

	case "create_share", "update_share":
		var v types.Share
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		if cmd.Op == "create_share" {
			return s.CreateShare(&v)
		}
		return s.UpdateShare(&v)
	case "delete_share":
		var id string
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		return s.DeleteShare(id)

	case "put_commitment":
		var v types.MemberCommitment
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return s.PutCommitment(&v)

	case "create_article":
		var v types.Article
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		return s.CreateArticle(&v)

	case "create_job", "update_job":
		var v types.Job
		if err := json.Unmarshal(cmd.Data, &v); err != nil {
			return err
		}
		if cmd.Op == "create_job" {
			return s.CreateJob(&v)
		}
		return s.UpdateJob(&v)
	case "delete_job":
		var id string
		if err := json.Unmarshal(cmd.Data, &id); err != nil {
			return err
		}
		return s.DeleteJob(id)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// snapshot is the full entity set serialized by Snapshot/Restore.
type snapshot struct {
	Folders        []*types.Folder
	Files          []*types.File
	Segments       []*types.Segment
	PackedSegments []*types.PackedSegment
	Shares         []*types.Share
	Commitments    []*types.MemberCommitment
	Articles       []*types.Article
	Jobs           []*types.Job
}

func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	folders, err := f.store.ListFolders()
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	var files []*types.File
	var segments []*types.Segment
	var shares []*types.Share
	var commitments []*types.MemberCommitment
	for _, fo := range folders {
		ff, err := f.store.ListFilesByFolder(fo.ID)
		if err != nil {
			return nil, err
		}
		files = append(files, ff...)
		for _, file := range ff {
			ss, err := f.store.ListSegmentsByFile(file.ID)
			if err != nil {
				return nil, err
			}
			segments = append(segments, ss...)
		}
		sh, err := f.store.ListSharesByFolder(fo.ID)
		if err != nil {
			return nil, err
		}
		shares = append(shares, sh...)
		for _, one := range sh {
			cc, err := f.store.ListCommitments(one.ID)
			if err != nil {
				return nil, err
			}
			commitments = append(commitments, cc...)
		}
	}

	snap := &snapshot{
		Folders:     folders,
		Files:       files,
		Segments:    segments,
		Shares:      shares,
		Commitments: commitments,
	}
	return &fsmSnapshot{snap: snap}, nil
}

func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap snapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, v := range snap.Folders {
		if err := f.store.CreateFolder(v); err != nil {
			return fmt.Errorf("restore folder: %w", err)
		}
	}
	if err := f.store.BulkInsertFiles(snap.Files); err != nil {
		return fmt.Errorf("restore files: %w", err)
	}
	if err := f.store.BulkInsertSegments(snap.Segments); err != nil {
		return fmt.Errorf("restore segments: %w", err)
	}
	for _, v := range snap.PackedSegments {
		if err := f.store.CreatePackedSegment(v); err != nil {
			return fmt.Errorf("restore packed segment: %w", err)
		}
	}
	for _, v := range snap.Shares {
		if err := f.store.CreateShare(v); err != nil {
			return fmt.Errorf("restore share: %w", err)
		}
	}
	for _, v := range snap.Commitments {
		if err := f.store.PutCommitment(v); err != nil {
			return fmt.Errorf("restore commitment: %w", err)
		}
	}
	for _, v := range snap.Articles {
		if err := f.store.CreateArticle(v); err != nil {
			return fmt.Errorf("restore article: %w", err)
		}
	}
	for _, v := range snap.Jobs {
		if err := f.store.CreateJob(v); err != nil {
			return fmt.Errorf("restore job: %w", err)
		}
	}
	return nil
}

type fsmSnapshot struct {
	snap *snapshot
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s.snap); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *fsmSnapshot) Release() {}
