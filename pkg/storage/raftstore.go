package storage

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"driftshare.io/driftshare/pkg/types"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
)

// RaftConfig configures the server storage engine.
type RaftConfig struct {
	NodeID   string
	BindAddr string
	DataDir  string
	// Bootstrap, when true, forms a brand-new single-node cluster.
	// Leave false when joining an existing one via AddVoter on the leader.
	Bootstrap bool
}

// RaftStore is the "server" storage engine: a Raft-replicated log sitting
// in front of an embedded BoltStore, applying every write through
// consensus so a multi-process deployment shares one consistent view.
type RaftStore struct {
	*BoltStore
	raft *raft.Raft
	fsm  *FSM
}

// NewRaftStore opens the local BoltStore, wires it to an FSM, and starts
// (or joins, via the caller's subsequent AddVoter on the leader) a Raft
// group bound to cfg.BindAddr.
func NewRaftStore(cfg RaftConfig) (*RaftStore, error) {
	boltStore, err := NewBoltStore(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	fsm := NewFSM(boltStore)

	raftCfg := raft.DefaultConfig()
	raftCfg.LocalID = raft.ServerID(cfg.NodeID)

	addr, err := net.ResolveTCPAddr("tcp", cfg.BindAddr)
	if err != nil {
		boltStore.Close()
		return nil, fmt.Errorf("resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		boltStore.Close()
		return nil, fmt.Errorf("create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(cfg.DataDir, 2, os.Stderr)
	if err != nil {
		boltStore.Close()
		return nil, fmt.Errorf("create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-log.db"))
	if err != nil {
		boltStore.Close()
		return nil, fmt.Errorf("create raft log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(cfg.DataDir, "raft-stable.db"))
	if err != nil {
		boltStore.Close()
		return nil, fmt.Errorf("create raft stable store: %w", err)
	}

	r, err := raft.NewRaft(raftCfg, fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		boltStore.Close()
		return nil, fmt.Errorf("create raft: %w", err)
	}

	if cfg.Bootstrap {
		configuration := raft.Configuration{
			Servers: []raft.Server{
				{ID: raftCfg.LocalID, Address: transport.LocalAddr()},
			},
		}
		if err := r.BootstrapCluster(configuration).Error(); err != nil {
			return nil, fmt.Errorf("bootstrap cluster: %w", err)
		}
	}

	return &RaftStore{BoltStore: boltStore, raft: r, fsm: fsm}, nil
}

// AddVoter admits a new node into the cluster. Call on the current leader.
func (s *RaftStore) AddVoter(nodeID, address string) error {
	return s.raft.AddVoter(raft.ServerID(nodeID), raft.ServerAddress(address), 0, 10*time.Second).Error()
}

// RemoveServer evicts a node from the cluster. Call on the current leader.
func (s *RaftStore) RemoveServer(nodeID string) error {
	return s.raft.RemoveServer(raft.ServerID(nodeID), 0, 10*time.Second).Error()
}

func (s *RaftStore) IsLeader() bool { return s.raft.State() == raft.Leader }

const applyTimeout = 5 * time.Second

func (s *RaftStore) apply(op string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	cmd := Command{Op: op, Data: data}
	raw, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	future := s.raft.Apply(raw, applyTimeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("raft apply %s: %w", op, err)
	}
	if resp := future.Response(); resp != nil {
		if respErr, ok := resp.(error); ok && respErr != nil {
			return respErr
		}
	}
	return nil
}

// Write methods route through Raft consensus; reads are served locally
// from the embedded BoltStore via the promoted methods.

func (s *RaftStore) CreateFolder(f *types.Folder) error { return s.apply("create_folder", f) }
func (s *RaftStore) UpdateFolder(f *types.Folder) error { return s.apply("update_folder", f) }
func (s *RaftStore) DeleteFolder(id string) error       { return s.apply("delete_folder", id) }

func (s *RaftStore) CreateFile(f *types.File) error { return s.apply("upsert_file", f) }
func (s *RaftStore) UpsertFile(f *types.File) error { return s.apply("upsert_file", f) }
func (s *RaftStore) BulkInsertFiles(fs []*types.File) error {
	return s.apply("bulk_insert_files", fs)
}
func (s *RaftStore) DeleteFile(id string) error { return s.apply("delete_file", id) }

func (s *RaftStore) CreateSegment(seg *types.Segment) error { return s.apply("create_segment", seg) }
func (s *RaftStore) UpdateSegment(seg *types.Segment) error { return s.apply("update_segment", seg) }
func (s *RaftStore) BulkInsertSegments(segs []*types.Segment) error {
	return s.apply("bulk_insert_segments", segs)
}
func (s *RaftStore) DeleteSegmentsByFile(fileID string) error {
	return s.apply("delete_segments_by_file", fileID)
}

func (s *RaftStore) CreatePackedSegment(p *types.PackedSegment) error {
	return s.apply("create_packed_segment", p)
}
func (s *RaftStore) UpdatePackedSegment(p *types.PackedSegment) error {
	return s.apply("update_packed_segment", p)
}

func (s *RaftStore) CreateShare(sh *types.Share) error { return s.apply("create_share", sh) }
func (s *RaftStore) UpdateShare(sh *types.Share) error { return s.apply("update_share", sh) }
func (s *RaftStore) DeleteShare(id string) error       { return s.apply("delete_share", id) }

func (s *RaftStore) PutCommitment(c *types.MemberCommitment) error {
	return s.apply("put_commitment", c)
}

func (s *RaftStore) CreateArticle(a *types.Article) error { return s.apply("create_article", a) }

func (s *RaftStore) CreateJob(j *types.Job) error { return s.apply("create_job", j) }
func (s *RaftStore) UpdateJob(j *types.Job) error { return s.apply("update_job", j) }
func (s *RaftStore) DeleteJob(id string) error    { return s.apply("delete_job", id) }

// WithTx records the writes fn issues against a local recorder and applies
// them as one atomic Raft entry, so a multi-entity write either commits to
// every replica or none. Reads inside fn are served from the local
// BoltStore's current state, not from the pending batch.
func (s *RaftStore) WithTx(fn func(tx Tx) error) error {
	rec := &txRecorder{BoltStore: s.BoltStore}
	if err := fn(rec); err != nil {
		return err
	}
	if len(rec.cmds) == 0 {
		return nil
	}
	return s.apply(opTx, rec.cmds)
}

// txRecorder satisfies Tx by delegating reads to the embedded BoltStore and
// recording writes as Commands instead of executing them immediately.
type txRecorder struct {
	*BoltStore
	cmds []Command
}

func (t *txRecorder) record(op string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	t.cmds = append(t.cmds, Command{Op: op, Data: data})
	return nil
}

func (t *txRecorder) CreateFolder(f *types.Folder) error { return t.record("create_folder", f) }
func (t *txRecorder) UpdateFolder(f *types.Folder) error { return t.record("update_folder", f) }
func (t *txRecorder) DeleteFolder(id string) error       { return t.record("delete_folder", id) }

func (t *txRecorder) CreateFile(f *types.File) error { return t.record("upsert_file", f) }
func (t *txRecorder) UpsertFile(f *types.File) error { return t.record("upsert_file", f) }
func (t *txRecorder) BulkInsertFiles(fs []*types.File) error {
	return t.record("bulk_insert_files", fs)
}
func (t *txRecorder) DeleteFile(id string) error { return t.record("delete_file", id) }

func (t *txRecorder) CreateSegment(seg *types.Segment) error { return t.record("create_segment", seg) }
func (t *txRecorder) UpdateSegment(seg *types.Segment) error { return t.record("update_segment", seg) }
func (t *txRecorder) BulkInsertSegments(segs []*types.Segment) error {
	return t.record("bulk_insert_segments", segs)
}
func (t *txRecorder) DeleteSegmentsByFile(fileID string) error {
	return t.record("delete_segments_by_file", fileID)
}

func (t *txRecorder) CreatePackedSegment(p *types.PackedSegment) error {
	return t.record("create_packed_segment", p)
}
func (t *txRecorder) UpdatePackedSegment(p *types.PackedSegment) error {
	return t.record("update_packed_segment", p)
}

func (t *txRecorder) CreateShare(sh *types.Share) error { return t.record("create_share", sh) }
func (t *txRecorder) UpdateShare(sh *types.Share) error { return t.record("update_share", sh) }
func (t *txRecorder) DeleteShare(id string) error       { return t.record("delete_share", id) }

func (t *txRecorder) PutCommitment(c *types.MemberCommitment) error {
	return t.record("put_commitment", c)
}

func (t *txRecorder) CreateArticle(a *types.Article) error { return t.record("create_article", a) }

func (t *txRecorder) CreateJob(j *types.Job) error { return t.record("create_job", j) }
func (t *txRecorder) UpdateJob(j *types.Job) error { return t.record("update_job", j) }
func (t *txRecorder) DeleteJob(id string) error    { return t.record("delete_job", id) }

func (t *txRecorder) WithTx(fn func(tx Tx) error) error { return fn(t) }
