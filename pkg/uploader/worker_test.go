package uploader

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"driftshare.io/driftshare/pkg/events"
	netpkg "driftshare.io/driftshare/pkg/net"
	"driftshare.io/driftshare/pkg/storage"
	"driftshare.io/driftshare/pkg/types"
)

// fakeClient is a minimal in-memory net.Client standing in for a real
// article-network driver, mirroring pkg/net's own test fake.
type fakeClient struct {
	mu       sync.Mutex
	posted   map[string][]byte
	failNext bool
}

func (c *fakeClient) Connect(ctx context.Context, cfg netpkg.ServerConfig) error { return nil }
func (c *fakeClient) Authenticate(ctx context.Context, username, password string) error {
	return nil
}
func (c *fakeClient) Post(ctx context.Context, subject string, body []byte, group string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failNext {
		c.failNext = false
		return "", fmt.Errorf("simulated post failure")
	}
	id := fmt.Sprintf("<%d@test>", len(c.posted)+1)
	c.posted[id] = body
	return id, nil
}
func (c *fakeClient) Fetch(ctx context.Context, messageID string) (map[string]string, []byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	body, ok := c.posted[messageID]
	if !ok {
		return nil, nil, fmt.Errorf("not found")
	}
	return map[string]string{}, body, nil
}
func (c *fakeClient) Capabilities(ctx context.Context) (netpkg.Capabilities, error) {
	return netpkg.Capabilities{PostingAllowed: true}, nil
}
func (c *fakeClient) Ping(ctx context.Context) error { return nil }
func (c *fakeClient) Close() error                   { return nil }

func newTestStore(t *testing.T) storage.Store {
	t.Helper()
	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestNetPool(client *fakeClient) *netpkg.Pool {
	return netpkg.New(netpkg.Config{
		Servers: []netpkg.ServerConfig{{ID: "srv1", Host: "news.example", MaxConnections: 4}},
	}, func() netpkg.Client { return client })
}

func TestWorkerPoolPostsQueuedSegment(t *testing.T) {
	store := newTestStore(t)
	client := &fakeClient{posted: map[string][]byte{}}
	net := newTestNetPool(client)
	broker := events.NewBroker()

	seg := &types.Segment{ID: "seg-1", State: types.SegmentPending}
	require.NoError(t, store.CreateSegment(seg))

	body := []byte("ciphertext-body")
	bodies := func(segmentID string) ([]byte, string, string, error) {
		return body, "obfuscated-subject", "alt.binaries.test", nil
	}

	pool := New(DefaultConfig(), NewQueue(), net, store, broker, bodies)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	pool.queue.Add(&types.Job{ID: "job-1", EntityID: "seg-1", Priority: PriorityNormal, MaxRetries: 3})

	require.Eventually(t, func() bool {
		got, err := store.GetSegment("seg-1")
		return err == nil && got.State == types.SegmentUploaded
	}, 2*time.Second, 10*time.Millisecond)

	got, err := store.GetSegment("seg-1")
	require.NoError(t, err)
	assert.NotEmpty(t, got.MessageID)
	assert.Equal(t, "alt.binaries.test", got.TargetGroup)

	cancel()
	pool.Stop()
}

func TestWorkerPoolRetriesOnPostFailure(t *testing.T) {
	store := newTestStore(t)
	client := &fakeClient{posted: map[string][]byte{}, failNext: true}
	net := newTestNetPool(client)
	broker := events.NewBroker()

	seg := &types.Segment{ID: "seg-2", State: types.SegmentPending}
	require.NoError(t, store.CreateSegment(seg))

	bodies := func(segmentID string) ([]byte, string, string, error) {
		return []byte("body"), "subject", "group", nil
	}

	cfg := DefaultConfig()
	cfg.RetryPolicy.MaxRetries = 0 // let the queue-level retry handle it, not net-level
	pool := New(cfg, NewQueue(), net, store, broker, bodies)
	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	pool.queue.Add(&types.Job{ID: "job-2", EntityID: "seg-2", Priority: PriorityNormal, MaxRetries: 3})

	require.Eventually(t, func() bool {
		got, err := store.GetSegment("seg-2")
		return err == nil && got.State == types.SegmentUploaded
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	pool.Stop()
}
