package net

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClient is an in-memory stand-in for a real article-network driver.
type fakeClient struct {
	mu        sync.Mutex
	connected bool
	failPost  bool
	posted    map[string][]byte
}

func newFakeClientFactory(shared *sync.Map) ClientFactory {
	return func() Client {
		return &fakeClient{posted: make(map[string][]byte)}
	}
}

func (f *fakeClient) Connect(ctx context.Context, cfg ServerConfig) error {
	f.connected = true
	return nil
}

func (f *fakeClient) Authenticate(ctx context.Context, username, password string) error {
	return nil
}

func (f *fakeClient) Post(ctx context.Context, subject string, body []byte, group string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPost {
		return "", fmt.Errorf("post failed")
	}
	id := fmt.Sprintf("<%s@test>", subject)
	f.posted[id] = body
	return id, nil
}

func (f *fakeClient) Fetch(ctx context.Context, messageID string) (map[string]string, []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.posted[messageID]
	if !ok {
		return nil, nil, fmt.Errorf("no such article")
	}
	return map[string]string{"Message-ID": messageID}, body, nil
}

func (f *fakeClient) Capabilities(ctx context.Context) (Capabilities, error) {
	return Capabilities{PostingAllowed: true}, nil
}

func (f *fakeClient) Ping(ctx context.Context) error { return nil }
func (f *fakeClient) Close() error                   { f.connected = false; return nil }

func testPool(t *testing.T) *Pool {
	t.Helper()
	cfg := Config{
		Servers: []ServerConfig{
			{ID: "a", Host: "a.example.com", Port: 119, MaxConnections: 2, Priority: 1, Timeout: time.Second},
			{ID: "b", Host: "b.example.com", Port: 119, MaxConnections: 2, Priority: 2, Timeout: time.Second},
		},
		Strategy:       StrategyWeighted,
		AcquireTimeout: 2 * time.Second,
	}
	return New(cfg, newFakeClientFactory(nil))
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := testPool(t)
	defer p.Close()

	conn, err := p.Acquire(context.Background(), "")
	require.NoError(t, err)
	assert.NotEmpty(t, conn.ServerID())
	p.Release(conn, false)
}

func TestPostAndFetchArticle(t *testing.T) {
	p := testPool(t)
	defer p.Close()

	policy := RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond}
	id, server, err := p.PostArticle(context.Background(), policy, "", "seg-1", []byte("ciphertext"), "alt.binaries.test")
	require.NoError(t, err)
	assert.NotEmpty(t, server)

	_, body, _, err := p.FetchArticle(context.Background(), policy, server, id)
	require.NoError(t, err)
	assert.Equal(t, []byte("ciphertext"), body)
}

func TestAcquirePrefersGivenServer(t *testing.T) {
	p := testPool(t)
	defer p.Close()

	conn, err := p.Acquire(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, "b", conn.ServerID())
	p.Release(conn, false)
}

func TestWeightedStrategyPrefersHigherPriority(t *testing.T) {
	p := testPool(t)
	defer p.Close()

	conn, err := p.Acquire(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "b", conn.ServerID()) // priority 2 beats priority 1
	p.Release(conn, false)
}

func TestAcquireTimesOutWhenPoolExhausted(t *testing.T) {
	cfg := Config{
		Servers:        []ServerConfig{{ID: "a", Host: "a.example.com", Port: 119, MaxConnections: 1, Timeout: time.Second}},
		AcquireTimeout: 100 * time.Millisecond,
	}
	p := New(cfg, newFakeClientFactory(nil))
	defer p.Close()

	conn, err := p.Acquire(context.Background(), "")
	require.NoError(t, err)

	_, err = p.Acquire(context.Background(), "")
	assert.Error(t, err)

	p.Release(conn, false)
}

func TestRetryPolicyBackoffStaysWithinBounds(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 5, BaseDelay: 10 * time.Millisecond, MaxDelay: 100 * time.Millisecond}
	for i := 0; i < 10; i++ {
		d := policy.backoff(i)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, policy.MaxDelay)
	}
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, nil, func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
		func(error) bool { return false },
		func(ctx context.Context) error {
			attempts++
			return fmt.Errorf("fatal")
		})
	assert.Error(t, err)
	assert.Equal(t, 1, attempts)
}
