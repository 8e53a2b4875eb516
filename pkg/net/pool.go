package net

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"driftshare.io/driftshare/pkg/errs"
	"driftshare.io/driftshare/pkg/log"
)

// ClientFactory builds a fresh, unconnected Client. Production wiring
// supplies the real article-network driver; tests supply a fake.
type ClientFactory func() Client

// Config configures a Pool.
type Config struct {
	Servers        []ServerConfig
	Strategy       Strategy
	AcquireTimeout time.Duration
	IdleTimeout    time.Duration
	// MaxArticlesPerConn and MaxBytesPerConn force a connection to be
	// recycled after it has carried that much traffic, as a defensive
	// measure against server-side throttling of long-lived connections.
	MaxArticlesPerConn int
	MaxBytesPerConn    int64
	RateLimit          rate.Limit // global token-bucket rate, articles/sec; 0 disables
	RateBurst          int
}

// pooledConn wraps a live Client with bookkeeping the pool needs to decide
// when to recycle it.
type pooledConn struct {
	client     Client
	serverID   string
	createdAt  time.Time
	lastUsedAt time.Time
	articles   int
	bytes      int64
}

// Pool is a connection pool keyed by server identity. It is the only
// component in driftshare that owns raw server connections; posting and
// fetching both go through it.
type Pool struct {
	cfg     Config
	factory ClientFactory

	mu    sync.Mutex
	idle  map[string][]*pooledConn
	inUse map[string]int

	health  map[string]*serverHealth
	byID    map[string]ServerConfig
	rotator *rotator
	limiter *rate.Limiter
	closed  bool
}

func New(cfg Config, factory ClientFactory) *Pool {
	if cfg.AcquireTimeout == 0 {
		cfg.AcquireTimeout = 10 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyHealthFirst
	}

	byID := make(map[string]ServerConfig, len(cfg.Servers))
	health := make(map[string]*serverHealth, len(cfg.Servers))
	ids := make([]string, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		byID[s.ID] = s
		health[s.ID] = newServerHealth(defaultHealthConfig())
		ids = append(ids, s.ID)
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(cfg.RateLimit, burst)
	}

	return &Pool{
		cfg:     cfg,
		factory: factory,
		idle:    make(map[string][]*pooledConn),
		inUse:   make(map[string]int),
		health:  health,
		byID:    byID,
		rotator: newRotator(cfg.Strategy, ids),
		limiter: limiter,
	}
}

// Conn is the handle callers hold between Acquire and Release.
type Conn struct {
	pooled *pooledConn
	pool   *Pool
}

func (c *Conn) Client() Client   { return c.pooled.client }
func (c *Conn) ServerID() string { return c.pooled.serverID }

// Acquire returns a connection, preferring prefer if given, and otherwise
// trying servers in the pool's rotation strategy order. It waits up to the
// pool's AcquireTimeout for a slot to free up on a candidate server.
func (p *Pool) Acquire(ctx context.Context, prefer string) (*Conn, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, errs.Transient("net.Acquire", fmt.Errorf("rate limit wait: %w", err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errs.Fatal("net.Acquire", fmt.Errorf("connection pool is closed"))
	}
	priority := make(map[string]int, len(p.byID))
	healthy := make(map[string]bool, len(p.byID))
	for id, s := range p.byID {
		priority[id] = s.Priority
		healthy[id] = p.health[id].Healthy()
	}
	order := p.rotator.next(prefer, priority, healthy)
	p.mu.Unlock()

	for {
		for _, serverID := range order {
			if conn, ok := p.tryAcquire(serverID); ok {
				return conn, nil
			}
		}
		select {
		case <-ctx.Done():
			return nil, errs.Transient("net.Acquire", fmt.Errorf("acquire timed out waiting for a free connection"))
		case <-time.After(25 * time.Millisecond):
		}
	}
}

func (p *Pool) tryAcquire(serverID string) (*Conn, bool) {
	p.mu.Lock()
	cfg, ok := p.byID[serverID]
	if !ok {
		p.mu.Unlock()
		return nil, false
	}
	if !p.health[serverID].Healthy() {
		p.mu.Unlock()
		return nil, false
	}

	if idle := p.idle[serverID]; len(idle) > 0 {
		pc := idle[len(idle)-1]
		p.idle[serverID] = idle[:len(idle)-1]
		p.inUse[serverID]++
		p.mu.Unlock()

		if p.shouldRecycle(pc) {
			pc.client.Close()
			return p.createAndTrack(serverID, cfg)
		}
		pc.lastUsedAt = time.Now()
		return &Conn{pooled: pc, pool: p}, true
	}

	max := cfg.MaxConnections
	if max <= 0 {
		max = 10
	}
	if p.inUse[serverID] >= max {
		p.mu.Unlock()
		return nil, false
	}
	p.inUse[serverID]++
	p.mu.Unlock()

	return p.createAndTrack(serverID, cfg)
}

func (p *Pool) createAndTrack(serverID string, cfg ServerConfig) (*Conn, bool) {
	conn, err := p.dial(serverID, cfg)
	if err != nil {
		p.mu.Lock()
		p.inUse[serverID]--
		p.mu.Unlock()
		log.WithComponent("net").Warn().Str("server", serverID).Err(err).Msg("failed to dial server")
		return nil, false
	}
	return conn, true
}

func (p *Pool) dial(serverID string, cfg ServerConfig) (*Conn, error) {
	start := time.Now()
	client := p.factory()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	err := Do(ctx, RetryPolicy{MaxRetries: 1, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}, nil, func(ctx context.Context) error {
		if err := client.Connect(ctx, cfg); err != nil {
			return err
		}
		if cfg.Username != "" {
			return client.Authenticate(ctx, cfg.Username, cfg.Password)
		}
		return nil
	})

	p.health[serverID].Record(time.Since(start), err != nil)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	return &Conn{pooled: &pooledConn{client: client, serverID: serverID, createdAt: now, lastUsedAt: now}, pool: p}, nil
}

func (p *Pool) shouldRecycle(pc *pooledConn) bool {
	if p.cfg.IdleTimeout > 0 && time.Since(pc.lastUsedAt) > p.cfg.IdleTimeout {
		return true
	}
	if p.cfg.MaxArticlesPerConn > 0 && pc.articles >= p.cfg.MaxArticlesPerConn {
		return true
	}
	if p.cfg.MaxBytesPerConn > 0 && pc.bytes >= p.cfg.MaxBytesPerConn {
		return true
	}
	return false
}

// Release returns a connection to the pool on success, or tears it down
// when failed is true — per the operation-layer contract that a failed
// operation never leaves a possibly-corrupted connection in circulation.
func (p *Pool) Release(conn *Conn, failed bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.inUse[conn.pooled.serverID]--
	p.health[conn.pooled.serverID].Record(time.Since(conn.pooled.lastUsedAt), failed)

	if failed || p.closed || p.shouldRecycle(conn.pooled) {
		conn.pooled.client.Close()
		return
	}
	p.idle[conn.pooled.serverID] = append(p.idle[conn.pooled.serverID], conn.pooled)
}

// RecordTransfer updates a connection's article/byte counters so the pool
// can recycle it once MaxArticlesPerConn/MaxBytesPerConn is exceeded.
func (c *Conn) RecordTransfer(bytes int64) {
	c.pooled.articles++
	c.pooled.bytes += bytes
}

// Close tears down every idle connection and refuses further acquires.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	for _, conns := range p.idle {
		for _, pc := range conns {
			pc.client.Close()
		}
	}
	p.idle = make(map[string][]*pooledConn)
	return nil
}
