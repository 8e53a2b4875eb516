package net

import (
	"context"
	"time"
)

// ServerConfig describes one article server endpoint.
type ServerConfig struct {
	ID             string
	Host           string
	Port           int
	SSL            bool
	Username       string
	Password       string
	MaxConnections int
	Priority       int
	Timeout        time.Duration
}

// Capabilities describes what an authenticated connection can do.
type Capabilities struct {
	PostingAllowed bool
	RetentionDays  int
	MaxConnections int
}

// Client is the narrow transport interface a Connection wraps. It is
// implemented by whichever article-network driver is wired in; Net itself
// only knows how to pool, rotate, and rate-limit instances of it.
type Client interface {
	Connect(ctx context.Context, cfg ServerConfig) error
	Authenticate(ctx context.Context, username, password string) error
	Post(ctx context.Context, subject string, body []byte, group string) (messageID string, err error)
	Fetch(ctx context.Context, messageID string) (headers map[string]string, body []byte, err error)
	Capabilities(ctx context.Context) (Capabilities, error)
	Ping(ctx context.Context) error
	Close() error
}
