package net

import (
	"context"

	"driftshare.io/driftshare/pkg/errs"
)

// PostArticle acquires a connection, posts the article, and releases the
// connection, retrying transient failures per policy. prefer, if set, is
// tried first; the operation only rotates to other servers on the next
// Acquire, not mid-retry on the same connection.
func (p *Pool) PostArticle(ctx context.Context, policy RetryPolicy, prefer, subject string, body []byte, group string) (messageID string, usedServer string, err error) {
	err = Do(ctx, policy, isRetryable, func(ctx context.Context) error {
		conn, acquireErr := p.Acquire(ctx, prefer)
		if acquireErr != nil {
			return acquireErr
		}
		id, postErr := conn.Client().Post(ctx, subject, body, group)
		p.Release(conn, postErr != nil)
		if postErr != nil {
			return postErr
		}
		conn.RecordTransfer(int64(len(body)))
		messageID = id
		usedServer = conn.ServerID()
		return nil
	})
	return messageID, usedServer, err
}

// FetchArticle tries the preferred server first, then rotates through the
// rest of the pool on failure, per the operation's retry policy.
func (p *Pool) FetchArticle(ctx context.Context, policy RetryPolicy, prefer, messageID string) (headers map[string]string, body []byte, usedServer string, err error) {
	tried := make(map[string]bool)
	err = Do(ctx, policy, isRetryable, func(ctx context.Context) error {
		conn, acquireErr := p.Acquire(ctx, prefer)
		if acquireErr != nil {
			return acquireErr
		}
		h, b, fetchErr := conn.Client().Fetch(ctx, messageID)
		p.Release(conn, fetchErr != nil && isRetryable(fetchErr))
		if fetchErr != nil {
			tried[conn.ServerID()] = true
			for _, s := range p.cfg.Servers {
				if !tried[s.ID] {
					prefer = s.ID
					break
				}
			}
			return fetchErr
		}
		conn.RecordTransfer(int64(len(b)))
		headers, body, usedServer = h, b, conn.ServerID()
		return nil
	})
	return headers, body, usedServer, err
}

// isRetryable classifies which failures are worth retrying: transient read/write
// errors, "try again later", and rate-limit signals are retried; auth
// rejection and "no such article" are not.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	var e *errs.Error
	if errs.As(err, &e) {
		switch e.Kind {
		case errs.KindTransient, errs.KindCapacity:
			return true
		case errs.KindAuth, errs.KindValidation, errs.KindFatal, errs.KindIntegrity:
			return false
		}
	}
	return true
}
