package net

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy configures exponential backoff with full jitter, applied at
// the operation layer for transient failures (timeouts, "try again later",
// rate-limit signals). Auth rejection and "no such article" are never
// retried; callers classify those before calling Do.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   30 * time.Second,
	}
}

// backoff returns the full-jitter delay for the given attempt (0-indexed).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	ceiling := p.BaseDelay << attempt
	if ceiling <= 0 || ceiling > p.MaxDelay {
		ceiling = p.MaxDelay
	}
	return time.Duration(rand.Int63n(int64(ceiling) + 1))
}

// Do runs fn up to MaxRetries+1 times, sleeping with full-jitter backoff
// between attempts. retryable decides whether a given error should be
// retried at all; a nil retryable retries every error.
func Do(ctx context.Context, policy RetryPolicy, retryable func(error) bool, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := policy.backoff(attempt - 1)
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if retryable != nil && !retryable(err) {
			return err
		}
	}
	return lastErr
}
