// Package providerutil holds retry plumbing shared by the concrete
// provider adapters.
package providerutil

import (
	"context"
	"time"
)

// Base holds shared retry configuration for LLM provider adapters.
type Base struct {
	MaxRetries int
	RetryDelay time.Duration
}

// NewBase returns a Base with defaults applied (3 retries, 1s base delay).
func NewBase(maxRetries int, retryDelay time.Duration) Base {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	return Base{MaxRetries: maxRetries, RetryDelay: retryDelay}
}

// Retry runs op with linear backoff, retrying only errors isRetryable
// accepts. The agent loop itself never retries provider calls (per the
// propagation policy); this retry is internal to a single provider
// adapter's handling of transient wire-level failures.
func (b Base) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	var lastErr error
	for attempt := 1; attempt <= b.MaxRetries+1; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if isRetryable == nil || !isRetryable(err) {
			return err
		}
		if attempt > b.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(b.RetryDelay * time.Duration(attempt)):
		}
	}
	return lastErr
}
