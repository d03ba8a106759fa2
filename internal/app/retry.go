package app

import (
	"context"
	"time"

	"github.com/nvila/courtbook/internal/domain"
)

// withRetry re-runs fn for retryable system errors only, with doubling
// backoff between attempts. Validation and conflict errors surface
// immediately.
func withRetry(ctx context.Context, retries int, backoff time.Duration, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff << (attempt - 1)):
			}
		}
		err = fn(ctx)
		if err == nil || !domain.Retryable(err) {
			return err
		}
	}
	return err
}
