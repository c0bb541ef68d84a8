package resilience

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Retry runs op with exponential backoff until it succeeds, returns a
// backoff.Permanent error, ctx ends or maxRetries is reached.
func Retry(ctx context.Context, maxRetries uint64, initial time.Duration, op func() error, notify func(error, time.Duration)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxRetries), ctx)
	return backoff.RetryNotify(op, policy, notify)
}

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return backoff.Permanent(err)
}
