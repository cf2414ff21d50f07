package storage

import (
	"context"
	"errors"
	"time"
)

// DefaultContentionRetries is the number of attempts for a contended vote write.
const DefaultContentionRetries = 3

// RetryOnContention runs fn until it succeeds, fails with an error other than
// ErrContention, or attempts are exhausted. onRetry is called before each retry.
func RetryOnContention(ctx context.Context, attempts int, onRetry func(attempt int), fn func() error) error {
	if attempts < 2 {
		attempts = 2
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, ErrContention) {
			return err
		}
		if attempt == attempts {
			break
		}
		if onRetry != nil {
			onRetry(attempt)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 5 * time.Millisecond):
		}
	}
	return err
}
