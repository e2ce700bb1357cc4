package notifier

import (
	"context"
	"fmt"
	"time"
)

// FetchWithBackoff calls fetch up to attempts times, doubling the pause from
// base between tries. It replaces open-ended polling for snapshots.
func FetchWithBackoff[T any](ctx context.Context, attempts int, base time.Duration, fetch func(context.Context) (T, error)) (T, error) {
	var zero T
	if attempts < 1 {
		attempts = 1
	}
	delay := base
	var lastErr error
	for i := 0; i < attempts; i++ {
		v, err := fetch(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return zero, fmt.Errorf("snapshot failed after %d attempts: %w", attempts, lastErr)
}
