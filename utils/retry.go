package utils

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig holds the parameters for the retry strategy. MaxRetries counts
// retries after the first attempt, so MaxRetries=2 means at most 3 calls.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	Logger     *Logger
}

// Do executes fn with exponential back-off retry logic. It stops early when
// ctx is done and returns the number of attempts made.
func (r *RetryConfig) Do(ctx context.Context, operationName string, fn func(ctx context.Context) error) (int, error) {
	var lastErr error
	delay := r.BaseDelay
	maxAttempts := r.MaxRetries + 1
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	attempt := 0
	for attempt < maxAttempts {
		attempt++
		lastErr = fn(ctx)
		if lastErr == nil {
			return attempt, nil
		}
		if ctx.Err() != nil || attempt == maxAttempts {
			break
		}

		if r.Logger != nil {
			r.Logger.Warn("[retry] %s failed (attempt %d/%d): %v, retrying in %v",
				operationName, attempt, maxAttempts, lastErr, delay)
		}
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return attempt, fmt.Errorf("%s cancelled after %d attempts: %w", operationName, attempt, lastErr)
		}
		delay *= 2
	}

	return attempt, fmt.Errorf("%s failed after %d attempts: %w", operationName, attempt, lastErr)
}
