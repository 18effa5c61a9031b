package scraper

import (
	"context"
	"time"
)

// SleepFunc waits for d or until ctx is done. Every delay the harvester
// observes goes through one, so tests can swap in a fake clock.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy bounds a retried operation: at most MaxAttempts calls with a
// fixed Delay between them. Retryable nil retries every error.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	Retryable   func(error) bool
}

// retry runs op until it succeeds, returns a non-retryable error, or the
// attempts are exhausted. It returns the number of attempts made and the
// last error.
func retry(ctx context.Context, policy RetryPolicy, sleep SleepFunc, op func(attempt int) error) (int, error) {
	if sleep == nil {
		sleep = sleepContext
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return attempt - 1, lastErr
		}

		lastErr = op(attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if policy.Retryable != nil && !policy.Retryable(lastErr) {
			return attempt, lastErr
		}
		if attempt == maxAttempts {
			break
		}
		if err := sleep(ctx, policy.Delay); err != nil {
			return attempt, lastErr
		}
	}
	return maxAttempts, lastErr
}
