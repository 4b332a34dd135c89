package utilities

import (
	"context"
	"time"
)

// Backoff returns the delay before retry number attempt (zero based). The
// delay doubles each time, capped at maxBackoff.
func Backoff(attempt int, startBackoff, maxBackoff time.Duration) time.Duration {
	backoff := startBackoff
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}
	if maxBackoff > 0 && backoff > maxBackoff {
		return maxBackoff
	}
	return backoff
}

// RetryWithBackoff retries fn until it succeeds, maxRetry attempts are
// exhausted or ctx is done. It returns the last error from fn, or the
// context error when cancelled while waiting.
func RetryWithBackoff(ctx context.Context, fn func(attempt int) error, maxRetry int, startBackoff, maxBackoff time.Duration) error {
	if maxRetry <= 0 {
		maxRetry = 1
	}
	var err error
	for attempt := 0; attempt < maxRetry; attempt++ {
		if err = fn(attempt); err == nil {
			return nil
		}
		if attempt == maxRetry-1 {
			break
		}
		timer := time.NewTimer(Backoff(attempt, startBackoff, maxBackoff))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}
