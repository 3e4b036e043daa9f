package retry

import (
	"context"
	"fmt"
	"math"
	"time"
)

type Policy struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Attempts: 4, BaseDelay: 200 * time.Millisecond, MaxDelay: 3 * time.Second}
}

// Backoff returns the wait before the given attempt; attempt 0 runs immediately.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	backoff := time.Duration(math.Pow(2, float64(attempt-1))) * p.BaseDelay
	if p.MaxDelay > 0 && backoff > p.MaxDelay {
		backoff = p.MaxDelay
	}
	return backoff
}

// Do runs fn until it succeeds, the attempts are exhausted, or ctx is done.
// The last error from fn is returned.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if wait := policy.Backoff(attempt); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				if lastErr != nil {
					return fmt.Errorf("%w (last error: %v)", ctx.Err(), lastErr)
				}
				return ctx.Err()
			case <-timer.C:
			}
		}

		if err := fn(ctx); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("exceeded max retries (%d): %w", attempts, lastErr)
}
