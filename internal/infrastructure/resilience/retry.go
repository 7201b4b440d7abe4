package resilience

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy retries an operation a bounded number of times with
// exponential backoff.
type RetryPolicy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff is the delay before the second attempt.
	Backoff time.Duration
	// Multiplier scales the delay between successive attempts. Values
	// below 1 are treated as 2.
	Multiplier float64
}

// DefaultRetry is a conservative policy for recoverable local failures.
var DefaultRetry = RetryPolicy{Attempts: 3, Backoff: 2 * time.Second, Multiplier: 2}

// Do runs op until it succeeds, attempts are exhausted, retryable rejects
// the error, or ctx is cancelled. A nil retryable retries every error.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error, retryable func(error) bool) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 2
	}

	delay := p.Backoff
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}
		if retryable != nil && !retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		delay = time.Duration(float64(delay) * mult)
	}
	return fmt.Errorf("retries exhausted after %d attempts: %w", attempts, err)
}
