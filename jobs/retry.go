package jobs

import (
	"errors"
	"time"
)

// RetryableError wraps a transient failure. A handler returning one
// gets its job rescheduled instead of failed.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable marks err as transient.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}

// Backoff maps an attempt count (1-based) to a delay before the next
// try.
type Backoff func(attempt int) time.Duration

// ExponentialBackoff doubles base per attempt, capped at max.
func ExponentialBackoff(base, max time.Duration) Backoff {
	return func(attempt int) time.Duration {
		d := base
		for i := 1; i < attempt; i++ {
			d *= 2
			if d >= max {
				return max
			}
		}
		if d > max {
			return max
		}
		return d
	}
}

// FixedBackoff always waits the same delay, used by the store poll
// jobs where the provider advises a polling interval.
func FixedBackoff(d time.Duration) Backoff {
	return func(int) time.Duration { return d }
}
