package jobs

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRetryableClassification(t *testing.T) {
	base := errors.New("store timeout")

	if IsRetryable(base) {
		t.Error("plain error classified retryable")
	}
	if !IsRetryable(Retryable(base)) {
		t.Error("wrapped error not classified retryable")
	}
	// Classification survives further wrapping.
	wrapped := fmt.Errorf("poll submission: %w", Retryable(base))
	if !IsRetryable(wrapped) {
		t.Error("retryable lost through fmt.Errorf wrapping")
	}
	if !errors.Is(Retryable(base), base) {
		t.Error("Unwrap broken")
	}
	if Retryable(nil) != nil {
		t.Error("Retryable(nil) != nil")
	}
	if IsRetryable(nil) {
		t.Error("nil classified retryable")
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff(5*time.Second, 10*time.Minute)

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{4, 40 * time.Second},
		{8, 10 * time.Minute},
		{50, 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := b(tt.attempt); got != tt.want {
			t.Errorf("attempt %d: backoff = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialBackoffCapsBase(t *testing.T) {
	b := ExponentialBackoff(time.Hour, time.Minute)
	if got := b(1); got != time.Minute {
		t.Errorf("first attempt = %v, want cap", got)
	}
}

func TestFixedBackoff(t *testing.T) {
	b := FixedBackoff(30 * time.Second)
	for _, attempt := range []int{1, 2, 10} {
		if got := b(attempt); got != 30*time.Second {
			t.Errorf("attempt %d: backoff = %v", attempt, got)
		}
	}
}
