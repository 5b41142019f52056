// Package retry provides retry strategies for in-process message delivery.
// A Strategy bounds how many times a queue redelivers a failed message before
// dead-lettering it, and how long it waits between attempts.
package retry

import (
	"fmt"
	"math"
	"time"
)

// DefaultMaxRetries is the number of redeliveries after the initial attempt.
const DefaultMaxRetries = 3

// DefaultDelay is the fixed wait between delivery attempts.
const DefaultDelay = 500 * time.Millisecond

// Strategy defines the retry behavior for failed deliveries.
//
// The delay before retry n (1-based) is:
//
//	delay = min(BaseDelay * ExponentialBase^(n-1), MaxDelay)
//
// An ExponentialBase of 1 (or 0) gives a fixed delay.
type Strategy struct {
	MaxRetries      int           // Redeliveries allowed after the first attempt
	BaseDelay       time.Duration // Delay before the first retry
	MaxDelay        time.Duration // Delay cap (0 = uncapped)
	ExponentialBase float64       // Backoff multiplier (1.0 = fixed delay)
}

// DefaultStrategy returns the strategy used by regular queues:
// 3 retries with a fixed 500ms delay, so a permanently failing handler is
// invoked 4 times in total.
func DefaultStrategy() Strategy {
	return Strategy{
		MaxRetries:      DefaultMaxRetries,
		BaseDelay:       DefaultDelay,
		MaxDelay:        0,
		ExponentialBase: 1.0,
	}
}

// NoRetry returns a strategy that never redelivers. Dead letter queues use it.
func NoRetry() Strategy {
	return Strategy{}
}

// Exponential returns a strategy doubling the delay on each retry up to maxDelay.
func Exponential(maxRetries int, baseDelay, maxDelay time.Duration) Strategy {
	return Strategy{
		MaxRetries:      maxRetries,
		BaseDelay:       baseDelay,
		MaxDelay:        maxDelay,
		ExponentialBase: 2.0,
	}
}

// Validate checks the strategy for impossible values.
func (s Strategy) Validate() error {
	if s.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", s.MaxRetries)
	}
	if s.BaseDelay < 0 {
		return fmt.Errorf("base delay must be >= 0, got %v", s.BaseDelay)
	}
	if s.MaxDelay < 0 {
		return fmt.Errorf("max delay must be >= 0, got %v", s.MaxDelay)
	}
	if s.ExponentialBase < 0 {
		return fmt.Errorf("exponential base must be >= 0, got %v", s.ExponentialBase)
	}
	return nil
}

// IsRetryable reports whether a message that has already been retried
// retryCount times may be delivered again.
func (s Strategy) IsRetryable(retryCount int) bool {
	return retryCount < s.MaxRetries
}

// TotalAttempts returns the maximum number of handler invocations per message.
func (s Strategy) TotalAttempts() int {
	return s.MaxRetries + 1
}

// CalculateRetryDelay returns the wait before retry number retry (1-based).
func (s Strategy) CalculateRetryDelay(retry int) time.Duration {
	if retry <= 1 || s.ExponentialBase <= 1 {
		return s.capped(float64(s.BaseDelay))
	}

	delay := float64(s.BaseDelay) * math.Pow(s.ExponentialBase, float64(retry-1))
	return s.capped(delay)
}

func (s Strategy) capped(delay float64) time.Duration {
	if s.MaxDelay > 0 && delay > float64(s.MaxDelay) {
		return s.MaxDelay
	}
	return time.Duration(delay)
}

// GetRetrySchedule returns a human-readable description of the retry schedule.
//
// Example output:
//
//	Retry Schedule:
//	  Attempt 1: immediately
//	  Attempt 2: after 500ms
//	  ...
//	  → Move to DLQ
func (s Strategy) GetRetrySchedule() string {
	schedule := "Retry Schedule:\n  Attempt 1: immediately\n"
	for i := 1; i <= s.MaxRetries; i++ {
		schedule += fmt.Sprintf("  Attempt %d: after %v\n", i+1, s.CalculateRetryDelay(i))
	}
	schedule += "  → Move to DLQ\n"
	return schedule
}
