// Package backoff holds the engine-wide retry delay policy: exponential
// with a ceiling. Every retryable failure (job or outbox entry) pushes
// run_at forward by Delay(attempts), so run_at is non-decreasing across
// the retries of a single row.
package backoff

import (
	"math"
	"time"
)

const (
	// Base is the delay after the first failure.
	Base = 30 * time.Second
	// Max caps the delay regardless of attempt count.
	Max = 1 * time.Hour
)

// Delay returns the retry delay for the given attempt count (1-based).
// The result is always positive and non-decreasing in attempt.
func Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return Base
	}

	mul := math.Pow(2, float64(attempt-1))
	d := time.Duration(float64(Base) * mul)
	if d <= 0 || d > Max {
		// Duration overflow for very large attempts also lands here.
		return Max
	}
	return d
}
