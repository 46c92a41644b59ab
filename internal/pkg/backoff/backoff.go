// Package backoff provides exponential delay calculation for retry
// scheduling.
package backoff

import (
	"math"
	"time"
)

const maxShift = 62

// Exponential calculates exponential delay based on attempt number.
// The delay is calculated as base * 2^attempt with overflow protection.
// Negative attempts are treated as 0.
func Exponential(base time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}

	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1 << attempt)

	baseInt := int64(base)
	if baseInt > math.MaxInt64/multiplier {
		return time.Duration(math.MaxInt64)
	}

	return time.Duration(baseInt * multiplier)
}

// Capped returns min(cap, base * 2^attempt). A non-positive cap disables
// capping.
func Capped(base time.Duration, attempt int, cap time.Duration) time.Duration {
	delay := Exponential(base, attempt)
	if cap > 0 && delay > cap {
		return cap
	}
	return delay
}
