package backoff

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExponential(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5*time.Second, Exponential(5*time.Second, 0))
	assert.Equal(t, 10*time.Second, Exponential(5*time.Second, 1))
	assert.Equal(t, 40*time.Second, Exponential(5*time.Second, 3))
}

func TestExponentialNegativeAttempt(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5*time.Second, Exponential(5*time.Second, -3))
}

func TestExponentialZeroBase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Duration(0), Exponential(0, 10))
}

func TestExponentialOverflow(t *testing.T) {
	t.Parallel()

	assert.Equal(t, time.Duration(math.MaxInt64), Exponential(time.Hour, 62))
}

func TestCappedMonotonic(t *testing.T) {
	t.Parallel()

	base := 5 * time.Second
	limit := 10 * time.Minute

	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		d := Capped(base, attempt, limit)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		assert.LessOrEqual(t, d, limit, "attempt %d", attempt)
		prev = d
	}

	// attempt 7 -> 640s, above the 600s cap
	assert.Equal(t, limit, Capped(base, 7, limit))
	// attempt 6 -> 320s, below the cap
	assert.Equal(t, 320*time.Second, Capped(base, 6, limit))
}
