package autosave

import (
	"math/rand"
	"time"
)

// RetryPolicy decides whether a failed write is attempted again.
type RetryPolicy interface {
	// Next returns the delay before attempt+1, or false to give up.
	Next(attempt int) (time.Duration, bool)
}

// NoRetry gives up after the first failure.
type NoRetry struct{}

func (NoRetry) Next(int) (time.Duration, bool) { return 0, false }

// BoundedRetry retries up to Attempts extra times with exponential backoff
// starting at Base and capped at Max, with +/-20% jitter.
type BoundedRetry struct {
	Attempts int
	Base     time.Duration
	Max      time.Duration
}

func (b BoundedRetry) Next(attempt int) (time.Duration, bool) {
	if attempt > b.Attempts || b.Base <= 0 {
		return 0, false
	}
	d := b.Base
	for i := 1; i < attempt; i++ {
		d *= 2
		if b.Max > 0 && d >= b.Max {
			d = b.Max
			break
		}
	}
	j := 0.8 + 0.4*rand.Float64()
	return time.Duration(float64(d) * j), true
}
