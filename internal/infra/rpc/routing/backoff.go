package routing

import (
	"math/rand/v2"
	"time"
)

// BackoffConfig defines retry delays.
type BackoffConfig struct {
	Base         time.Duration
	Max          time.Duration
	MaxDoublings int
}

// DefaultBackoff doubles from 1s per consecutive error, five times at
// most, capped at 30s.
var DefaultBackoff = BackoffConfig{
	Base:         1 * time.Second,
	Max:          30 * time.Second,
	MaxDoublings: 5,
}

// Ceiling returns the un-jittered delay for the given consecutive error
// count.
func (c BackoffConfig) Ceiling(attempt int) time.Duration {
	shift := min(max(attempt, 0), c.MaxDoublings)
	d := c.Base << shift
	if d > c.Max || d <= 0 {
		d = c.Max
	}
	return d
}

// Jitter returns a value in [0, n].
type Jitter func(n int64) int64

// RandomJitter draws uniformly from [0, n].
func RandomJitter(n int64) int64 {
	if n <= 0 {
		return 0
	}
	return rand.Int64N(n + 1)
}

// Delay returns the sleep before the next retry: half the ceiling plus up
// to another half of jitter.
func (c BackoffConfig) Delay(attempt int, jitter Jitter) time.Duration {
	half := c.Ceiling(attempt) / 2
	if jitter == nil {
		jitter = RandomJitter
	}
	j := jitter(int64(half))
	j = min(max(j, 0), int64(half))
	return half + time.Duration(j)
}
