// Package backoff computes exponential reconnect delays with jitter.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Backoff doubles its delay on every call up to Max, adding up to 10% jitter.
// Not safe for concurrent use.
type Backoff struct {
	current time.Duration
	min     time.Duration
	max     time.Duration
	factor  float64
}

// New returns a Backoff starting at min and capped at max.
func New(min, max time.Duration) *Backoff {
	if max < min {
		max = min
	}
	return &Backoff{current: min, min: min, max: max, factor: 2.0}
}

// Next returns the delay to wait before the next attempt and advances the backoff.
func (b *Backoff) Next() time.Duration {
	var jitter time.Duration
	if tenth := int64(b.current) / 10; tenth > 0 {
		jitter = time.Duration(rand.Int64N(tenth))
	}
	d := b.current + jitter

	b.current = time.Duration(float64(b.current) * b.factor)
	if b.current > b.max {
		b.current = b.max
	}
	return d
}

// Reset returns the backoff to its initial delay.
func (b *Backoff) Reset() {
	b.current = b.min
}
