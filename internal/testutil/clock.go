package testutil

import "sync/atomic"

// DeterministicClock hands out generation sequence numbers so that recorded
// history does not depend on what a store has already seen. The zero value
// is ready to use; the first Next returns 1.
type DeterministicClock struct {
	seq atomic.Int64
}

// NewDeterministicClock returns a clock at 0.
func NewDeterministicClock() *DeterministicClock {
	return &DeterministicClock{}
}

// Next advances the clock and returns the new value.
func (c *DeterministicClock) Next() int64 { return c.seq.Add(1) }

// Current returns the last value handed out, or 0.
func (c *DeterministicClock) Current() int64 { return c.seq.Load() }

// Reset rewinds the clock to 0 so a scenario can be replayed with the same
// sequence numbers.
func (c *DeterministicClock) Reset() { c.seq.Store(0) }
