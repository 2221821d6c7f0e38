package engine

import (
	"sync/atomic"

	"github.com/roach88/slowforest/internal/ir"
)

// Clock is the controller's logical clock.
//
// Every externally observable mutation is stamped with a strictly
// increasing time from this clock; wall-clock time is never used for
// ordering. Each controller owns its own Clock, so independent controllers
// never share a counter.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
// However, the Controller's single-writer loop means only one goroutine
// calls Next().
type Clock struct {
	now atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a clock whose next tick is start+1.
func NewClockAt(start ir.Time) *Clock {
	c := &Clock{}
	c.now.Store(int64(start))
	return c
}

// Next advances the clock and returns the new time.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() ir.Time {
	return ir.Time(c.now.Add(1))
}

// Current returns the current time without advancing.
func (c *Clock) Current() ir.Time {
	return ir.Time(c.now.Load())
}
