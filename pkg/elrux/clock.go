package elrux

import (
	"time"

	"go.uber.org/atomic"
)

// timestampNil marks a timestamp field as unset (node never touched, or
// touched fewer than the tier requires).
const timestampNil int64 = -1

// Clock is a strictly non-decreasing nanosecond source. Two calls that would
// otherwise observe the same instant are resolved by advancing the second
// by one unit, so callers never see equal timestamps for distinct touches
// (spec's tie-break choice for deterministic ordering).
//
// A Clock is cheap to construct and holds no package-level state, per the
// "explicitly constructed singleton" design: each Engine owns one.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a Clock reading from the monotonic wall-clock source.
func NewClock() *Clock {
	return &Clock{}
}

// Now returns a timestamp strictly greater than every previous value
// returned by this Clock.
func (c *Clock) Now() int64 {
	for {
		prev := c.last.Load()
		next := time.Now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if c.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}
