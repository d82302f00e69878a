package engine

import "sync/atomic"

// Clock hands out the seq stamped on each ledger record of a run. Seqs
// start at 1 and never repeat, whichever goroutine asks.
type Clock struct {
	last atomic.Int64
}

// NewClock returns a clock that has issued nothing.
func NewClock() *Clock {
	return &Clock{}
}

// Next issues the following seq.
func (c *Clock) Next() int64 {
	return c.last.Add(1)
}

// Current is the last seq issued, 0 before the first Next.
func (c *Clock) Current() int64 {
	return c.last.Load()
}
