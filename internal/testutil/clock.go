// Package testutil provides deterministic stand-ins for the engine's
// injected dependencies: a fixed-step clock and a sequential
// instance-id source. With both plugged in, a reconciliation run
// produces byte-identical ledgers and file contents every time, which
// is what golden-file comparison needs.
package testutil

import (
	"sync"
	"time"
)

// DefaultClockStart is the instant test clocks start at unless a test
// picks its own.
var DefaultClockStart = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// Clock is a thread-safe deterministic time source. Every call to Now
// returns the current instant and advances it by a fixed step, so
// timestamps within one test are distinct but reproducible.
type Clock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewClock creates a clock starting at start, advancing by step per
// Now call.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{now: start, step: step}
}

// Now returns the current instant and advances the clock. It satisfies
// the engine's clock dependency.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

// Set repositions the clock, for tests that simulate elapsed time
// between runs.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
