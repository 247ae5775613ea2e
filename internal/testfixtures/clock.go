// Package testfixtures holds deterministic time and id sources shared by the
// engine's tests.
package testfixtures

import (
	"sync"
	"time"
)

// ReferenceTime is where every fixture clock starts unless told otherwise.
func ReferenceTime() time.Time {
	return time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
}

// Clock is a manual time source. With a step set, each reading moves it
// forward by that step, so concurrent commands observe distinct instants.
type Clock struct {
	mu   sync.Mutex
	at   time.Time
	step time.Duration
}

// NewClock starts a clock at start, or at ReferenceTime for a zero start.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{at: start}
}

// Now reads the clock, then applies the step.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.at
	c.at = c.at.Add(c.step)
	return now
}

// Step makes every later Now call advance the clock by d.
func (c *Clock) Step(d time.Duration) {
	c.mu.Lock()
	c.step = d
	c.mu.Unlock()
}

// Advance jumps the clock forward and reports the new reading.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
	return c.at
}
