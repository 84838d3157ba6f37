// Package testutil holds shared test fixtures.
package testutil

import (
	"sync"
	"time"
)

// StepClock is a deterministic clock for tests. It returns a fixed
// start instant and advances by a fixed step on every call, so
// timestamps are reproducible across runs without ever colliding.
// Safe for concurrent use.
type StepClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewStepClock creates a StepClock. The first Now call returns start.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{next: start, step: step}
}

// Now returns the current instant and advances the clock by one step.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(c.step)
	return now
}

// Reset rewinds the clock to start so a scenario can be replayed with
// identical timestamps.
func (c *StepClock) Reset(start time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = start
}
