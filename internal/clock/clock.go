// Package clock abstracts the source of "now" so that live trading and
// historical replay drive the exact same engine code paths.
package clock

import (
	"sync"
	"time"
)

// Clock is the swappable time provider consumed by the execution engine and
// the exit evaluator.
type Clock interface {
	Now() time.Time
}

// Real reads the wall clock.
type Real struct{}

// Now returns the current UTC wall-clock time.
func (Real) Now() time.Time {
	return time.Now().UTC()
}

// Replay is a bar-sequence clock advanced explicitly by the backtest
// harness. Safe for concurrent readers.
type Replay struct {
	mu  sync.RWMutex
	now time.Time
}

// NewReplay creates a replay clock positioned at start.
func NewReplay(start time.Time) *Replay {
	return &Replay{now: start.UTC()}
}

// Now returns the current simulated time.
func (c *Replay) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Set positions the clock at t. The harness calls this once per bar.
func (c *Replay) Set(t time.Time) {
	c.mu.Lock()
	c.now = t.UTC()
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new position.
func (c *Replay) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

var (
	_ Clock = Real{}
	_ Clock = (*Replay)(nil)
)
