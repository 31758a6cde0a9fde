// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts wall-clock access so time-driven behavior
// (auction windows, health probe intervals, heartbeats) can be driven
// deterministically in tests. Production code takes a Clock and is
// handed Real(); tests hand it Fake() and move time with Advance.
package clock

import "time"

// Clock is the time surface the lattice packages depend on. It covers
// reading the current time, one-shot waits, and periodic ticks; code
// that needs these must take a Clock rather than call the time package
// directly, or it cannot be tested without real sleeps.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once, after d has
	// elapsed. A non-positive d delivers immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering on C every d. Panics if
	// d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C. C is buffered with capacity 1;
// a consumer that falls behind loses ticks instead of queueing them,
// the same contract as time.Ticker. Stop releases the ticker; it does
// not close C.
type Ticker struct {
	C <-chan time.Time

	stop  func()
	reset func(time.Duration)
}

func (t *Ticker) Stop() { t.stop() }

// Reset changes the interval and restarts the cycle; the next tick
// lands after the new duration.
func (t *Ticker) Reset(d time.Duration) { t.reset(d) }
