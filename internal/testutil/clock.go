package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start time of a FakeClock: 2024-03-01 12:00:00 UTC.
var Epoch = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

// FakeClock is a settable wall clock for tests.
//
// Pass clock.Now wherever a component accepts a func() time.Time. Time only
// moves when the test calls Advance or Set, so record dates, journal rows
// and backup filenames are reproducible.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a clock reading start. A zero start means Epoch.
func NewFakeClock(start time.Time) *FakeClock {
	if start.IsZero() {
		start = Epoch
	}
	return &FakeClock{now: start}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set moves the clock to t.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// ManualTimer is a timer fired by the test instead of by time passing.
type ManualTimer struct {
	Delay time.Duration

	mu      sync.Mutex
	fn      func()
	stopped bool
	fired   bool
}

// Stop prevents the timer from firing. Reports whether it was pending.
func (t *ManualTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	pending := !t.stopped && !t.fired
	t.stopped = true
	return pending
}

// Stopped reports whether Stop was called.
func (t *ManualTimer) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Fire runs the callback synchronously unless the timer was stopped or
// already fired.
func (t *ManualTimer) Fire() bool {
	t.mu.Lock()
	if t.stopped || t.fired {
		t.mu.Unlock()
		return false
	}
	t.fired = true
	fn := t.fn
	t.mu.Unlock()

	fn()
	return true
}

// TimerQueue records every timer scheduled through AfterFunc.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type TimerQueue struct {
	mu     sync.Mutex
	timers []*ManualTimer
}

// AfterFunc schedules fn as a ManualTimer. It matches time.AfterFunc's shape.
func (q *TimerQueue) AfterFunc(d time.Duration, fn func()) *ManualTimer {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := &ManualTimer{Delay: d, fn: fn}
	q.timers = append(q.timers, t)
	return t
}

// All returns every timer scheduled so far, oldest first.
func (q *TimerQueue) All() []*ManualTimer {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*ManualTimer(nil), q.timers...)
}

// Last returns the most recently scheduled timer, or nil.
func (q *TimerQueue) Last() *ManualTimer {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.timers) == 0 {
		return nil
	}
	return q.timers[len(q.timers)-1]
}
