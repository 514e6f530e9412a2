// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"slices"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock for tests of keepalive tickers and
// event timestamps. Time stands still until Advance. It is safe for
// concurrent use.
type FakeClock struct {
	mu         sync.Mutex
	now        time.Time
	timers     []*pendingTimer
	registered *sync.Cond
}

// pendingTimer is an After channel or, with a non-zero period, a ticker.
type pendingTimer struct {
	due     time.Time
	period  time.Duration
	channel chan time.Time
	stopped bool
}

// Fake returns a FakeClock reading initial.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{now: initial}
	clock.registered = sync.NewCond(&clock.mu)
	return clock
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives once the clock has been advanced
// by d. With d <= 0 it receives immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.addLocked(&pendingTimer{due: c.now.Add(d), channel: channel})
	return channel
}

// NewTicker returns a Ticker firing every d of fake time. Panics if
// d <= 0.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := &pendingTimer{due: c.now.Add(d), period: d, channel: make(chan time.Time, 1)}
	c.addLocked(timer)
	return &Ticker{
		C: timer.channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			timer.stopped = true
		},
	}
}

func (c *FakeClock) addLocked(timer *pendingTimer) {
	c.timers = append(c.timers, timer)
	c.registered.Broadcast()
}

// Advance moves the clock forward by d and fires, in due order, every
// timer due by the new time. A ticker due several times over fires once
// and is rescheduled past the new time; a full channel drops the tick as
// time.Ticker does. Advance returns the number of timers that fired.
func (c *FakeClock) Advance(d time.Duration) int {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now

	var due []*pendingTimer
	c.timers = slices.DeleteFunc(c.timers, func(timer *pendingTimer) bool {
		if timer.stopped {
			return true
		}
		if timer.due.After(now) {
			return false
		}
		due = append(due, timer)
		if timer.period == 0 {
			return true
		}
		for !timer.due.After(now) {
			timer.due = timer.due.Add(timer.period)
		}
		return false
	})
	c.mu.Unlock()

	slices.SortStableFunc(due, func(a, b *pendingTimer) int { return a.due.Compare(b.due) })
	for _, timer := range due {
		select {
		case timer.channel <- now:
		default:
		}
	}
	return len(due)
}

// WaitForTimers blocks until at least n timers are pending. Tests call
// it before Advance so a goroutine that has not yet created its ticker
// does not miss the tick.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingLocked() < n {
		c.registered.Wait()
	}
}

// PendingCount returns the number of timers not yet fired or stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

func (c *FakeClock) pendingLocked() int {
	count := 0
	for _, timer := range c.timers {
		if !timer.stopped {
			count++
		}
	}
	return count
}
