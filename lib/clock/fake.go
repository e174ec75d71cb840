// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"container/heap"
	"sync"
	"time"
)

// FakeClock is a manually advanced Clock. It is safe for concurrent
// use. Do not call Advance from inside an AfterFunc callback.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	pending waiterHeap
	nextSeq uint64
	changed *sync.Cond
}

// Fake returns a FakeClock reading initial until advanced.
func Fake(initial time.Time) *FakeClock {
	c := &FakeClock{now: initial}
	c.changed = sync.NewCond(&c.mu)
	return c
}

// waiter is one pending timer, ticker or After channel.
type waiter struct {
	deadline time.Time
	seq      uint64 // tie-break: equal deadlines fire in arm order
	index    int    // position in the heap, -1 when not queued

	channel  chan time.Time // After and Ticker
	callback func()         // AfterFunc
	period   time.Duration  // non-zero for tickers
}

type waiterHeap []*waiter

func (h waiterHeap) Len() int { return len(h) }

func (h waiterHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h waiterHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *waiterHeap) Push(x any) {
	w := x.(*waiter)
	w.index = len(*h)
	*h = append(*h, w)
}

func (h *waiterHeap) Pop() any {
	old := *h
	last := len(old) - 1
	w := old[last]
	old[last] = nil
	w.index = -1
	*h = old[:last]
	return w
}

// scheduleLocked queues w to fire d after the current time.
func (c *FakeClock) scheduleLocked(w *waiter, d time.Duration) {
	w.deadline = c.now.Add(d)
	w.seq = c.nextSeq
	c.nextSeq++
	heap.Push(&c.pending, w)
	c.changed.Broadcast()
}

// unscheduleLocked removes w from the queue and reports whether it
// was queued.
func (c *FakeClock) unscheduleLocked(w *waiter) bool {
	if w.index < 0 {
		return false
	}
	heap.Remove(&c.pending, w.index)
	return true
}

// Now returns the fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After returns a channel that receives once the clock has been
// advanced by d.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.now
		return channel
	}
	c.scheduleLocked(&waiter{channel: channel, index: -1}, d)
	return channel
}

// AfterFunc schedules f. A non-positive d calls f before AfterFunc
// returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	w := &waiter{callback: f, index: -1}
	if d <= 0 {
		f()
	} else {
		c.mu.Lock()
		c.scheduleLocked(w, d)
		c.mu.Unlock()
	}
	return &Timer{
		stop: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			return c.unscheduleLocked(w)
		},
		reset: func(d time.Duration) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			wasPending := c.unscheduleLocked(w)
			c.scheduleLocked(w, d)
			return wasPending
		},
	}
}

// NewTicker returns a ticker that fires every d of advanced time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	channel := make(chan time.Time, 1)
	w := &waiter{channel: channel, period: d, index: -1}

	c.mu.Lock()
	c.scheduleLocked(w, d)
	c.mu.Unlock()

	return &Ticker{
		C: channel,
		stop: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.unscheduleLocked(w)
		},
		reset: func(d time.Duration) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.unscheduleLocked(w)
			w.period = d
			c.scheduleLocked(w, d)
		},
	}
}

// Advance moves the clock forward by d, firing every timer whose
// deadline falls inside the window in deadline order. Tickers that
// span several periods fire once per period; ticks that find C full
// are dropped.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		if c.pending.Len() == 0 || c.pending[0].deadline.After(target) {
			c.now = target
			c.mu.Unlock()
			return
		}
		w := heap.Pop(&c.pending).(*waiter)
		c.now = w.deadline
		fired := c.now
		if w.period > 0 {
			w.deadline = w.deadline.Add(w.period)
			w.seq = c.nextSeq
			c.nextSeq++
			heap.Push(&c.pending, w)
		}
		c.mu.Unlock()

		if w.callback != nil {
			w.callback()
			continue
		}
		select {
		case w.channel <- fired:
		default:
		}
	}
}

// WaitForTimers blocks until at least n timers are pending.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pending.Len() < n {
		c.changed.Wait()
	}
}

// PendingCount returns the number of timers that have not fired or
// been stopped.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending.Len()
}
