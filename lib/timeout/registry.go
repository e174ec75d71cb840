// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package timeout

import (
	"sync"
	"time"

	"github.com/corkboard-foundation/corkboard/lib/clock"
)

// Registry maps keys to pending expiry timers. The zero value is not
// usable; construct with [New].
type Registry[K comparable] struct {
	clock clock.Clock

	mu      sync.Mutex
	entries map[K]*entry
	nextGen uint64
	stopped bool
}

type entry struct {
	generation uint64
	timer      *clock.Timer
}

// New returns an empty Registry whose timers run on c.
func New[K comparable](c clock.Clock) *Registry[K] {
	return &Registry[K]{
		clock:   c,
		entries: make(map[K]*entry),
	}
}

// Arm schedules onExpire(key) to run after d, replacing any timer
// already pending for key. onExpire runs on the clock's timer goroutine
// (or inside FakeClock.Advance) without the registry lock held, so it
// may call back into the registry. Arm after Stop does nothing.
func (r *Registry[K]) Arm(key K, d time.Duration, onExpire func(K)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}

	if previous, ok := r.entries[key]; ok {
		previous.timer.Stop()
	}

	r.nextGen++
	generation := r.nextGen
	e := &entry{generation: generation}
	r.entries[key] = e
	// A non-positive d would make a fake clock run the callback
	// synchronously while we still hold the lock.
	if d <= 0 {
		d = time.Nanosecond
	}
	e.timer = r.clock.AfterFunc(d, func() { r.fire(key, generation, onExpire) })
}

func (r *Registry[K]) fire(key K, generation uint64, onExpire func(K)) {
	r.mu.Lock()
	current, ok := r.entries[key]
	if !ok || current.generation != generation {
		r.mu.Unlock()
		return
	}
	delete(r.entries, key)
	r.mu.Unlock()

	onExpire(key)
}

// Cancel disarms key and reports whether a timer was pending.
func (r *Registry[K]) Cancel(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(r.entries, key)
	return true
}

// CancelFunc disarms every key for which match returns true and
// returns how many were pending.
func (r *Registry[K]) CancelFunc(match func(K) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancelled := 0
	for key, e := range r.entries {
		if match(key) {
			e.timer.Stop()
			delete(r.entries, key)
			cancelled++
		}
	}
	return cancelled
}

// Pending reports whether key has an armed timer.
func (r *Registry[K]) Pending(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Len returns the number of armed keys.
func (r *Registry[K]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Stop cancels every pending timer. Later calls to Arm are ignored.
func (r *Registry[K]) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, e := range r.entries {
		e.timer.Stop()
		delete(r.entries, key)
	}
	r.stopped = true
}
