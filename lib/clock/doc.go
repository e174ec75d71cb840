// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that every timer
// in Corkboard (heartbeat loops, presence TTLs, transport poll loops)
// can be driven deterministically in tests.
//
// Production code holds a [Clock] and calls it instead of time.Now,
// time.After, time.AfterFunc or time.NewTicker:
//
//	type Manager struct {
//	    clock clock.Clock
//	}
//
//	m := &Manager{clock: clock.Real()}
//
// Tests use a [FakeClock], whose time only moves when Advance is called:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	m := &Manager{clock: c}
//	c.Advance(5 * time.Second)
//
// # Fake timer ordering
//
// FakeClock keeps pending timers in a deadline-ordered heap. Advance
// pops them one at a time; while a timer fires, Now reports that
// timer's deadline, so code that records "last seen" timestamps from
// inside a callback observes the time the callback was scheduled for.
// Callbacks registered by AfterFunc run synchronously on the goroutine
// that called Advance, and timers they arm during the same Advance fire
// too if their deadline is still within the advanced window.
//
// Goroutines that block on After or a Ticker register their timer
// asynchronously. Call WaitForTimers before Advance to close that race.
package clock
