// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeNowAdvances(t *testing.T) {
	c := Fake(epoch)
	c.Advance(1500 * time.Millisecond)
	if got, want := c.Now(), epoch.Add(1500*time.Millisecond); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}
}

func TestFakeAfterFiresAtDeadline(t *testing.T) {
	c := Fake(epoch)
	channel := c.After(3 * time.Second)

	c.Advance(2 * time.Second)
	select {
	case <-channel:
		t.Fatal("After fired early")
	default:
	}

	c.Advance(time.Second)
	select {
	case fired := <-channel:
		if !fired.Equal(epoch.Add(3 * time.Second)) {
			t.Errorf("fired at %v, want deadline %v", fired, epoch.Add(3*time.Second))
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	c := Fake(epoch)
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) should deliver immediately")
	}
	if c.PendingCount() != 0 {
		t.Fatalf("PendingCount() = %d, want 0", c.PendingCount())
	}
}

func TestFakeAfterFuncStopAndReset(t *testing.T) {
	c := Fake(epoch)
	calls := 0
	timer := c.AfterFunc(2*time.Second, func() { calls++ })

	if !timer.Stop() {
		t.Fatal("Stop() on a pending timer should return true")
	}
	if timer.Stop() {
		t.Fatal("second Stop() should return false")
	}
	c.Advance(5 * time.Second)
	if calls != 0 {
		t.Fatalf("stopped timer fired %d times", calls)
	}

	if timer.Reset(time.Second) {
		t.Fatal("Reset() of a stopped timer should report it was not pending")
	}
	c.Advance(time.Second)
	if calls != 1 {
		t.Fatalf("reset timer fired %d times, want 1", calls)
	}
}

func TestFakeAfterFuncResetBumpsDeadline(t *testing.T) {
	c := Fake(epoch)
	var firedAt time.Time
	timer := c.AfterFunc(5*time.Second, func() { firedAt = c.Now() })

	c.Advance(4 * time.Second)
	if !timer.Reset(5 * time.Second) {
		t.Fatal("Reset() should report the timer was pending")
	}
	c.Advance(4 * time.Second)
	if !firedAt.IsZero() {
		t.Fatal("timer fired at its original deadline after Reset")
	}
	c.Advance(time.Second)
	if want := epoch.Add(9 * time.Second); !firedAt.Equal(want) {
		t.Fatalf("fired at %v, want %v", firedAt, want)
	}
}

func TestFakeNowInsideCallbackIsDeadline(t *testing.T) {
	c := Fake(epoch)
	var seen []time.Duration
	for _, d := range []time.Duration{3 * time.Second, time.Second, 2 * time.Second} {
		c.AfterFunc(d, func() { seen = append(seen, c.Now().Sub(epoch)) })
	}

	c.Advance(10 * time.Second)

	want := []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}
	if len(seen) != len(want) {
		t.Fatalf("fired %d callbacks, want %d", len(seen), len(want))
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("callback %d saw Now()=+%v, want +%v", i, seen[i], want[i])
		}
	}
	if got := c.Now(); !got.Equal(epoch.Add(10 * time.Second)) {
		t.Errorf("Now() after Advance = %v", got)
	}
}

func TestFakeCallbackRearmsWithinWindow(t *testing.T) {
	c := Fake(epoch)
	count := 0
	var tick func()
	tick = func() {
		count++
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(5 * time.Second)
	if count != 5 {
		t.Fatalf("self-rearming callback fired %d times in 5s, want 5", count)
	}
}

func TestFakeTickerDropsWhenFull(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Second)
	defer ticker.Stop()

	c.Advance(5 * time.Second)

	select {
	case <-ticker.C:
	default:
		t.Fatal("expected one buffered tick")
	}
	select {
	case <-ticker.C:
		t.Fatal("expected the remaining ticks to be dropped")
	default:
	}
	if c.PendingCount() != 1 {
		t.Fatalf("ticker should stay scheduled, PendingCount() = %d", c.PendingCount())
	}
}

func TestFakeTickerStop(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(time.Second)
	ticker.Stop()
	c.Advance(3 * time.Second)

	select {
	case <-ticker.C:
		t.Fatal("stopped ticker delivered a tick")
	default:
	}
}

func TestFakeNewTickerPanicsOnZero(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewTicker(0) should panic")
		}
	}()
	Fake(epoch).NewTicker(0)
}

func TestFakeWaitForTimers(t *testing.T) {
	c := Fake(epoch)
	done := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-c.After(time.Second)
		}()
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	c.WaitForTimers(3)
	c.Advance(time.Second)

	select {
	case <-done:
	case <-time.After(5 * time.Second): //nolint:realclock test hang prevention
		t.Fatal("waiters were not released by Advance")
	}
}

func TestClockImplementations(t *testing.T) {
	var _ Clock = (*FakeClock)(nil)
	var _ Clock = Real()
}
