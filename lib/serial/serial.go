// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package serial provides Queue, an ordered outbox for work decided
// under one lock and performed after releasing it.
package serial

import "sync"

// Queue runs pushed functions one at a time, in push order, on
// whichever goroutine calls Run first. A function that pushes more
// work, directly or through a synchronous transport, does not
// deadlock: the nested Run returns at once and the outer loop picks the
// work up after the current function returns.
//
// Callers Push while holding the lock that decided the work's order and
// call Run after releasing it. The zero value is ready to use.
type Queue struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

// Push appends f.
func (q *Queue) Push(f func()) {
	q.mu.Lock()
	q.queue = append(q.queue, f)
	q.mu.Unlock()
}

// Run drains the queue unless another goroutine is already draining
// it.
func (q *Queue) Run() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	for len(q.queue) > 0 {
		f := q.queue[0]
		q.queue[0] = nil
		q.queue = q.queue[1:]
		q.mu.Unlock()
		f()
		q.mu.Lock()
	}
	q.running = false
	q.mu.Unlock()
}
