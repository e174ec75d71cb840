// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"sync"

	"github.com/corkboard-foundation/corkboard/lib/codec"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// HandleState is where a Handle is in its lifecycle.
type HandleState int

const (
	// StateUnopened is the zero Handle, not obtained from Repo.Open.
	StateUnopened HandleState = iota
	StateOpen
	StateReleased
)

func (s HandleState) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateReleased:
		return "released"
	default:
		return "invalid"
	}
}

// Handle is one consumer's open reference to a document. Change and
// OnChange are valid only while the handle is open; using a released
// handle returns ErrReleased.
type Handle struct {
	repo   *Repo
	record *record

	mu        sync.Mutex
	state     HandleState
	observers map[uint64]struct{}
}

// State returns the handle's lifecycle state.
func (h *Handle) State() HandleState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Document returns the document's ID, or the zero ID for an unopened
// handle.
func (h *Handle) Document() ref.DocumentID {
	if h.record == nil {
		return ref.DocumentID{}
	}
	return h.record.id
}

// checkLocked reports why the handle cannot be used, if it cannot.
// Use after release is a caller bug and is logged as op.
func (h *Handle) checkLocked(op string) error {
	switch h.state {
	case StateOpen:
		return nil
	case StateReleased:
		h.repo.logger.Warn("document handle used after release", "operation", op, "document", h.record.id)
		return ErrReleased
	default:
		return ErrNotOpen
	}
}

// Doc returns a copy of the document's current content.
func (h *Handle) Doc() (Doc, error) {
	h.mu.Lock()
	err := h.checkLocked("doc")
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	h.record.mu.Lock()
	defer h.record.mu.Unlock()
	return codec.Clone(h.record.doc)
}

// OnChange registers callback for every change to the document, local
// or remote, including this handle's own. Callbacks receive their own
// copy and run one at a time in the order changes were applied. The
// returned cancel function is idempotent; Release cancels every
// callback the handle registered.
func (h *Handle) OnChange(callback func(Doc)) (cancel func(), err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.checkLocked("on change"); err != nil {
		return nil, err
	}
	rec := h.record
	rec.mu.Lock()
	rec.nextObserver++
	id := rec.nextObserver
	rec.observers[id] = callback
	rec.mu.Unlock()
	h.observers[id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.observers, id)
			h.mu.Unlock()
			rec.mu.Lock()
			delete(rec.observers, id)
			rec.mu.Unlock()
		})
	}, nil
}

// Change applies mutate to a private copy of the document. If mutate
// returns nil the copy becomes the new version: it is persisted, every
// observer is notified and peers are sent the new version. The
// committed content is returned.
func (h *Handle) Change(mutate func(Doc) error) (Doc, error) {
	h.mu.Lock()
	err := h.checkLocked("change")
	h.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if h.repo.isClosed() {
		return nil, ErrClosed
	}
	return h.repo.change(h.record, mutate)
}

// Release ends the handle. It must be called exactly once; a second
// call returns ErrReleased.
func (h *Handle) Release() error {
	h.mu.Lock()
	if err := h.checkLocked("release"); err != nil {
		h.mu.Unlock()
		return err
	}
	h.state = StateReleased
	observers := h.observers
	h.observers = nil
	h.mu.Unlock()

	rec := h.record
	rec.mu.Lock()
	for id := range observers {
		delete(rec.observers, id)
	}
	rec.mu.Unlock()
	h.repo.release(rec)
	return nil
}
