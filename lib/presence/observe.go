// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"fmt"
	"sync/atomic"

	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// Observer receives a document's full remote presence after every
// visible change. Observers for one document are called one at a time
// in the order the changes were applied; they may call back into the
// Manager, but must not block.
type Observer func(Snapshot)

// Observation is a registered Observer. Close it when the consumer
// goes away; the last Close for a document unsubscribes from it and
// discards its cache.
type Observation struct {
	manager  *Manager
	document ref.DocumentID
	observer Observer
	closed   atomic.Bool
}

// Observe starts observing doc's remote presence. The first
// observation of a document subscribes to its channel. observer, if
// not nil, is called with the current snapshot before Observe returns
// (unless another goroutine is mid-delivery for doc, in which case it
// follows that delivery) and after every change.
func (m *Manager) Observe(doc ref.DocumentID, observer Observer) (*Observation, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	c, ok := m.caches[doc]
	if !ok {
		c = &cache{document: doc, entries: make(map[ref.PeerKey]*entry)}
		subscription, err := m.messenger.Subscribe(doc, func(payload []byte) { m.receive(doc, payload) })
		if err != nil {
			m.mu.Unlock()
			return nil, fmt.Errorf("presence: subscribing to %s: %w", doc, err)
		}
		c.subscription = subscription
		m.caches[doc] = c
		m.logger.Debug("presence observation started", "document", doc)
	}

	o := &Observation{manager: m, document: doc, observer: observer}
	c.observers = append(c.observers, o)
	snapshot := c.snapshotLocked()
	c.dispatch.Push(func() { o.deliver(snapshot) })
	m.mu.Unlock()

	c.dispatch.Run()
	return o, nil
}

// Document returns the observed document.
func (o *Observation) Document() ref.DocumentID { return o.document }

func (o *Observation) deliver(snapshot Snapshot) {
	if o.observer == nil || o.closed.Load() {
		return
	}
	o.observer(snapshot)
}

// Close stops delivery to the observer. It is idempotent.
func (o *Observation) Close() {
	if o.closed.Swap(true) {
		return
	}
	m := o.manager
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.caches[o.document]
	if !ok {
		return
	}
	for i, candidate := range c.observers {
		if candidate == o {
			c.observers = append(c.observers[:i], c.observers[i+1:]...)
			break
		}
	}
	if len(c.observers) > 0 {
		return
	}

	c.shutdownLocked()
	delete(m.caches, o.document)
	doc := o.document
	m.expiry.CancelFunc(func(key entryKey) bool { return key.document == doc })
	m.logger.Debug("presence observation stopped", "document", doc)
}
