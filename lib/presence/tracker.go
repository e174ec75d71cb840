// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"errors"
	"sort"

	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// Acquire records one more consumer of doc and returns the new count.
// The first acquire starts the heartbeat loop; the first heartbeat
// goes out one interval later, or at once if local data changes.
func (m *Manager) Acquire(doc ref.DocumentID) (int, error) {
	if doc.IsZero() {
		return 0, &LifecycleError{Op: "acquire", Document: doc, Err: errors.New("zero document")}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}

	p, ok := m.open[doc]
	if !ok {
		m.nextGeneration++
		p = &publication{generation: m.nextGeneration}
		m.open[doc] = p
		m.scheduleLocked(doc, p)
		m.metrics.OpenDocuments.Inc()
		m.logger.Debug("presence publication started", "document", doc)
	}
	p.count++
	return p.count, nil
}

// Release records that one consumer of doc is done and returns the new
// count. When the count reaches zero the heartbeat loop stops and one
// departure is sent. Releasing a document with a zero count changes
// nothing and returns a *LifecycleError wrapping ErrOverRelease.
func (m *Manager) Release(doc ref.DocumentID) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}

	p, ok := m.open[doc]
	if !ok {
		m.metrics.OverReleases.Inc()
		m.mu.Unlock()
		m.logger.Warn("presence released more times than acquired", "document", doc)
		return 0, &LifecycleError{Op: "release", Document: doc, Err: ErrOverRelease}
	}
	p.count--
	if p.count > 0 {
		count := p.count
		m.mu.Unlock()
		return count, nil
	}

	p.timer.Stop()
	delete(m.open, doc)
	m.metrics.OpenDocuments.Dec()
	if m.identityLocked() {
		m.sendLocked(doc, Message{Contact: m.contact, Device: m.device, Departing: true}, m.metrics.DeparturesSent)
	}
	m.mu.Unlock()
	m.outbox.Run()

	m.logger.Debug("presence publication stopped", "document", doc)
	return 0, nil
}

// Count returns doc's open reference count.
func (m *Manager) Count(doc ref.DocumentID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.open[doc]; ok {
		return p.count
	}
	return 0
}

// OpenDocuments returns the documents with a positive count, sorted.
func (m *Manager) OpenDocuments() []ref.DocumentID {
	m.mu.Lock()
	docs := make([]ref.DocumentID, 0, len(m.open))
	for doc := range m.open {
		docs = append(docs, doc)
	}
	m.mu.Unlock()
	sort.Slice(docs, func(i, j int) bool { return docs[i].String() < docs[j].String() })
	return docs
}
