// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"fmt"

	"github.com/corkboard-foundation/corkboard/lib/codec"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// scheduleLocked arms the next heartbeat for p.
func (m *Manager) scheduleLocked(doc ref.DocumentID, p *publication) {
	generation := p.generation
	p.timer = m.clock.AfterFunc(m.interval, func() { m.heartbeat(doc, generation) })
}

// heartbeat is the timer callback of one open period of doc.
func (m *Manager) heartbeat(doc ref.DocumentID, generation uint64) {
	m.mu.Lock()
	p, ok := m.open[doc]
	if !ok || p.generation != generation || m.closed {
		m.mu.Unlock()
		return
	}
	m.scheduleLocked(doc, p)
	m.announceLocked(doc)
	m.mu.Unlock()
	m.outbox.Run()
}

// announceLocked queues a heartbeat carrying doc's local data, or
// counts a suppressed publication when the identity is unknown.
func (m *Manager) announceLocked(doc ref.DocumentID) {
	if !m.identityLocked() {
		m.metrics.Suppressed.Inc()
		return
	}
	m.sendLocked(doc, Message{
		Contact:   m.contact,
		Device:    m.device,
		Heartbeat: true,
		Data:      m.outgoingLocked(doc),
	}, m.metrics.HeartbeatsSent)
}

// outgoingLocked returns doc's local data as a wire map, or nil when
// no facet is set.
func (m *Manager) outgoingLocked(doc ref.DocumentID) map[string]any {
	facets := m.local[doc]
	if len(facets) == 0 {
		return nil
	}
	data := make(map[string]any, len(facets))
	for facet, payload := range facets {
		data[string(facet)] = payload
	}
	return data
}

// SetLocal sets this device's payload for one facet of doc, leaving
// other facets alone. The payload is copied and must be
// CBOR-serializable. If doc is open the new data is sent immediately;
// otherwise it is held until doc is acquired.
func (m *Manager) SetLocal(doc ref.DocumentID, facet ref.FacetKey, payload any) error {
	if facet == "" {
		return fmt.Errorf("presence: empty facet for %s", doc)
	}
	if payload == nil {
		return m.ClearLocal(doc, facet)
	}
	copied, err := codec.Clone(payload)
	if err != nil {
		return fmt.Errorf("presence: facet %q payload is not serializable: %w", facet, err)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.setLocalLocked(doc, facet, copied)
	m.mu.Unlock()
	m.outbox.Run()
	return nil
}

// setLocalLocked stores an already copied payload and announces it if
// doc is open.
func (m *Manager) setLocalLocked(doc ref.DocumentID, facet ref.FacetKey, copied any) {
	facets := m.local[doc]
	if facets == nil {
		facets = make(map[ref.FacetKey]any)
		m.local[doc] = facets
	}
	facets[facet] = copied
	if _, open := m.open[doc]; open {
		m.announceLocked(doc)
	}
}

// ClearLocal removes this device's payload for one facet of doc. If
// doc is open the remaining data is sent immediately.
func (m *Manager) ClearLocal(doc ref.DocumentID, facet ref.FacetKey) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.clearLocalLocked(doc, facet)
	m.mu.Unlock()
	m.outbox.Run()
	return nil
}

func (m *Manager) clearLocalLocked(doc ref.DocumentID, facet ref.FacetKey) {
	facets := m.local[doc]
	if _, ok := facets[facet]; !ok {
		return
	}
	delete(facets, facet)
	if len(facets) == 0 {
		delete(m.local, doc)
	}
	if _, open := m.open[doc]; open {
		m.announceLocked(doc)
	}
}

// Local returns a copy of this device's outgoing payloads for doc.
func (m *Manager) Local(doc ref.DocumentID) map[ref.FacetKey]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	facets := make(map[ref.FacetKey]any, len(m.local[doc]))
	for facet, payload := range m.local[doc] {
		if copied, err := codec.Clone(payload); err == nil {
			facets[facet] = copied
		}
	}
	return facets
}
