// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"reflect"
	"sort"
	"time"

	"github.com/corkboard-foundation/corkboard/lib/ref"
	"github.com/corkboard-foundation/corkboard/lib/serial"
	"github.com/corkboard-foundation/corkboard/transport"
)

// entryKey names one remote entry's expiry timer.
type entryKey struct {
	document ref.DocumentID
	peer     ref.PeerKey
}

// cache is the remote presence of one observed document. Guarded by
// Manager.mu except for dispatch, which has its own lock.
type cache struct {
	document     ref.DocumentID
	subscription transport.Subscription
	entries      map[ref.PeerKey]*entry
	observers    []*Observation

	// dispatch delivers snapshots to observers in the order the cache
	// produced them.
	dispatch serial.Queue
}

type entry struct {
	// data is nil once the entry has expired or departed.
	data     map[string]any
	lastSeen time.Time
}

// RemotePresence is one peer's entry in a Snapshot. Data is nil for a
// peer that was seen and has since departed or expired. Data is shared
// between observers and must not be modified.
type RemotePresence struct {
	Contact  ref.ContactID
	Device   ref.DeviceID
	Data     map[string]any
	LastSeen time.Time
}

// Live reports whether the peer is currently present.
func (p RemotePresence) Live() bool { return len(p.Data) > 0 }

// Snapshot is the full remote presence of a document at one moment,
// sorted by contact then device.
type Snapshot struct {
	Document ref.DocumentID
	Peers    []RemotePresence
}

// Live returns the peers that are currently present.
func (s Snapshot) Live() []RemotePresence {
	var live []RemotePresence
	for _, peer := range s.Peers {
		if peer.Live() {
			live = append(live, peer)
		}
	}
	return live
}

// FacetPresence is one live peer's payload for a single facet.
type FacetPresence struct {
	Contact ref.ContactID
	Device  ref.DeviceID
	// Value is the peer's payload for the facet. Present is false when
	// the peer is live but publishes nothing under the facet.
	Value   any
	Present bool
}

// Facet projects the live peers onto one facet.
func (s Snapshot) Facet(facet ref.FacetKey) []FacetPresence {
	var projected []FacetPresence
	for _, peer := range s.Live() {
		value, present := peer.Data[string(facet)]
		projected = append(projected, FacetPresence{
			Contact: peer.Contact,
			Device:  peer.Device,
			Value:   value,
			Present: present,
		})
	}
	return projected
}

// Known reports whether the snapshot has any entry, live or not, for
// the peer.
func (s Snapshot) Known(peer ref.PeerKey) bool {
	for _, p := range s.Peers {
		if p.Contact == peer.Contact && p.Device == peer.Device {
			return true
		}
	}
	return false
}

func (c *cache) snapshotLocked() Snapshot {
	peers := make([]RemotePresence, 0, len(c.entries))
	for key, e := range c.entries {
		peers = append(peers, RemotePresence{
			Contact:  key.Contact,
			Device:   key.Device,
			Data:     e.data,
			LastSeen: e.lastSeen,
		})
	}
	sort.Slice(peers, func(i, j int) bool {
		return ref.PeerKey{Contact: peers[i].Contact, Device: peers[i].Device}.Less(
			ref.PeerKey{Contact: peers[j].Contact, Device: peers[j].Device})
	})
	return Snapshot{Document: c.document, Peers: peers}
}

// publishLocked queues the current snapshot for the current observers.
func (c *cache) publishLocked() {
	if len(c.observers) == 0 {
		return
	}
	snapshot := c.snapshotLocked()
	observers := append([]*Observation(nil), c.observers...)
	c.dispatch.Push(func() {
		for _, o := range observers {
			o.deliver(snapshot)
		}
	})
}

// shutdownLocked unsubscribes and detaches every observer. The
// caller cancels the entries' timers.
func (c *cache) shutdownLocked() {
	if c.subscription != nil {
		c.subscription.Unsubscribe()
		c.subscription = nil
	}
	for _, o := range c.observers {
		o.closed.Store(true)
	}
	c.observers = nil
}

// receive applies one inbound payload for doc.
func (m *Manager) receive(doc ref.DocumentID, payload []byte) {
	msg, err := DecodeMessage(payload)
	if err != nil {
		m.metrics.Malformed.Inc()
		m.logger.Debug("dropping malformed presence message", "document", doc, "error", err)
		return
	}

	m.mu.Lock()
	c, ok := m.caches[doc]
	if !ok || m.closed || msg.Device == m.device {
		m.mu.Unlock()
		return
	}

	peer := ref.PeerKey{Contact: msg.Contact, Device: msg.Device}
	key := entryKey{document: doc, peer: peer}
	e, known := c.entries[peer]
	if !known {
		e = &entry{}
		c.entries[peer] = e
	}
	changed := !known

	if msg.refreshes() {
		m.metrics.HeartbeatsReceived.Inc()
		if !sameData(e.data, msg.Data) {
			changed = true
		}
		e.data = msg.Data
		if len(e.data) == 0 {
			e.data = nil
		}
		e.lastSeen = m.clock.Now()
		m.expiry.Arm(key, m.ttl, m.expire)
	} else {
		m.metrics.DeparturesReceived.Inc()
		m.expiry.Cancel(key)
		if e.data != nil {
			e.data = nil
			changed = true
		}
		m.logger.Debug("peer departed", "document", doc, "contact", peer.Contact, "device", peer.Device)
	}

	if changed {
		c.publishLocked()
	}
	m.mu.Unlock()
	c.dispatch.Run()
}

// expire is the TTL callback for one remote entry.
func (m *Manager) expire(key entryKey) {
	m.mu.Lock()
	c, ok := m.caches[key.document]
	if !ok || m.closed {
		m.mu.Unlock()
		return
	}
	e, ok := c.entries[key.peer]
	// A heartbeat that raced the timer has already pushed lastSeen
	// forward.
	if !ok || e.data == nil || m.clock.Now().Sub(e.lastSeen) < m.ttl {
		m.mu.Unlock()
		return
	}
	e.data = nil
	m.metrics.Expirations.Inc()
	m.logger.Debug("peer expired", "document", key.document, "contact", key.peer.Contact, "device", key.peer.Device)
	c.publishLocked()
	m.mu.Unlock()
	c.dispatch.Run()
}

// sameData compares two data maps, treating nil and empty as equal.
func sameData(a, b map[string]any) bool {
	if len(a) == 0 || len(b) == 0 {
		return len(a) == len(b)
	}
	return reflect.DeepEqual(a, b)
}
