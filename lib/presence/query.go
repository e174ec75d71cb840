// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import "github.com/corkboard-foundation/corkboard/lib/ref"

// Snapshot returns doc's current remote presence. ok is false when doc
// is not being observed.
func (m *Manager) Snapshot(doc ref.DocumentID) (snapshot Snapshot, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.caches[doc]
	if !ok {
		return Snapshot{Document: doc}, false
	}
	return c.snapshotLocked(), true
}

// Current returns the live peers of doc with their payloads for facet.
// A document that is not being observed has no known peers.
func (m *Manager) Current(doc ref.DocumentID, facet ref.FacetKey) []FacetPresence {
	snapshot, _ := m.Snapshot(doc)
	return snapshot.Facet(facet)
}

// ContactOnline reports whether contact is online: always true for the
// local contact, otherwise true when a live peer on the contact's own
// document belongs to it. Remote answers need an active observation of
// the contact's document; see WatchContact.
func (m *Manager) ContactOnline(contact ref.ContactID) bool {
	if self, _, ok := m.Identity(); ok && self == contact {
		return true
	}
	snapshot, _ := m.Snapshot(contact.Document())
	for _, peer := range snapshot.Live() {
		if peer.Contact == contact {
			return true
		}
	}
	return false
}

// DeviceOnline reports whether device is online: always true for the
// local device, otherwise true when a live peer on the device's own
// document is that device. See WatchDevice.
func (m *Manager) DeviceOnline(device ref.DeviceID) bool {
	if _, self, ok := m.Identity(); ok && self == device {
		return true
	}
	snapshot, _ := m.Snapshot(device.Document())
	for _, peer := range snapshot.Live() {
		if peer.Device == device {
			return true
		}
	}
	return false
}

// OnlineDevices returns contact's live devices as seen on the
// contact's own document. For the local contact the local device comes
// first.
func (m *Manager) OnlineDevices(contact ref.ContactID) []ref.DeviceID {
	var devices []ref.DeviceID
	selfContact, selfDevice, ok := m.Identity()
	if ok && selfContact == contact {
		devices = append(devices, selfDevice)
	}
	snapshot, _ := m.Snapshot(contact.Document())
	for _, peer := range snapshot.Live() {
		if peer.Contact == contact && peer.Device != selfDevice {
			devices = append(devices, peer.Device)
		}
	}
	return devices
}
