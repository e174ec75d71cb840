// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"

	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// Compile-time interface check.
var _ Messenger = (*MemoryMessenger)(nil)

// DropFunc decides whether the hub loses one delivery. It is called
// once per (sender, recipient) pair for every message.
type DropFunc func(channel string, from, to ref.DeviceID, doc ref.DocumentID) bool

// MemoryHub is an in-process network for tests and single-process
// deployments. Messages are delivered synchronously: when Message
// returns, every subscribed device's handlers have run. Devices joined
// to the same hub see each other's messages on the same channel.
type MemoryHub struct {
	mu      sync.RWMutex
	members map[ref.DeviceID]*router
	drop    DropFunc
}

// NewMemoryHub returns an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{members: make(map[ref.DeviceID]*router)}
}

// SetDrop installs a loss hook. Pass nil to deliver everything.
func (h *MemoryHub) SetDrop(drop DropFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop = drop
}

// Messenger returns device's view of the hub on channel. Messengers for
// the same device on different channels share one membership.
func (h *MemoryHub) Messenger(device ref.DeviceID, channel string) *MemoryMessenger {
	h.mu.Lock()
	defer h.mu.Unlock()
	member, ok := h.members[device]
	if !ok {
		member = newRouter()
		h.members[device] = member
	}
	return &MemoryMessenger{hub: h, device: device, channel: channel, router: member}
}

// Disconnect removes device from the hub, as if its process had died:
// nothing more is delivered to or from it and no departure is sent.
func (h *MemoryHub) Disconnect(device ref.DeviceID) {
	h.mu.Lock()
	member := h.members[device]
	delete(h.members, device)
	h.mu.Unlock()
	if member != nil {
		member.close()
	}
}

func (h *MemoryHub) publish(from ref.DeviceID, key routeKey, payload []byte) error {
	h.mu.RLock()
	if _, ok := h.members[from]; !ok {
		h.mu.RUnlock()
		return ErrClosed
	}
	type target struct {
		device ref.DeviceID
		router *router
	}
	targets := make([]target, 0, len(h.members))
	for device, member := range h.members {
		if device == from {
			continue
		}
		if h.drop != nil && h.drop(key.channel, from, device, key.document) {
			continue
		}
		targets = append(targets, target{device: device, router: member})
	}
	h.mu.RUnlock()

	for _, t := range targets {
		t.router.deliver(key, payload)
	}
	return nil
}

// MemoryMessenger is one device's channel on a MemoryHub.
type MemoryMessenger struct {
	hub     *MemoryHub
	device  ref.DeviceID
	channel string
	router  *router
}

// Message delivers payload to every other device on the hub that has
// subscribed to doc on this messenger's channel.
func (m *MemoryMessenger) Message(_ context.Context, doc ref.DocumentID, payload []byte) error {
	return m.hub.publish(m.device, routeKey{channel: m.channel, document: doc}, payload)
}

// Subscribe registers handler for doc on this messenger's channel.
func (m *MemoryMessenger) Subscribe(doc ref.DocumentID, handler Handler) (Subscription, error) {
	return m.router.subscribe(routeKey{channel: m.channel, document: doc}, handler)
}

// Close disconnects the device from the hub. Every messenger the
// device holds on the hub stops working.
func (m *MemoryMessenger) Close() error {
	m.hub.Disconnect(m.device)
	return nil
}
