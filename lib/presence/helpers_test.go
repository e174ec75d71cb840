// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/corkboard-foundation/corkboard/lib/clock"
	"github.com/corkboard-foundation/corkboard/lib/codec"
	"github.com/corkboard-foundation/corkboard/lib/ref"
	"github.com/corkboard-foundation/corkboard/lib/testutil"
	"github.com/corkboard-foundation/corkboard/transport"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func contactOf(name string) ref.ContactID {
	return ref.ContactFromDocument(ref.NewDocumentID([]byte("contact:" + name)))
}

func deviceOf(name string) ref.DeviceID {
	return ref.DeviceFromDocument(ref.NewDocumentID([]byte("device:" + name)))
}

func documentOf(name string) ref.DocumentID {
	return ref.NewDocumentID([]byte("document:" + name))
}

// network is a set of devices sharing one fake clock and one
// in-process hub.
type network struct {
	t     *testing.T
	clock *clock.FakeClock
	hub   *transport.MemoryHub
}

func newNetwork(t *testing.T) *network {
	return &network{t: t, clock: clock.Fake(epoch), hub: transport.NewMemoryHub()}
}

// manager returns a Manager for device, owned by contact, with its
// identity set.
func (n *network) manager(contact, device string) *Manager {
	n.t.Helper()
	m := n.anonymous(device)
	if err := m.SetIdentity(contactOf(contact), deviceOf(device)); err != nil {
		n.t.Fatalf("SetIdentity: %v", err)
	}
	return m
}

// anonymous returns a Manager for device without an identity.
func (n *network) anonymous(device string) *Manager {
	n.t.Helper()
	m, err := NewManager(Config{
		Messenger: n.hub.Messenger(deviceOf(device), transport.ChannelPresence),
		Clock:     n.clock,
		Logger:    testutil.Logger(n.t),
	})
	if err != nil {
		n.t.Fatalf("NewManager: %v", err)
	}
	n.t.Cleanup(func() { m.Close() })
	return m
}

// sniffer records every presence message sent on doc.
type sniffer struct {
	mu       sync.Mutex
	messages []Message
}

func (n *network) sniff(doc ref.DocumentID) *sniffer {
	n.t.Helper()
	s := &sniffer{}
	messenger := n.hub.Messenger(deviceOf(testutil.UniqueID("sniffer")), transport.ChannelPresence)
	_, err := messenger.Subscribe(doc, func(payload []byte) {
		msg, err := DecodeMessage(payload)
		if err != nil {
			n.t.Errorf("sniffer saw a malformed message: %v", err)
			return
		}
		s.mu.Lock()
		s.messages = append(s.messages, msg)
		s.mu.Unlock()
	})
	if err != nil {
		n.t.Fatalf("Subscribe: %v", err)
	}
	return s
}

func (s *sniffer) count(match func(Message) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, msg := range s.messages {
		if match(msg) {
			n++
		}
	}
	return n
}

func (s *sniffer) heartbeats() int { return s.count(func(m Message) bool { return m.Heartbeat }) }
func (s *sniffer) departures() int { return s.count(func(m Message) bool { return m.Departing }) }

func (s *sniffer) last() Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return Message{}
	}
	return s.messages[len(s.messages)-1]
}

// rawPeer injects hand-built payloads into the hub as device.
type rawPeer struct {
	t         *testing.T
	messenger *transport.MemoryMessenger
}

func (n *network) raw(device string) *rawPeer {
	return &rawPeer{t: n.t, messenger: n.hub.Messenger(deviceOf(device), transport.ChannelPresence)}
}

func (r *rawPeer) send(doc ref.DocumentID, msg Message) {
	r.t.Helper()
	payload, err := codec.Marshal(msg)
	if err != nil {
		r.t.Fatalf("Marshal: %v", err)
	}
	r.sendBytes(doc, payload)
}

func (r *rawPeer) sendBytes(doc ref.DocumentID, payload []byte) {
	r.t.Helper()
	if err := r.messenger.Message(context.Background(), doc, payload); err != nil {
		r.t.Fatalf("Message: %v", err)
	}
}

// snapshots records what an observer was shown.
type snapshots struct {
	mu  sync.Mutex
	all []Snapshot
}

func (s *snapshots) observe(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.all = append(s.all, snapshot)
}

func (s *snapshots) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.all)
}

func (s *snapshots) latest() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.all) == 0 {
		return Snapshot{}
	}
	return s.all[len(s.all)-1]
}

// livePeer reports whether device is live in snapshot.
func livePeer(snapshot Snapshot, device ref.DeviceID) bool {
	for _, peer := range snapshot.Live() {
		if peer.Device == device {
			return true
		}
	}
	return false
}

// sees reports whether m currently has device live on doc.
func sees(m *Manager, doc ref.DocumentID, device ref.DeviceID) bool {
	snapshot, _ := m.Snapshot(doc)
	return livePeer(snapshot, device)
}
