// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"sync"
	"time"

	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// Compile-time interface check.
var _ Signaler = (*MemorySignaler)(nil)

// MemorySignaler is an in-process Signaler. Two WebRTCMesh instances
// sharing one MemorySignaler can connect without any signaling
// service.
type MemorySignaler struct {
	mu       sync.Mutex
	offers   map[signalKey]SignalMessage
	answers  map[signalKey]SignalMessage
	lastSeen map[string]time.Time // "offers:" or "answers:" + key
}

// NewMemorySignaler returns an empty signaler.
func NewMemorySignaler() *MemorySignaler {
	return &MemorySignaler{
		offers:   make(map[signalKey]SignalMessage),
		answers:  make(map[signalKey]SignalMessage),
		lastSeen: make(map[string]time.Time),
	}
}

func (s *MemorySignaler) PublishOffer(_ context.Context, device, target ref.DeviceID, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers[signalKey{offerer: device, target: target}] = SignalMessage{
		Peer:      device,
		SDP:       sdp,
		Timestamp: time.Now(),
	}
	return nil
}

func (s *MemorySignaler) PublishAnswer(_ context.Context, offerer, device ref.DeviceID, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers[signalKey{offerer: offerer, target: device}] = SignalMessage{
		Peer:      device,
		SDP:       sdp,
		Timestamp: time.Now(),
	}
	return nil
}

func (s *MemorySignaler) PollOffers(_ context.Context, device ref.DeviceID) ([]SignalMessage, error) {
	return s.poll("offers", s.offers, func(key signalKey) bool { return key.target == device }), nil
}

func (s *MemorySignaler) PollAnswers(_ context.Context, device ref.DeviceID) ([]SignalMessage, error) {
	return s.poll("answers", s.answers, func(key signalKey) bool { return key.offerer == device }), nil
}

// poll returns the messages in store whose key matches and whose
// timestamp is newer than the last one returned for that key.
func (s *MemorySignaler) poll(label string, store map[signalKey]SignalMessage, match func(signalKey) bool) []SignalMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []SignalMessage
	for key, message := range store {
		if !match(key) {
			continue
		}
		seenKey := label + ":" + key.offerer.String() + "|" + key.target.String()
		if last, ok := s.lastSeen[seenKey]; ok && !message.Timestamp.After(last) {
			continue
		}
		s.lastSeen[seenKey] = message.Timestamp
		messages = append(messages, message)
	}
	return messages
}
