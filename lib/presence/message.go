// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"errors"
	"fmt"

	"github.com/corkboard-foundation/corkboard/lib/codec"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// Message is the presence wire format. A heartbeat carries the
// sender's complete outgoing data for the document; a departure
// carries none.
type Message struct {
	Contact   ref.ContactID  `cbor:"contact"`
	Device    ref.DeviceID   `cbor:"device"`
	Heartbeat bool           `cbor:"heartbeat,omitempty"`
	Departing bool           `cbor:"departing,omitempty"`
	Data      map[string]any `cbor:"data,omitempty"`
}

// refreshes reports whether m refreshes its sender's entry. Data
// without the heartbeat flag counts as a heartbeat.
func (m Message) refreshes() bool { return m.Heartbeat || m.Data != nil }

// Validate rejects messages that name no sender or that are neither a
// heartbeat nor a departure.
func (m Message) Validate() error {
	switch {
	case m.Contact.IsZero():
		return errors.New("missing contact")
	case m.Device.IsZero():
		return errors.New("missing device")
	case m.Departing && m.refreshes():
		return errors.New("departure carries heartbeat or data")
	case !m.Departing && !m.refreshes():
		return errors.New("neither heartbeat nor departure")
	}
	return nil
}

// EncodeMessage validates and encodes m.
func EncodeMessage(m Message) ([]byte, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("presence message: %w", err)
	}
	return codec.Marshal(m)
}

// DecodeMessage decodes and validates a presence message.
func DecodeMessage(data []byte) (Message, error) {
	var m Message
	if err := codec.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("presence message: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Message{}, fmt.Errorf("presence message: %w", err)
	}
	return m, nil
}
