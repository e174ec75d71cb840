// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"

	"github.com/corkboard-foundation/corkboard/lib/codec"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// ErrClosed is returned by Message and Subscribe after Close.
var ErrClosed = errors.New("transport: messenger closed")

// Standard channel names. Presence heartbeats and document replication
// travel on separate channels so that a subscriber to one never has to
// decode the other.
const (
	ChannelPresence = "presence"
	ChannelChanges  = "changes"
)

// Messenger carries small ephemeral messages scoped to a document
// between the devices that have it open. Delivery is at-most-once,
// unordered and best effort: Message returns once the payload has been
// handed to the network and never waits for peers to acknowledge it.
// A device does not receive its own messages.
type Messenger interface {
	// Message sends payload to every peer subscribed to doc.
	Message(ctx context.Context, doc ref.DocumentID, payload []byte) error

	// Subscribe registers handler for payloads other devices send to
	// doc. Handlers may run on a transport goroutine and must not block.
	Subscribe(doc ref.DocumentID, handler Handler) (Subscription, error)

	// Close releases the messenger's resources. Subscriptions stop
	// receiving and later calls return ErrClosed.
	Close() error
}

// Handler receives one inbound payload. The slice is owned by the
// handler.
type Handler func(payload []byte)

// Subscription is a registered Handler.
type Subscription interface {
	// Unsubscribe stops delivery to the handler. It is idempotent.
	Unsubscribe()
}

// envelope is the wire framing shared by the network transports. The
// sender is carried so a transport that echoes publications (a broker
// subject, a mesh relay) can drop the device's own messages.
type envelope struct {
	Sender   ref.DeviceID   `cbor:"sender"`
	Channel  string         `cbor:"channel"`
	Document ref.DocumentID `cbor:"document"`
	Payload  []byte         `cbor:"payload"`
}

func encodeEnvelope(e envelope) ([]byte, error) {
	data, err := codec.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("encoding envelope: %w", err)
	}
	return data, nil
}

func decodeEnvelope(data []byte) (envelope, error) {
	var e envelope
	if err := codec.Unmarshal(data, &e); err != nil {
		return envelope{}, fmt.Errorf("decoding envelope: %w", err)
	}
	if e.Sender.IsZero() || e.Document.IsZero() || e.Channel == "" {
		return envelope{}, errors.New("decoding envelope: missing sender, document or channel")
	}
	return e, nil
}
