// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"time"

	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// Signaler exchanges WebRTC session descriptions between devices. The
// model is vanilla ICE: every candidate is gathered before the SDP is
// published, so establishing a connection takes exactly one offer and
// one answer.
type Signaler interface {
	// PublishOffer publishes a complete SDP offer from device to target.
	PublishOffer(ctx context.Context, device, target ref.DeviceID, sdp string) error

	// PublishAnswer answers the offer offerer sent to device.
	PublishAnswer(ctx context.Context, offerer, device ref.DeviceID, sdp string) error

	// PollOffers returns offers addressed to device that have not been
	// returned before.
	PollOffers(ctx context.Context, device ref.DeviceID) ([]SignalMessage, error)

	// PollAnswers returns answers to offers device made that have not
	// been returned before.
	PollAnswers(ctx context.Context, device ref.DeviceID) ([]SignalMessage, error)
}

// SignalMessage is one offer or answer.
type SignalMessage struct {
	// Peer is the other party: the offerer of a received offer, the
	// answerer of a received answer.
	Peer ref.DeviceID `cbor:"peer"`

	// SDP is the complete session description with ICE candidates.
	SDP string `cbor:"sdp"`

	// Timestamp is when the signal was published.
	Timestamp time.Time `cbor:"timestamp"`
}

// signalKey addresses one offer/answer exchange.
type signalKey struct {
	offerer ref.DeviceID
	target  ref.DeviceID
}
