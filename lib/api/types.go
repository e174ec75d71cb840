// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"github.com/corkboard-foundation/corkboard/lib/presence"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IdentityResponse is the body of GET /v1/identity. Both fields are
// omitted while the peer has no identity.
type IdentityResponse struct {
	Contact *ref.ContactID `json:"contact,omitempty"`
	Device  *ref.DeviceID  `json:"device,omitempty"`
}

// CreateResponse is the body of POST /v1/documents.
type CreateResponse struct {
	Document ref.DocumentID `json:"document"`
}

// DocumentResponse is the body of GET /v1/documents/{id}.
type DocumentResponse struct {
	Document ref.DocumentID `json:"document"`
	Content  map[string]any `json:"content"`
}

// CountResponse is the body of acquire and release: the document's
// open reference count after the call.
type CountResponse struct {
	Document ref.DocumentID `json:"document"`
	Count    int            `json:"count"`
}

// PeerPresence is one live peer's payload for a facet.
type PeerPresence struct {
	Contact ref.ContactID `json:"contact"`
	Device  ref.DeviceID  `json:"device"`
	// Present is false when the peer is live but publishes nothing
	// under the facet.
	Present bool `json:"present"`
	Value   any  `json:"value,omitempty"`
}

// PresenceResponse is the body of GET .../presence and each message of
// the watch stream.
type PresenceResponse struct {
	Document ref.DocumentID `json:"document"`
	Facet    ref.FacetKey   `json:"facet"`
	Peers    []PeerPresence `json:"peers"`
}

// OnlineResponse is the body of the contact and device online queries.
type OnlineResponse struct {
	Online bool `json:"online"`
}

// DevicesResponse is the body of GET /v1/contacts/{id}/devices.
type DevicesResponse struct {
	Contact ref.ContactID  `json:"contact"`
	Devices []ref.DeviceID `json:"devices"`
}

func presenceResponse(doc ref.DocumentID, facet ref.FacetKey, peers []presence.FacetPresence) PresenceResponse {
	response := PresenceResponse{Document: doc, Facet: facet, Peers: make([]PeerPresence, 0, len(peers))}
	for _, peer := range peers {
		response.Peers = append(response.Peers, PeerPresence{
			Contact: peer.Contact,
			Device:  peer.Device,
			Present: peer.Present,
			Value:   peer.Value,
		})
	}
	return response
}
