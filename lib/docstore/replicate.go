// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"errors"
	"fmt"

	"github.com/corkboard-foundation/corkboard/lib/codec"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// version orders the replicas of one document.
type version struct {
	Clock  uint64
	Author ref.DeviceID
}

// newer reports whether v should replace current.
func (v version) newer(current version) bool {
	if v.Clock != current.Clock {
		return v.Clock > current.Clock
	}
	return v.Author.String() > current.Author.String()
}

// update is the replication wire message. With Want set it asks peers
// holding something newer than (Clock, Author) to send it; otherwise it
// carries a complete document version.
type update struct {
	Document ref.DocumentID `cbor:"document"`
	Want     bool           `cbor:"want,omitempty"`
	Clock    uint64         `cbor:"clock"`
	Author   ref.DeviceID   `cbor:"author"`
	Doc      Doc            `cbor:"doc,omitempty"`
}

func (u update) version() version { return version{Clock: u.Clock, Author: u.Author} }

func decodeUpdate(payload []byte) (update, error) {
	var u update
	if err := codec.Unmarshal(payload, &u); err != nil {
		return update{}, fmt.Errorf("replication message: %w", err)
	}
	switch {
	case u.Document.IsZero():
		return update{}, errors.New("replication message: missing document")
	case u.Author.IsZero():
		return update{}, errors.New("replication message: missing author")
	case !u.Want && u.Clock == 0:
		return update{}, errors.New("replication message: update without a clock")
	}
	return u, nil
}
