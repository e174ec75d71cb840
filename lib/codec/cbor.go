// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2): sorted map
// keys, smallest integer encoding and no indefinite-length items. The
// same logical value produces the same bytes on every peer.
var encMode cbor.EncMode

// decMode accepts standard CBOR and ignores unknown fields, so a peer
// running a newer release can add message fields.
var decMode cbor.DecMode

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	// IDs in lib/ref keep their value in unexported fields. As text
	// strings they survive the round trip; as structs they would encode
	// as empty maps.
	encOptions.TextMarshaler = cbor.TextMarshalerTextString
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("codec: CBOR encoder initialization failed: " + err.Error())
	}

	decMode, err = cbor.DecOptions{
		// Presence payloads and documents decode into any. Their maps
		// always have string keys and must be usable with encoding/json,
		// which map[interface{}]interface{} is not.
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		// Mirrors the TextMarshaler setting above.
		TextUnmarshaler: cbor.TextUnmarshalerTextString,
	}.DecMode()
	if err != nil {
		panic("codec: CBOR decoder initialization failed: " + err.Error())
	}
}

// Marshal encodes v to CBOR using Core Deterministic Encoding.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes data into v. Unknown fields are ignored.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// Clone returns a deep copy of v made by encoding and decoding it.
// The copy shares no maps or slices with v. Values that do not
// survive CBOR (channels, functions) return an error.
func Clone[T any](v T) (T, error) {
	var out T
	data, err := Marshal(v)
	if err != nil {
		return out, err
	}
	if err := Unmarshal(data, &out); err != nil {
		return out, err
	}
	return out, nil
}

// RawMessage is an undecoded CBOR value, used for envelope payloads
// whose type depends on the channel they arrived on.
type RawMessage = cbor.RawMessage

// Encoder writes a stream of CBOR items.
type Encoder = cbor.Encoder

// Decoder reads a stream of CBOR items.
type Decoder = cbor.Decoder

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return decMode.NewDecoder(r)
}
