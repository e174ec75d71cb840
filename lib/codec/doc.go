// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds Corkboard's single CBOR configuration.
//
// Two encodings cross process boundaries in Corkboard:
//
//   - JSON for the HTTP API consumed by the UI layer and the CLI.
//   - CBOR for everything peers exchange with each other (presence
//     heartbeats, replication updates, transport envelopes) and for
//     document snapshots at rest.
//
// Encoding uses Core Deterministic Encoding (RFC 8949 §4.2): the same
// value always yields the same bytes, so snapshots can be compared and
// hashed. Decoding into an untyped target produces map[string]any
// rather than CBOR's default map[any]any, which keeps decoded presence
// payloads and document bodies JSON-compatible.
//
// Types carrying identifiers (ref.DocumentID, ref.ContactID,
// ref.DeviceID) encode as text strings through their TextMarshaler
// implementations.
//
// Struct tags: a `cbor` tag marks a peer-to-peer-only type; a `json`
// tag marks a type that is also served over the HTTP API (fxamacker
// falls back to json tags). Never put both on one field.
package codec
