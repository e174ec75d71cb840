// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref defines the typed identifiers Corkboard passes around:
// documents, contacts, devices, the (contact, device) pair that keys
// remote presence, and presence facet keys.
//
// Every replicated object in Corkboard is a document, including the
// record describing a contact and the record describing one of that
// contact's devices. ContactID and DeviceID therefore wrap the
// DocumentID of that record. Presence questions about a contact ("is
// this person online?") are answered by watching presence on the
// contact's own document.
//
// Identifiers are opaque to everything but this package. They are
// compared with ==, usable as map keys, and marshal as text for both
// JSON and CBOR.
package ref
