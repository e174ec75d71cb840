// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package compress frames snapshot bytes with the algorithm that
// compressed them, so a store can change its configured algorithm
// without rewriting what it already holds.
//
// A frame is one algorithm byte, the uncompressed length as a uvarint,
// then the body. Data that does not shrink is stored with [None]
// whatever algorithm was asked for.
package compress
