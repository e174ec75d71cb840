// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import "errors"

var (
	// ErrReleased is returned by Handle operations after Release. It
	// marks a lifecycle bug in the caller.
	ErrReleased = errors.New("docstore: handle released")

	// ErrNotOpen is returned by operations on a Handle that was never
	// opened through a Repo.
	ErrNotOpen = errors.New("docstore: handle not open")

	// ErrNotFound is returned by Snapshots.Load for an unknown document.
	ErrNotFound = errors.New("docstore: snapshot not found")

	// ErrClosed is returned by every Repo operation after Close.
	ErrClosed = errors.New("docstore: repo closed")
)
