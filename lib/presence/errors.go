// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"errors"
	"fmt"

	"github.com/corkboard-foundation/corkboard/lib/ref"
)

var (
	// ErrOverRelease reports a Release without a matching Acquire.
	ErrOverRelease = errors.New("release without matching acquire")

	// ErrClosed is returned by every operation after Manager.Close.
	ErrClosed = errors.New("presence: manager closed")

	// ErrNoIdentity is returned by operations that need the local
	// contact and device before SetIdentity has been called.
	ErrNoIdentity = errors.New("presence: identity not set")
)

// LifecycleError reports a consumer bug: an operation that the
// acquire/release discipline does not allow. Callers can recover the
// document with errors.As.
type LifecycleError struct {
	Op       string
	Document ref.DocumentID
	Err      error
}

func (e *LifecycleError) Error() string {
	return fmt.Sprintf("presence: %s %s: %v", e.Op, e.Document, e.Err)
}

func (e *LifecycleError) Unwrap() error { return e.Err }
