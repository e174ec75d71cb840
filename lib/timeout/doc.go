// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package timeout maintains at most one pending expiry timer per key.
//
// A [Registry] is the building block for soft-state caches: every time
// fresh evidence arrives for a key the caller re-arms it, pushing the
// deadline out; when evidence stops arriving the deadline passes and
// the expiry callback runs exactly once.
//
// Arming an already-armed key replaces its timer. Cancelling a key
// that is not armed is a no-op. Each arm carries a generation number so
// that a timer which has already started firing when it is replaced or
// cancelled does not deliver a stale expiry.
//
// All timers run on an injected [clock.Clock]; tests drive expiry with
// [clock.FakeClock.Advance].
package timeout
