// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package presence tells devices viewing the same document about each
// other.
//
// There is no presence server. Each device multicasts a heartbeat on a
// document's message channel once per interval for as long as anything
// in the process holds the document open, and every device viewing the
// document keeps a soft-state cache of the heartbeats it hears. The
// channel is unordered and lossy, so correctness comes from repetition
// and timeouts rather than delivery: a cached peer expires when no
// heartbeat has refreshed it for the TTL (five intervals by default),
// and an explicit departure message clears it immediately on a clean
// shutdown.
//
// A single [Manager] owns all of a process's presence state:
//
//   - Reference counts. [Manager.Acquire] and [Manager.Release] count
//     the consumers that hold a document open. The 0→1 transition
//     starts the document's heartbeat loop; 1→0 stops it and sends one
//     departure. Releasing more than was acquired returns a
//     [*LifecycleError] wrapping [ErrOverRelease].
//   - Local payloads. [Manager.SetLocal] and [Manager.ClearLocal] edit
//     the device's outgoing data, a map from [ref.FacetKey] to an
//     arbitrary CBOR-serializable value. Every heartbeat carries the
//     whole map, and a change to it is sent at once.
//   - The remote cache. [Manager.Observe] subscribes to a document's
//     channel and keeps one entry per (contact, device). A heartbeat
//     replaces the entry's data wholesale; expiry and departure clear
//     the data but keep the entry, so "seen, now gone" stays
//     distinguishable from "never seen".
//
// Identity is set once with [Manager.SetIdentity]. Until then nothing
// is published; that is the normal startup state, not an error.
//
// Observers receive full [Snapshot] values, in the order the cache
// applied the updates, once at registration and again on every change
// that alters what a consumer would see. A heartbeat that repeats the
// previous data only refreshes the expiry deadline.
//
// Contacts and devices are themselves documents, so "is this contact
// online" is a presence query on the contact's own document:
// [Manager.WatchContact] and [Manager.WatchDevice] observe that
// document and advertise the "onlineStatus" facet on it, and
// [Manager.AnnounceSelf] holds the local contact's and device's
// documents open so others can see this device.
//
// All timers run on an injected [clock.Clock]. With [clock.FakeClock]
// and [transport.MemoryHub], several managers can be driven through a
// whole protocol exchange deterministically on one goroutine.
package presence
