// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil holds helpers shared by Corkboard tests.
//
// Presence and replication tests run on a fake clock and an in-process
// message hub, so they rarely wait on real time. The exceptions are
// tests that cross a goroutine or a socket (websocket streams, the
// WebRTC mesh). [RequireReceive] and [RequireClosed] put a wall-clock
// ceiling on those waits so a broken test fails instead of hanging;
// they are the only place tests call time.After directly.
//
// [UniqueID] gives tests distinguishable identifiers without reading
// the clock, and [Logger] returns a logger that writes through t.Log so
// log output is attached to the test that produced it.
package testutil
