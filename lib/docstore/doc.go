// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package docstore is the document store that presence rides on: a
// [Repo] of replicated documents, [Handle]s with an
// open/change/release lifecycle, and the per-document ephemeral
// message channel.
//
// Replication is whole-document last-writer-wins. Every change stamps
// the document with a Lamport clock and the authoring device; a remote
// version replaces the local one only if its (clock, device) pair is
// greater. This keeps every replica convergent without attempting a
// merge.
//
// Opening a document subscribes to its replication channel and asks
// peers for anything newer than the local copy. Changes are persisted
// to a [Snapshots] store before observers see them.
package docstore
