// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/corkboard-foundation/corkboard/lib/codec"
	"github.com/corkboard-foundation/corkboard/lib/ref"
)

// Doc is a document's content. Values must be CBOR-serializable.
type Doc = map[string]any

// Snapshot is one persisted version of a document.
type Snapshot struct {
	Document ref.DocumentID
	Clock    uint64
	Author   ref.DeviceID
	Doc      Doc
	Saved    time.Time
}

// Snapshots persists the latest version of each document.
type Snapshots interface {
	// Load returns the stored snapshot, or ErrNotFound.
	Load(ctx context.Context, id ref.DocumentID) (Snapshot, error)

	// Save replaces the stored snapshot for snapshot.Document.
	Save(ctx context.Context, snapshot Snapshot) error

	// List returns every stored document, sorted.
	List(ctx context.Context) ([]ref.DocumentID, error)
}

// MemorySnapshots keeps snapshots in memory. Use it for tests and for
// peers that rely on replication alone.
type MemorySnapshots struct {
	mu        sync.Mutex
	snapshots map[ref.DocumentID]Snapshot
}

func NewMemorySnapshots() *MemorySnapshots {
	return &MemorySnapshots{snapshots: make(map[ref.DocumentID]Snapshot)}
}

func (m *MemorySnapshots) Load(_ context.Context, id ref.DocumentID) (Snapshot, error) {
	m.mu.Lock()
	snapshot, ok := m.snapshots[id]
	m.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	doc, err := codec.Clone(snapshot.Doc)
	if err != nil {
		return Snapshot{}, err
	}
	snapshot.Doc = doc
	return snapshot, nil
}

func (m *MemorySnapshots) Save(_ context.Context, snapshot Snapshot) error {
	doc, err := codec.Clone(snapshot.Doc)
	if err != nil {
		return err
	}
	snapshot.Doc = doc
	m.mu.Lock()
	m.snapshots[snapshot.Document] = snapshot
	m.mu.Unlock()
	return nil
}

func (m *MemorySnapshots) List(context.Context) ([]ref.DocumentID, error) {
	m.mu.Lock()
	ids := make([]ref.DocumentID, 0, len(m.snapshots))
	for id := range m.snapshots {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	sortIDs(ids)
	return ids, nil
}

func sortIDs(ids []ref.DocumentID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}
