// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/corkboard-foundation/corkboard/lib/compress"
	"github.com/corkboard-foundation/corkboard/lib/ref"
	"github.com/corkboard-foundation/corkboard/lib/sqlitepool"
)

func openSnapshots(t *testing.T, path string, algorithm compress.Algorithm) *SQLiteSnapshots {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, Migrations: SnapshotMigrations})
	if err != nil {
		t.Fatalf("sqlitepool.Open: %v", err)
	}
	t.Cleanup(func() { pool.Close() })
	return NewSQLiteSnapshots(pool, algorithm)
}

func TestSQLiteSnapshotsRoundtrip(t *testing.T) {
	ctx := context.Background()
	for _, algorithm := range []compress.Algorithm{compress.None, compress.LZ4, compress.Zstd} {
		t.Run(algorithm.String(), func(t *testing.T) {
			store := openSnapshots(t, filepath.Join(t.TempDir(), "snapshots.db"), algorithm)
			id := ref.NewDocumentID([]byte("board"))

			if _, err := store.Load(ctx, id); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Load of a missing snapshot = %v, want ErrNotFound", err)
			}

			saved := Snapshot{
				Document: id,
				Clock:    4,
				Author:   deviceOf("laptop"),
				Doc:      Doc{"notes": strings.Repeat("card text ", 200), "cards": Doc{"c1": Doc{"x": "10"}}},
				Saved:    epoch,
			}
			if err := store.Save(ctx, saved); err != nil {
				t.Fatalf("Save: %v", err)
			}
			saved.Clock = 5
			if err := store.Save(ctx, saved); err != nil {
				t.Fatalf("second Save: %v", err)
			}

			loaded, err := store.Load(ctx, id)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if loaded.Clock != 5 || loaded.Author != deviceOf("laptop") || !loaded.Saved.Equal(epoch) {
				t.Errorf("loaded header %+v", loaded)
			}
			if loaded.Doc["notes"] != saved.Doc["notes"] {
				t.Error("notes changed in storage")
			}
			if x := loaded.Doc["cards"].(map[string]any)["c1"].(map[string]any)["x"]; x != "10" {
				t.Errorf("nested value = %v", x)
			}
		})
	}
}

func TestSQLiteSnapshotsReadOtherCompression(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mixed.db")
	id := ref.NewDocumentID([]byte("board"))

	writer := openSnapshots(t, path, compress.Zstd)
	if err := writer.Save(ctx, Snapshot{Document: id, Clock: 1, Author: deviceOf("laptop"), Doc: Doc{"a": strings.Repeat("z", 500)}, Saved: epoch}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reader := openSnapshots(t, path, compress.LZ4)
	loaded, err := reader.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load with a different configured algorithm: %v", err)
	}
	if loaded.Doc["a"] != strings.Repeat("z", 500) {
		t.Error("content changed")
	}
}

func TestSQLiteSnapshotsList(t *testing.T) {
	ctx := context.Background()
	store := openSnapshots(t, filepath.Join(t.TempDir(), "list.db"), compress.None)
	var want []ref.DocumentID
	for _, name := range []string{"b", "a", "c"} {
		id := ref.NewDocumentID([]byte(name))
		want = append(want, id)
		store.Save(ctx, Snapshot{Document: id, Clock: 1, Author: deviceOf("laptop"), Doc: Doc{}, Saved: epoch})
	}
	sortIDs(want)

	got, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestRepoOverSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repo.db")
	ctx := context.Background()

	first := newRepo(t, nil, "laptop", openSnapshots(t, path, compress.Zstd))
	id, err := first.Create(ctx, Doc{"title": "board"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	handle := open(t, first, id)
	handle.Change(func(d Doc) error { d["title"] = "persisted"; return nil })
	handle.Release()

	second := newRepo(t, nil, "laptop", openSnapshots(t, path, compress.Zstd))
	reopened := open(t, second, id)
	defer reopened.Release()
	doc, _ := reopened.Doc()
	if doc["title"] != "persisted" {
		t.Errorf("reloaded %v", doc)
	}
}
