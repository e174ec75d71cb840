// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package docstore

import (
	"context"
	"fmt"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/corkboard-foundation/corkboard/lib/codec"
	"github.com/corkboard-foundation/corkboard/lib/compress"
	"github.com/corkboard-foundation/corkboard/lib/ref"
	"github.com/corkboard-foundation/corkboard/lib/sqlitepool"
)

// SnapshotMigrations is the schema SQLiteSnapshots needs. Pass it as
// sqlitepool.Config.Migrations.
var SnapshotMigrations = []string{
	`CREATE TABLE snapshots (
		document   TEXT PRIMARY KEY,
		clock      INTEGER NOT NULL,
		author     TEXT NOT NULL,
		body       BLOB NOT NULL,
		saved_unix INTEGER NOT NULL
	) STRICT;`,
}

// SQLiteSnapshots stores each document's latest snapshot as a
// compressed CBOR blob in one row.
type SQLiteSnapshots struct {
	pool        *sqlitepool.Pool
	compression compress.Algorithm
}

// NewSQLiteSnapshots stores snapshots in pool, which must have been
// opened with SnapshotMigrations. New bodies are written with
// compression; existing bodies are read whatever they were written
// with.
func NewSQLiteSnapshots(pool *sqlitepool.Pool, compression compress.Algorithm) *SQLiteSnapshots {
	return &SQLiteSnapshots{pool: pool, compression: compression}
}

func (s *SQLiteSnapshots) Load(ctx context.Context, id ref.DocumentID) (Snapshot, error) {
	var (
		found    bool
		snapshot Snapshot
		body     []byte
		author   string
		saved    int64
	)
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`SELECT clock, author, body, saved_unix FROM snapshots WHERE document = ?`,
			&sqlitex.ExecOptions{
				Args: []any{id.String()},
				ResultFunc: func(stmt *sqlite.Stmt) error {
					found = true
					snapshot.Clock = uint64(stmt.ColumnInt64(0))
					author = stmt.ColumnText(1)
					body = make([]byte, stmt.ColumnLen(2))
					stmt.ColumnBytes(2, body)
					saved = stmt.ColumnInt64(3)
					return nil
				},
			})
	})
	if err != nil {
		return Snapshot{}, fmt.Errorf("docstore: loading %s: %w", id, err)
	}
	if !found {
		return Snapshot{}, ErrNotFound
	}

	device, err := ref.ParseDeviceID(author)
	if err != nil {
		return Snapshot{}, fmt.Errorf("docstore: snapshot %s has a bad author: %w", id, err)
	}
	raw, err := compress.Decode(body)
	if err != nil {
		return Snapshot{}, fmt.Errorf("docstore: snapshot %s: %w", id, err)
	}
	var doc Doc
	if err := codec.Unmarshal(raw, &doc); err != nil {
		return Snapshot{}, fmt.Errorf("docstore: decoding snapshot %s: %w", id, err)
	}
	snapshot.Document = id
	snapshot.Author = device
	snapshot.Doc = doc
	snapshot.Saved = time.Unix(saved, 0).UTC()
	return snapshot, nil
}

func (s *SQLiteSnapshots) Save(ctx context.Context, snapshot Snapshot) error {
	raw, err := codec.Marshal(snapshot.Doc)
	if err != nil {
		return fmt.Errorf("docstore: encoding snapshot %s: %w", snapshot.Document, err)
	}
	body, err := compress.Encode(raw, s.compression)
	if err != nil {
		return fmt.Errorf("docstore: compressing snapshot %s: %w", snapshot.Document, err)
	}
	err = s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn,
			`INSERT INTO snapshots (document, clock, author, body, saved_unix)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT (document) DO UPDATE SET
				clock = excluded.clock,
				author = excluded.author,
				body = excluded.body,
				saved_unix = excluded.saved_unix`,
			&sqlitex.ExecOptions{
				Args: []any{
					snapshot.Document.String(),
					int64(snapshot.Clock),
					snapshot.Author.String(),
					body,
					snapshot.Saved.Unix(),
				},
			})
	})
	if err != nil {
		return fmt.Errorf("docstore: saving %s: %w", snapshot.Document, err)
	}
	return nil
}

func (s *SQLiteSnapshots) List(ctx context.Context) ([]ref.DocumentID, error) {
	var ids []ref.DocumentID
	err := s.pool.Do(ctx, func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, `SELECT document FROM snapshots ORDER BY document`, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				id, err := ref.ParseDocumentID(stmt.ColumnText(0))
				if err != nil {
					return err
				}
				ids = append(ids, id)
				return nil
			},
		})
	})
	if err != nil {
		return nil, fmt.Errorf("docstore: listing snapshots: %w", err)
	}
	return ids, nil
}
