// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens SQLite databases the way every Corkboard
// store expects them: a fixed-size zombiezen.com/go/sqlite pool, the
// same pragmas on every connection, and an ordered list of schema
// migrations applied once at open.
//
// # Pragmas
//
//   - journal_mode=WAL: readers never block the single writer.
//   - synchronous=NORMAL: commits survive a process crash. Snapshots
//     are also held by peers, so losing the last few to a power cut is
//     recoverable through replication.
//   - busy_timeout=5000: wait for the write lock instead of failing
//     with SQLITE_BUSY.
//   - cache_size=-8192 and temp_store=MEMORY.
//
// # Migrations
//
// Config.Migrations is an append-only list of SQL scripts. The pool
// records how many have run in PRAGMA user_version and runs the rest,
// in order, inside one immediate transaction. Never edit a migration
// that has shipped; append a new one.
//
// # Usage
//
//	pool, err := sqlitepool.Open(sqlitepool.Config{
//	    Path:       filepath.Join(dir, "snapshots.db"),
//	    Migrations: []string{createSnapshots},
//	    Logger:     logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	err = pool.Do(ctx, func(conn *sqlite.Conn) error {
//	    return sqlitex.Execute(conn, "SELECT ...", &sqlitex.ExecOptions{...})
//	})
package sqlitepool
