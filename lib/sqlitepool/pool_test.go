// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package sqlitepool_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/corkboard-foundation/corkboard/lib/sqlitepool"
)

var migrations = []string{
	`CREATE TABLE numbers (value INTEGER NOT NULL);`,
	`ALTER TABLE numbers ADD COLUMN label TEXT NOT NULL DEFAULT '';`,
}

func TestPragmasApplied(t *testing.T) {
	pool := openTestPool(t, filepath.Join(t.TempDir(), "test.db"), nil)

	err := pool.Do(context.Background(), func(conn *sqlite.Conn) error {
		if got := queryText(t, conn, "PRAGMA journal_mode"); got != "wal" {
			t.Errorf("journal_mode = %q, want wal", got)
		}
		if got := queryText(t, conn, "PRAGMA synchronous"); got != "1" {
			t.Errorf("synchronous = %q, want 1 (NORMAL)", got)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func TestMigrationsApplyOnceAndResume(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrate.db")

	first, err := sqlitepool.Open(sqlitepool.Config{Path: path, Migrations: migrations[:1]})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	first.Do(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.Execute(conn, "INSERT INTO numbers (value) VALUES (?)", &sqlitex.ExecOptions{Args: []any{7}})
	})
	first.Close()

	// Reopening with one more migration runs only the new one and keeps
	// the data.
	second := openTestPool(t, path, migrations)
	second.Do(context.Background(), func(conn *sqlite.Conn) error {
		if got := queryText(t, conn, "PRAGMA user_version"); got != "2" {
			t.Errorf("user_version = %s, want 2", got)
		}
		if got := queryText(t, conn, "SELECT value || ':' || label FROM numbers"); got != "7:" {
			t.Errorf("row = %q, want 7:", got)
		}
		return nil
	})
}

func TestNewerSchemaRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "newer.db")
	pool, err := sqlitepool.Open(sqlitepool.Config{Path: path, Migrations: migrations})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pool.Close()

	if _, err := sqlitepool.Open(sqlitepool.Config{Path: path, Migrations: migrations[:1]}); err == nil {
		t.Fatal("opening a database newer than the known migrations succeeded")
	}
}

func TestFailingMigrationRollsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.db")
	_, err := sqlitepool.Open(sqlitepool.Config{
		Path:       path,
		Migrations: []string{migrations[0], "THIS IS NOT SQL"},
	})
	if err == nil {
		t.Fatal("Open succeeded with a broken migration")
	}

	pool := openTestPool(t, path, nil)
	pool.Do(context.Background(), func(conn *sqlite.Conn) error {
		if got := queryText(t, conn, "PRAGMA user_version"); got != "0" {
			t.Errorf("user_version = %s after a failed migration, want 0", got)
		}
		return nil
	})
}

func TestConcurrentReads(t *testing.T) {
	pool := openTestPool(t, filepath.Join(t.TempDir(), "reads.db"), migrations)
	err := pool.Do(context.Background(), func(conn *sqlite.Conn) error {
		return sqlitex.ExecuteScript(conn, `INSERT INTO numbers (value) VALUES (1), (2), (3), (4), (5);`, nil)
	})
	if err != nil {
		t.Fatalf("INSERT: %v", err)
	}

	const goroutineCount = 8
	var waitGroup sync.WaitGroup
	errs := make(chan error, goroutineCount)
	for range goroutineCount {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			errs <- pool.Do(context.Background(), func(conn *sqlite.Conn) error {
				var sum int64
				err := sqlitex.Execute(conn, "SELECT value FROM numbers", &sqlitex.ExecOptions{
					ResultFunc: func(stmt *sqlite.Stmt) error {
						sum += stmt.ColumnInt64(0)
						return nil
					},
				})
				if err != nil {
					return err
				}
				if sum != 15 {
					return fmt.Errorf("sum = %d, want 15", sum)
				}
				return nil
			})
		}()
	}
	waitGroup.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Error(err)
		}
	}
}

func TestOnConnectRuns(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path: filepath.Join(t.TempDir(), "hook.db"),
		OnConnect: func(*sqlite.Conn) error {
			mu.Lock()
			calls++
			mu.Unlock()
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()
	pool.Do(context.Background(), func(*sqlite.Conn) error { return nil })

	mu.Lock()
	defer mu.Unlock()
	if calls == 0 {
		t.Error("OnConnect was not called")
	}
}

func TestEmptyPathRejected(t *testing.T) {
	if _, err := sqlitepool.Open(sqlitepool.Config{}); err == nil {
		t.Fatal("expected error for empty Path")
	}
}

func TestTakeHonoursContext(t *testing.T) {
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:     filepath.Join(t.TempDir(), "cancel.db"),
		PoolSize: 1,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer pool.Close()

	conn, err := pool.Take(context.Background())
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	defer pool.Put(conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pool.Take(ctx); err == nil {
		t.Fatal("Take with a cancelled context on an exhausted pool succeeded")
	}
}

func openTestPool(t *testing.T, path string, migrations []string) *sqlitepool.Pool {
	t.Helper()
	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:       path,
		PoolSize:   4,
		Migrations: migrations,
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := pool.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return pool
}

func queryText(t *testing.T, conn *sqlite.Conn, query string) string {
	t.Helper()
	var result string
	err := sqlitex.ExecuteTransient(conn, query, &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			result = stmt.ColumnText(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("%s: %v", query, err)
	}
	return result
}
