// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"log/slog"

	"github.com/corkboard-foundation/corkboard/lib/compress"
	"github.com/corkboard-foundation/corkboard/lib/config"
	"github.com/corkboard-foundation/corkboard/lib/docstore"
	"github.com/corkboard-foundation/corkboard/lib/sqlitepool"
)

// openSnapshots opens the snapshot store named by store.path. An empty
// path keeps snapshots in memory, so documents live only as long as the
// process and whatever replicas other peers hold.
func openSnapshots(cfg *config.Config, logger *slog.Logger) (docstore.Snapshots, func() error, error) {
	if cfg.Store.Path == "" {
		logger.Warn("store.path is empty; documents are kept in memory only")
		return docstore.NewMemorySnapshots(), func() error { return nil }, nil
	}

	algorithm, err := compress.Parse(cfg.Store.Compression)
	if err != nil {
		return nil, nil, fmt.Errorf("store.compression: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, nil, err
	}

	pool, err := sqlitepool.Open(sqlitepool.Config{
		Path:       cfg.Store.Path,
		PoolSize:   cfg.Store.PoolSize,
		Migrations: docstore.SnapshotMigrations,
		Logger:     logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("opening snapshot store: %w", err)
	}
	logger.Info("snapshot store open",
		"path", cfg.Store.Path,
		"compression", algorithm.String(),
	)
	return docstore.NewSQLiteSnapshots(pool, algorithm), pool.Close, nil
}
