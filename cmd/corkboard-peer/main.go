// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Corkboard-peer is the long-running Corkboard process on one device. It
// opens the document store, joins the configured transport, publishes
// presence for the documents its clients hold open, and serves the
// local HTTP API that the corkboard CLI talks to.
//
// On startup:
//  1. Loads and validates the config file (--config or CORKBOARD_CONFIG).
//  2. Opens the snapshot store (SQLite, or memory when store.path is empty).
//  3. Connects the transport: memory, nats, peer or webrtc.
//  4. Starts the presence manager on top of the document repo and
//     announces the device's online status.
//  5. Serves the API until SIGINT or SIGTERM.
//
// Shutdown runs in reverse: the API stops first so no request races the
// presence manager's departures, then the repo, then the transport.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/pflag"

	"github.com/corkboard-foundation/corkboard/lib/api"
	"github.com/corkboard-foundation/corkboard/lib/clock"
	"github.com/corkboard-foundation/corkboard/lib/config"
	"github.com/corkboard-foundation/corkboard/lib/docstore"
	"github.com/corkboard-foundation/corkboard/lib/presence"
	"github.com/corkboard-foundation/corkboard/lib/process"
	"github.com/corkboard-foundation/corkboard/lib/ref"
	"github.com/corkboard-foundation/corkboard/lib/version"
)

// shutdownTimeout bounds the API server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("corkboard-peer", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to corkboard.yaml (default: $CORKBOARD_CONFIG)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Printf("corkboard-peer %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := process.NewLogger(os.Stderr, cfg.Log.Format, cfg.LogLevel())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := process.SignalContext()
	defer stop()

	return serve(ctx, cfg, logger)
}

func loadConfig(path string) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// resolveIdentity returns the configured identity. Without one the
// device still needs an ID to join the transport; it gets a throwaway
// one and publishes no presence.
func resolveIdentity(cfg *config.Config) (contact ref.ContactID, device ref.DeviceID, ok bool, err error) {
	contact, device, ok, err = cfg.IdentityIDs()
	if err != nil || ok {
		return contact, device, ok, err
	}
	nonce := uuid.New()
	return ref.ContactID{}, ref.DeviceFromDocument(ref.NewDocumentID(nonce[:])), false, nil
}

// serve runs the peer until ctx is cancelled or the API server fails.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	contact, device, hasIdentity, err := resolveIdentity(cfg)
	if err != nil {
		return err
	}
	logger = logger.With("device", device.String())

	var shutdown shutdownStack
	defer func() {
		if closeErr := shutdown.run(logger); closeErr != nil {
			logger.Error("shutdown incomplete", "error", closeErr)
		}
	}()

	snapshots, closeSnapshots, err := openSnapshots(cfg, logger)
	if err != nil {
		return err
	}
	shutdown.push("snapshot store", closeSnapshots)

	link, err := openTransport(ctx, cfg, device, logger)
	if err != nil {
		return err
	}
	shutdown.push("transport", link.close)

	repo, err := docstore.NewRepo(docstore.RepoConfig{
		Device:    device,
		Snapshots: snapshots,
		Changes:   link.changes,
		Ephemeral: link.presence,
		Clock:     clock.Real(),
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("opening document repo: %w", err)
	}
	shutdown.push("document repo", repo.Close)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	manager, err := presence.NewManager(presence.Config{
		Messenger:         repo,
		Clock:             clock.Real(),
		Logger:            logger,
		HeartbeatInterval: cfg.HeartbeatInterval(),
		TTL:               cfg.TTL(),
		Metrics:           presence.NewMetrics(registry),
	})
	if err != nil {
		return fmt.Errorf("starting presence: %w", err)
	}
	shutdown.push("presence manager", manager.Close)

	if hasIdentity {
		if err := manager.SetIdentity(contact, device); err != nil {
			return fmt.Errorf("setting identity: %w", err)
		}
		announcement, err := manager.AnnounceSelf()
		if err != nil {
			return fmt.Errorf("announcing online status: %w", err)
		}
		shutdown.push("online announcement", announcement.Close)
		logger.Info("identity configured", "contact", contact.String())
	} else {
		logger.Warn("no identity configured; presence is not published",
			"hint", "run 'corkboard identity' and add the output to the config file")
	}

	server, err := api.New(api.Config{
		Presence: manager,
		Repo:     repo,
		Gatherer: registry,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}
	listener, err := net.Listen("tcp", cfg.API.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.API.Listen, err)
	}
	shutdown.push("api server", func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve(listener)
	}()

	logger.Info("corkboard peer running",
		"version", version.Info(),
		"environment", string(cfg.Environment),
		"transport", cfg.Transport.Kind,
		"api", listener.Addr().String(),
	)

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		return nil
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	}
}
