// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Lattice-host runs one lattice host process: it joins the bus,
// serves the host's control, inventory, auction, and health surfaces,
// and runs workloads handed to it by the control plane.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/lattice-foundation/lattice/bus"
	"github.com/lattice-foundation/lattice/control"
	"github.com/lattice-foundation/lattice/host"
	"github.com/lattice-foundation/lattice/lib/clock"
	"github.com/lattice-foundation/lattice/wire"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	var bootstrap bool

	flag.StringVar(&configPath, "config", "", "path to YAML config file")
	flag.BoolVar(&bootstrap, "bootstrap", false, "read a base64 JSON bootstrap record from stdin instead of -config")
	flag.Parse()

	var cfg host.Config
	var err error
	switch {
	case bootstrap:
		cfg, err = host.ReadBootstrap(os.Stdin)
	case configPath != "":
		cfg, err = host.LoadConfig(configPath)
	default:
		return fmt.Errorf("either -config or -bootstrap is required")
	}
	if err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	var options []nats.Option
	if cfg.BusCredentials != "" {
		options = append(options, nats.UserCredentials(cfg.BusCredentials))
	}
	conn, err := bus.Connect(cfg.BusURL, "lattice-host-"+cfg.HostID, options...)
	if err != nil {
		return fmt.Errorf("connecting to bus at %s: %w", cfg.BusURL, err)
	}

	logger.Info("joining lattice",
		"lattice", cfg.LatticeID,
		"host_id", cfg.HostID,
		"bus_url", cfg.BusURL)

	h := host.New(cfg, conn, clock.Real(), logger, logLauncher{log: logger})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := h.Run(ctx); err != nil {
		return err
	}
	return conn.Drain()
}

func newLogger(cfg host.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.StructuredLogging {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// logLauncher stands in for an execution engine: it accepts every
// operation and records it in the log. Deployments embed the host
// packages with their own launcher instead.
type logLauncher struct {
	log *slog.Logger
}

func (l logLauncher) Start(_ context.Context, kind wire.EntityKind, ref, entityID, linkName string, count uint32) error {
	l.log.Info("launcher start", "kind", kind, "ref", ref, "entity_id", entityID, "link_name", linkName, "count", count)
	return nil
}

func (l logLauncher) Stop(_ context.Context, entityID string, timeoutMillis uint64) error {
	l.log.Info("launcher stop", "entity_id", entityID, "timeout_ms", timeoutMillis)
	return nil
}

func (l logLauncher) Scale(_ context.Context, entityID string, count uint32) error {
	l.log.Info("launcher scale", "entity_id", entityID, "count", count)
	return nil
}

func (l logLauncher) Update(_ context.Context, entityID, newRef string) error {
	l.log.Info("launcher update", "entity_id", entityID, "new_ref", newRef)
	return nil
}

var _ control.Launcher = logLauncher{}
