// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package host assembles the control-plane runtime of one lattice
// host: the control command subjects, inventory queries, auction
// responses, dependency health monitoring, and lifecycle events.
package host

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lattice-foundation/lattice/auction"
	"github.com/lattice-foundation/lattice/bus"
	"github.com/lattice-foundation/lattice/control"
	"github.com/lattice-foundation/lattice/health"
	"github.com/lattice-foundation/lattice/lib/clock"
	"github.com/lattice-foundation/lattice/subject"
	"github.com/lattice-foundation/lattice/wire"
)

// Host is one running control-plane process.
type Host struct {
	cfg   Config
	bus   bus.Bus
	clock clock.Clock
	log   *slog.Logger

	ctl      *control.Handler
	events   *Events
	monitor  *health.Monitor
	auctions *auction.Responder

	started time.Time
	subs    []bus.Subscription

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New assembles a host around an already-connected bus and the
// launcher that runs actual workloads.
func New(cfg Config, b bus.Bus, clk clock.Clock, log *slog.Logger, launcher control.Launcher) *Host {
	cfg.applyDefaults()
	events := NewEvents(b, clk, log, cfg.SubjectPrefix, cfg.LatticeID, cfg.HostID)
	ctl := control.NewHandler(log, cfg.HostID, launcher, events)

	h := &Host{
		cfg:      cfg,
		bus:      b,
		clock:    clk,
		log:      log,
		ctl:      ctl,
		events:   events,
		shutdown: make(chan struct{}),
	}
	h.monitor = health.NewMonitor(health.Config{
		Bus:      b,
		Clock:    clk,
		Log:      log,
		Prefix:   cfg.SubjectPrefix,
		Lattice:  cfg.LatticeID,
		Interval: cfg.healthInterval,
		Timeout:  cfg.rpcTimeout,
		OnTransition: func(entity wire.Entity, healthy bool, message string) {
			eventType := wire.EventHealthFailed
			if healthy {
				eventType = wire.EventHealthRestored
			}
			events.Emit(eventType, entity.ID, map[string]string{"message": message})
		},
	})
	h.auctions = auction.NewResponder(b, log, cfg.SubjectPrefix, cfg.LatticeID, cfg.HostID, cfg.Labels,
		func(req wire.AuctionRequest) bool {
			// Providers are single-instance per ref and link name on
			// one host; components scale instead.
			if req.Kind != wire.KindProvider {
				return false
			}
			linkName := req.LinkName
			if linkName == "" {
				linkName = subject.DefaultLinkName
			}
			return ctl.Running(req.Ref, linkName)
		})
	return h
}

// Start subscribes the host's control surface and announces it to the
// lattice.
func (h *Host) Start() error {
	h.started = h.clock.Now()

	verbs := map[string]bus.Handler{
		subject.VerbStart:     h.handleStart,
		subject.VerbStop:      h.handleStop,
		subject.VerbScale:     h.handleScale,
		subject.VerbUpdate:    h.handleUpdate,
		subject.VerbShutdown:  h.handleShutdown,
		subject.VerbInventory: h.handleInventory,
	}
	for verb, handler := range verbs {
		subj, err := subject.Control{
			Prefix:  h.cfg.SubjectPrefix,
			Lattice: h.cfg.LatticeID,
			HostID:  h.cfg.HostID,
			Verb:    verb,
		}.Subject()
		if err != nil {
			h.drainSubs()
			return err
		}
		sub, err := h.bus.Subscribe(subj, handler)
		if err != nil {
			h.drainSubs()
			return fmt.Errorf("host: subscribing on %s: %w", subj, err)
		}
		h.subs = append(h.subs, sub)
	}

	pingSubj, err := subject.Ping{Prefix: h.cfg.SubjectPrefix, Lattice: h.cfg.LatticeID}.Subject()
	if err != nil {
		h.drainSubs()
		return err
	}
	pingSub, err := h.bus.Subscribe(pingSubj, h.handlePing)
	if err != nil {
		h.drainSubs()
		return fmt.Errorf("host: subscribing on %s: %w", pingSubj, err)
	}
	h.subs = append(h.subs, pingSub)

	if err := h.auctions.Start(); err != nil {
		h.drainSubs()
		return err
	}
	h.events.Emit(wire.EventHostStarted, "", map[string]string{"lattice": h.cfg.LatticeID})
	h.log.Info("host started",
		"host_id", h.cfg.HostID,
		"lattice", h.cfg.LatticeID,
		"labels", h.cfg.Labels)
	return nil
}

// Run starts the host and blocks until ctx is cancelled or a shutdown
// command arrives, then tears down: local entities are stopped,
// pending acknowledgements flushed, and bus resources released.
func (h *Host) Run(ctx context.Context) error {
	if err := h.Start(); err != nil {
		return err
	}

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.monitor.Run(loopCtx)
	}()
	go func() {
		defer wg.Done()
		h.heartbeat(loopCtx)
	}()

	select {
	case <-ctx.Done():
		h.log.Info("host stopping", "reason", "context cancelled")
	case <-h.shutdown:
		h.log.Info("host stopping", "reason", "shutdown command")
	}
	cancel()
	wg.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	h.ctl.StopAll(stopCtx, 5000)
	h.events.Emit(wire.EventHostStopped, "", nil)
	if err := h.bus.Flush(); err != nil {
		h.log.Warn("flushing bus at shutdown", "error", err)
	}
	h.auctions.Drain()
	h.drainSubs()
	return nil
}

// Inventory snapshots what the host is running right now.
func (h *Host) Inventory() wire.HostInventory {
	components, providers := h.ctl.Inventory()
	return wire.HostInventory{
		HostID:        h.cfg.HostID,
		Labels:        h.cfg.Labels,
		Components:    components,
		Providers:     providers,
		UptimeSeconds: uint64(h.clock.Now().Sub(h.started) / time.Second),
	}
}

func (h *Host) heartbeat(ctx context.Context) {
	ticker := h.clock.NewTicker(h.cfg.heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			inv := h.Inventory()
			h.events.Emit(wire.EventHostHeartbeat, "", map[string]string{
				"components": fmt.Sprint(len(inv.Components)),
				"providers":  fmt.Sprint(len(inv.Providers)),
				"uptime_sec": fmt.Sprint(inv.UptimeSeconds),
			})
		case <-ctx.Done():
			return
		}
	}
}

func (h *Host) handleStart(msg bus.Message) {
	var cmd wire.StartCommand
	if err := wire.Decode(msg.Data, &cmd); err != nil {
		h.ack(msg.Reply, wire.ControlAck{Message: fmt.Sprintf("invalid start command: %v", err)})
		return
	}
	ack := h.ctl.Start(context.Background(), cmd)
	if ack.Accepted && cmd.Kind == wire.KindProvider {
		h.monitor.Track(wire.Entity{ID: cmd.EntityID, LinkName: cmd.LinkName})
	}
	h.ack(msg.Reply, ack)
}

func (h *Host) handleStop(msg bus.Message) {
	var cmd wire.StopCommand
	if err := wire.Decode(msg.Data, &cmd); err != nil {
		h.ack(msg.Reply, wire.ControlAck{Message: fmt.Sprintf("invalid stop command: %v", err)})
		return
	}
	ack := h.ctl.Stop(context.Background(), cmd)
	if ack.Accepted {
		h.monitor.Untrack(cmd.EntityID)
	}
	h.ack(msg.Reply, ack)
}

func (h *Host) handleScale(msg bus.Message) {
	var cmd wire.ScaleCommand
	if err := wire.Decode(msg.Data, &cmd); err != nil {
		h.ack(msg.Reply, wire.ControlAck{Message: fmt.Sprintf("invalid scale command: %v", err)})
		return
	}
	h.ack(msg.Reply, h.ctl.Scale(context.Background(), cmd))
}

func (h *Host) handleUpdate(msg bus.Message) {
	var cmd wire.UpdateCommand
	if err := wire.Decode(msg.Data, &cmd); err != nil {
		h.ack(msg.Reply, wire.ControlAck{Message: fmt.Sprintf("invalid update command: %v", err)})
		return
	}
	h.ack(msg.Reply, h.ctl.Update(context.Background(), cmd))
}

func (h *Host) handleShutdown(msg bus.Message) {
	var cmd wire.StopHostCommand
	if err := wire.Decode(msg.Data, &cmd); err != nil {
		h.ack(msg.Reply, wire.ControlAck{Message: fmt.Sprintf("invalid shutdown command: %v", err)})
		return
	}
	// Ack first so the controller hears back before the bus teardown.
	h.ack(msg.Reply, wire.ControlAck{Accepted: true, Message: fmt.Sprintf("host %s shutting down", h.cfg.HostID)})
	h.shutdownOnce.Do(func() { close(h.shutdown) })
}

func (h *Host) handlePing(msg bus.Message) {
	if msg.Reply == "" {
		h.log.Warn("ping without reply subject")
		return
	}
	inv := h.Inventory()
	ping := wire.HostPing{
		HostID:        inv.HostID,
		Labels:        inv.Labels,
		Components:    uint32(len(inv.Components)),
		Providers:     uint32(len(inv.Providers)),
		UptimeSeconds: inv.UptimeSeconds,
	}
	data, err := wire.Encode(&ping)
	if err != nil {
		h.log.Error("encoding ping answer", "error", err)
		return
	}
	if err := h.bus.Publish(msg.Reply, data); err != nil {
		h.log.Warn("publishing ping answer", "error", err)
	}
}

func (h *Host) handleInventory(msg bus.Message) {
	if msg.Reply == "" {
		h.log.Warn("inventory query without reply subject")
		return
	}
	inv := h.Inventory()
	data, err := wire.Encode(&inv)
	if err != nil {
		h.log.Error("encoding inventory", "error", err)
		return
	}
	if err := h.bus.Publish(msg.Reply, data); err != nil {
		h.log.Warn("publishing inventory", "error", err)
	}
}

// ack answers a control command. Every command gets some synchronous
// answer; an undeliverable one is only logged because the caller's
// timeout covers the loss.
func (h *Host) ack(reply string, ack wire.ControlAck) {
	if reply == "" {
		h.log.Warn("control command without reply subject", "accepted", ack.Accepted, "message", ack.Message)
		return
	}
	data, err := wire.Encode(&ack)
	if err != nil {
		h.log.Error("encoding control ack", "error", err)
		return
	}
	if err := h.bus.Publish(reply, data); err != nil {
		h.log.Warn("publishing control ack", "error", err)
	}
}

func (h *Host) drainSubs() {
	for _, sub := range h.subs {
		if err := sub.Drain(); err != nil {
			h.log.Warn("draining control subscription", "error", err)
		}
	}
	h.subs = nil
}
