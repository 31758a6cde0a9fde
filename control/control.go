// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package control processes start, stop, scale, and update commands
// against the entities a host runs. Every command is idempotent and
// every command yields a synchronous acknowledgement; completion is
// observed asynchronously on the event subjects.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/lattice-foundation/lattice/wire"
)

// ErrInvalidTransition reports a command that does not apply to the
// entity's current state, such as scaling an absent entity. It is
// always converted into an acknowledgement with Accepted false, never
// surfaced as a bus-level failure.
var ErrInvalidTransition = errors.New("control: invalid transition")

// State is one node of the per-entity lifecycle.
type State int

const (
	StateAbsent State = iota
	StateStarting
	StateRunning
	StateStopping
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Launcher is the execution engine boundary: it performs the actual
// workload operations the state machine decides on. Implementations
// run real workloads in production and record calls in tests.
type Launcher interface {
	Start(ctx context.Context, kind wire.EntityKind, ref, entityID, linkName string, count uint32) error
	Stop(ctx context.Context, entityID string, timeoutMillis uint64) error
	Scale(ctx context.Context, entityID string, count uint32) error
	Update(ctx context.Context, entityID, newRef string) error
}

// Emitter publishes lifecycle events. The host wires this to the evt
// subject family.
type Emitter interface {
	Emit(eventType, entityID string, data any)
}

// Instance is the tracked state of one managed entity.
type Instance struct {
	EntityID    string
	Kind        wire.EntityKind
	Ref         string
	LinkName    string
	Count       uint32
	Annotations map[string]string
	State       State
}

// Handler owns the per-entity state machines of one host.
type Handler struct {
	log      *slog.Logger
	hostID   string
	launcher Launcher
	emitter  Emitter

	mu        sync.Mutex
	instances map[string]*Instance
}

func NewHandler(log *slog.Logger, hostID string, launcher Launcher, emitter Emitter) *Handler {
	return &Handler{
		log:       log,
		hostID:    hostID,
		launcher:  launcher,
		emitter:   emitter,
		instances: make(map[string]*Instance),
	}
}

// Start runs Count instances of the entity at cmd.Ref. Starting an
// already-running matching entity is an accepted no-op; an entity id
// already bound to a different ref is rejected.
func (h *Handler) Start(ctx context.Context, cmd wire.StartCommand) wire.ControlAck {
	if err := cmd.Validate(); err != nil {
		return reject("invalid start command: %v", err)
	}
	count := cmd.Count
	if count == 0 {
		count = 1
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if existing, ok := h.instances[cmd.EntityID]; ok {
		switch {
		case existing.State == StateRunning && existing.Ref == cmd.Ref:
			return accept("entity %s already running %s", cmd.EntityID, cmd.Ref)
		case existing.Ref != cmd.Ref:
			return reject("entity id %s already bound to %s", cmd.EntityID, existing.Ref)
		default:
			return reject("%v: entity %s is %s", ErrInvalidTransition, cmd.EntityID, existing.State)
		}
	}

	inst := &Instance{
		EntityID:    cmd.EntityID,
		Kind:        cmd.Kind,
		Ref:         cmd.Ref,
		LinkName:    cmd.LinkName,
		Count:       count,
		Annotations: maps.Clone(cmd.Annotations),
		State:       StateStarting,
	}
	h.instances[cmd.EntityID] = inst

	if err := h.launcher.Start(ctx, cmd.Kind, cmd.Ref, cmd.EntityID, cmd.LinkName, count); err != nil {
		inst.State = StateFailed
		h.emitter.Emit(wire.EventFailed, cmd.EntityID, map[string]string{"error": err.Error()})
		h.log.Error("starting entity", "entity_id", cmd.EntityID, "ref", cmd.Ref, "error", err)
		return reject("starting %s: %v", cmd.EntityID, err)
	}
	inst.State = StateRunning
	h.emitter.Emit(wire.EventStarted, cmd.EntityID, map[string]string{"ref": cmd.Ref})
	h.log.Info("entity started", "entity_id", cmd.EntityID, "kind", cmd.Kind, "ref", cmd.Ref, "count", count)
	return accept("started %s", cmd.EntityID)
}

// Stop halts a running entity. Stopping an absent entity is an
// accepted no-op; a failed entity is cleaned up.
func (h *Handler) Stop(ctx context.Context, cmd wire.StopCommand) wire.ControlAck {
	if err := cmd.Validate(); err != nil {
		return reject("invalid stop command: %v", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	inst, ok := h.instances[cmd.EntityID]
	if !ok {
		return accept("entity %s not running", cmd.EntityID)
	}
	if inst.State == StateStopping {
		return accept("entity %s already stopping", cmd.EntityID)
	}

	inst.State = StateStopping
	if err := h.launcher.Stop(ctx, cmd.EntityID, cmd.TimeoutMillis); err != nil {
		inst.State = StateFailed
		h.emitter.Emit(wire.EventFailed, cmd.EntityID, map[string]string{"error": err.Error()})
		h.log.Error("stopping entity", "entity_id", cmd.EntityID, "error", err)
		return reject("stopping %s: %v", cmd.EntityID, err)
	}
	delete(h.instances, cmd.EntityID)
	h.emitter.Emit(wire.EventStopped, cmd.EntityID, nil)
	h.log.Info("entity stopped", "entity_id", cmd.EntityID)
	return accept("stopped %s", cmd.EntityID)
}

// Scale adjusts a running entity's instance count. Scaling an absent
// entity is an invalid transition, not an implicit start.
func (h *Handler) Scale(ctx context.Context, cmd wire.ScaleCommand) wire.ControlAck {
	if err := cmd.Validate(); err != nil {
		return reject("invalid scale command: %v", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	inst, ok := h.instances[cmd.EntityID]
	if !ok {
		return reject("%v: cannot scale absent entity %s", ErrInvalidTransition, cmd.EntityID)
	}
	if inst.State != StateRunning {
		return reject("%v: entity %s is %s", ErrInvalidTransition, cmd.EntityID, inst.State)
	}
	if inst.Count == cmd.Count {
		return accept("entity %s already at %d instances", cmd.EntityID, cmd.Count)
	}

	if err := h.launcher.Scale(ctx, cmd.EntityID, cmd.Count); err != nil {
		inst.State = StateFailed
		h.emitter.Emit(wire.EventFailed, cmd.EntityID, map[string]string{"error": err.Error()})
		h.log.Error("scaling entity", "entity_id", cmd.EntityID, "error", err)
		return reject("scaling %s: %v", cmd.EntityID, err)
	}
	inst.Count = cmd.Count
	h.emitter.Emit(wire.EventScaled, cmd.EntityID, map[string]string{"count": fmt.Sprint(cmd.Count)})
	h.log.Info("entity scaled", "entity_id", cmd.EntityID, "count", cmd.Count)
	return accept("scaled %s to %d", cmd.EntityID, cmd.Count)
}

// Update replaces the package reference of running instances. With a
// non-empty EntityID only that instance is considered; otherwise every
// instance is. In both cases an instance is touched only if its
// annotations are a superset of the command's, which is how canary
// updates of otherwise-identical entities are scoped.
func (h *Handler) Update(ctx context.Context, cmd wire.UpdateCommand) wire.ControlAck {
	if err := cmd.Validate(); err != nil {
		return reject("invalid update command: %v", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	var candidates []*Instance
	if cmd.EntityID != "" {
		inst, ok := h.instances[cmd.EntityID]
		if !ok {
			return reject("%v: cannot update absent entity %s", ErrInvalidTransition, cmd.EntityID)
		}
		candidates = append(candidates, inst)
	} else {
		for _, inst := range h.instances {
			candidates = append(candidates, inst)
		}
	}

	updated := 0
	for _, inst := range candidates {
		if inst.State != StateRunning || !annotationSuperset(inst.Annotations, cmd.Annotations) {
			continue
		}
		if inst.Ref == cmd.NewRef {
			updated++
			continue
		}
		if err := h.launcher.Update(ctx, inst.EntityID, cmd.NewRef); err != nil {
			inst.State = StateFailed
			h.emitter.Emit(wire.EventFailed, inst.EntityID, map[string]string{"error": err.Error()})
			h.log.Error("updating entity", "entity_id", inst.EntityID, "new_ref", cmd.NewRef, "error", err)
			return reject("updating %s: %v", inst.EntityID, err)
		}
		inst.Ref = cmd.NewRef
		h.emitter.Emit(wire.EventUpdated, inst.EntityID, map[string]string{"ref": cmd.NewRef})
		updated++
	}
	h.log.Info("entities updated", "new_ref", cmd.NewRef, "count", updated)
	return accept("updated %d instances to %s", updated, cmd.NewRef)
}

// StopAll halts every tracked entity, for host shutdown. Failures are
// logged and do not halt the sweep.
func (h *Handler) StopAll(ctx context.Context, timeoutMillis uint64) {
	h.mu.Lock()
	ids := slices.Sorted(maps.Keys(h.instances))
	h.mu.Unlock()
	for _, id := range ids {
		ack := h.Stop(ctx, wire.StopCommand{HostID: h.hostID, EntityID: id, TimeoutMillis: timeoutMillis})
		if !ack.Accepted {
			h.log.Warn("stopping entity at shutdown", "entity_id", id, "message", ack.Message)
		}
	}
}

// Running reports whether an instance with the given ref (and link
// name, for providers) is tracked, which auctions use as their
// single-instance conflict rule.
func (h *Handler) Running(ref, linkName string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, inst := range h.instances {
		if inst.Ref == ref && inst.LinkName == linkName && inst.State != StateFailed {
			return true
		}
	}
	return false
}

// Inventory snapshots the tracked entities for an inventory query.
func (h *Handler) Inventory() (components []wire.ComponentStatus, providers []wire.ProviderStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range slices.Sorted(maps.Keys(h.instances)) {
		inst := h.instances[id]
		if inst.State != StateRunning {
			continue
		}
		switch inst.Kind {
		case wire.KindComponent:
			components = append(components, wire.ComponentStatus{
				ID:          inst.EntityID,
				Ref:         inst.Ref,
				Count:       inst.Count,
				Annotations: maps.Clone(inst.Annotations),
			})
		case wire.KindProvider:
			providers = append(providers, wire.ProviderStatus{
				ID:          inst.EntityID,
				Ref:         inst.Ref,
				LinkName:    inst.LinkName,
				Annotations: maps.Clone(inst.Annotations),
			})
		}
	}
	return components, providers
}

// annotationSuperset reports whether have contains every key/value
// pair in want.
func annotationSuperset(have, want map[string]string) bool {
	for key, value := range want {
		if have[key] != value {
			return false
		}
	}
	return true
}

func accept(format string, args ...any) wire.ControlAck {
	return wire.ControlAck{Accepted: true, Message: fmt.Sprintf(format, args...)}
}

func reject(format string, args ...any) wire.ControlAck {
	return wire.ControlAck{Accepted: false, Message: fmt.Sprintf(format, args...)}
}
