// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/lattice-foundation/lattice/bus"
	"github.com/lattice-foundation/lattice/lib/clock"
	"github.com/lattice-foundation/lattice/lib/codec"
	"github.com/lattice-foundation/lattice/subject"
	"github.com/lattice-foundation/lattice/wire"
)

// Events publishes lifecycle events on the evt subject family.
// Publication is fire-and-forget: a failed publish is logged, never
// propagated, because events are advisory.
type Events struct {
	bus   bus.Bus
	clock clock.Clock
	log   *slog.Logger

	prefix  string
	lattice string
	hostID  string
}

func NewEvents(b bus.Bus, clk clock.Clock, log *slog.Logger, prefix, lattice, hostID string) *Events {
	if prefix == "" {
		prefix = subject.DefaultPrefix
	}
	return &Events{bus: b, clock: clk, log: log, prefix: prefix, lattice: lattice, hostID: hostID}
}

// Emit publishes one event. entityID may be empty for host-level
// events; data may be nil.
func (e *Events) Emit(eventType, entityID string, data any) {
	body := map[string]any{}
	if entityID != "" {
		body["entity_id"] = entityID
	}
	switch extra := data.(type) {
	case nil:
	case map[string]string:
		for key, value := range extra {
			body[key] = value
		}
	default:
		body["data"] = extra
	}
	raw, err := codec.Marshal(body)
	if err != nil {
		e.log.Error("encoding event body", "type", eventType, "error", err)
		return
	}

	event := wire.Event{
		Type:   eventType,
		ID:     uuid.NewString(),
		HostID: e.hostID,
		Time:   e.clock.Now().UTC().Format(time.RFC3339Nano),
		Data:   codec.RawMessage(raw),
	}
	subj, err := subject.Event{Prefix: e.prefix, Lattice: e.lattice, Type: eventType}.Subject()
	if err != nil {
		e.log.Error("building event subject", "type", eventType, "error", err)
		return
	}
	payload, err := wire.Encode(&event)
	if err != nil {
		e.log.Error("encoding event", "type", eventType, "error", err)
		return
	}
	if err := e.bus.Publish(subj, payload); err != nil {
		e.log.Warn("publishing event", "type", eventType, "error", err)
	}
}
