// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package health

import (
	"fmt"
	"log/slog"

	"github.com/lattice-foundation/lattice/bus"
	"github.com/lattice-foundation/lattice/subject"
	"github.com/lattice-foundation/lattice/wire"
)

// CheckFunc produces the entity's current verdict. It must return
// promptly: an answer that misses the monitor's timeout counts as a
// missed probe.
type CheckFunc func() wire.HealthCheckResponse

// Responder answers health probes for one entity.
type Responder struct {
	bus   bus.Bus
	log   *slog.Logger
	check CheckFunc

	prefix  string
	lattice string
	entity  wire.Entity
	sub     bus.Subscription
}

func NewResponder(b bus.Bus, log *slog.Logger, prefix, lattice string, entity wire.Entity, check CheckFunc) *Responder {
	if prefix == "" {
		prefix = subject.DefaultPrefix
	}
	return &Responder{
		bus:     b,
		log:     log,
		check:   check,
		prefix:  prefix,
		lattice: lattice,
		entity:  entity,
	}
}

// Start subscribes to the entity's health subject.
func (r *Responder) Start() error {
	linkName := r.entity.LinkName
	if linkName == "" {
		linkName = subject.DefaultLinkName
	}
	subj, err := subject.RPC{
		Prefix:   r.prefix,
		Lattice:  r.lattice,
		Target:   r.entity.ID,
		LinkName: linkName,
		Leaf:     subject.LeafHealth,
	}.Subject()
	if err != nil {
		return err
	}
	sub, err := r.bus.Subscribe(subj, r.handle)
	if err != nil {
		return fmt.Errorf("health: subscribing on %s: %w", subj, err)
	}
	r.sub = sub
	return nil
}

// Drain stops answering probes.
func (r *Responder) Drain() {
	if r.sub == nil {
		return
	}
	if err := r.sub.Drain(); err != nil {
		r.log.Warn("draining health subscription", "error", err)
	}
	r.sub = nil
}

func (r *Responder) handle(msg bus.Message) {
	if msg.Reply == "" {
		r.log.Warn("health probe without reply subject", "subject", msg.Subject)
		return
	}
	resp := r.check()
	data, err := wire.Encode(&resp)
	if err != nil {
		r.log.Error("encoding health response", "error", err)
		return
	}
	if err := r.bus.Publish(msg.Reply, data); err != nil {
		r.log.Warn("publishing health response", "error", err)
	}
}
