// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package health implements the liveness protocol: a host-side
// monitor that probes tracked dependencies on a fixed interval, and a
// responder that answers probes for one entity. A dependency becomes
// unhealthy only after several consecutive missed probes, so a single
// dropped message never flaps its state.
package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lattice-foundation/lattice/bus"
	"github.com/lattice-foundation/lattice/lib/clock"
	"github.com/lattice-foundation/lattice/subject"
	"github.com/lattice-foundation/lattice/wire"
)

const (
	// DefaultInterval is the probe period.
	DefaultInterval = 30 * time.Second
	// DefaultTimeout bounds one probe. An unanswered probe is
	// indistinguishable from an unhealthy answer.
	DefaultTimeout = 2 * time.Second
	// DefaultMissThreshold is the number of consecutive missed probes
	// after which a dependency transitions to unhealthy.
	DefaultMissThreshold = 3
)

// TransitionFunc observes health state changes: healthy false when the
// miss threshold is crossed, healthy true when a probe succeeds again.
// It is not called for probes that do not change state.
type TransitionFunc func(entity wire.Entity, healthy bool, message string)

// Config assembles a Monitor. Bus, Clock, Log, and Lattice are
// required; zero values elsewhere select defaults.
type Config struct {
	Bus   bus.Bus
	Clock clock.Clock
	Log   *slog.Logger

	Prefix  string
	Lattice string

	Interval      time.Duration
	Timeout       time.Duration
	MissThreshold int

	// OnTransition may be nil.
	OnTransition TransitionFunc
}

// Monitor probes every tracked dependency once per interval.
type Monitor struct {
	bus          bus.Bus
	clock        clock.Clock
	log          *slog.Logger
	prefix       string
	lattice      string
	interval     time.Duration
	timeout      time.Duration
	threshold    int
	onTransition TransitionFunc

	mu      sync.Mutex
	targets map[string]*targetState
}

type targetState struct {
	entity    wire.Entity
	misses    int
	unhealthy bool
}

func NewMonitor(cfg Config) *Monitor {
	if cfg.Prefix == "" {
		cfg.Prefix = subject.DefaultPrefix
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MissThreshold <= 0 {
		cfg.MissThreshold = DefaultMissThreshold
	}
	return &Monitor{
		bus:          cfg.Bus,
		clock:        cfg.Clock,
		log:          cfg.Log,
		prefix:       cfg.Prefix,
		lattice:      cfg.Lattice,
		interval:     cfg.Interval,
		timeout:      cfg.Timeout,
		threshold:    cfg.MissThreshold,
		onTransition: cfg.OnTransition,
	}
}

// Track adds a dependency to the probe set. Re-tracking a known
// entity resets its miss count.
func (m *Monitor) Track(entity wire.Entity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.targets == nil {
		m.targets = make(map[string]*targetState)
	}
	m.targets[entity.ID] = &targetState{entity: entity}
}

// Untrack removes a dependency. Untracking an unknown id is a no-op.
func (m *Monitor) Untrack(entityID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.targets, entityID)
}

// Run probes on the configured interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.checkOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// checkOnce probes every tracked dependency once, applying the
// hysteresis rules.
func (m *Monitor) checkOnce(ctx context.Context) {
	m.mu.Lock()
	entities := make([]wire.Entity, 0, len(m.targets))
	for _, target := range m.targets {
		entities = append(entities, target.entity)
	}
	m.mu.Unlock()

	for _, entity := range entities {
		healthy, message := m.probe(ctx, entity)
		m.record(entity, healthy, message)
	}
}

func (m *Monitor) probe(ctx context.Context, entity wire.Entity) (bool, string) {
	linkName := entity.LinkName
	if linkName == "" {
		linkName = subject.DefaultLinkName
	}
	subj, err := subject.RPC{
		Prefix:   m.prefix,
		Lattice:  m.lattice,
		Target:   entity.ID,
		LinkName: linkName,
		Leaf:     subject.LeafHealth,
	}.Subject()
	if err != nil {
		return false, err.Error()
	}

	data, err := wire.Encode(wire.HealthCheckRequest{})
	if err != nil {
		return false, err.Error()
	}
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	msg, err := m.bus.Request(ctx, subj, data)
	if err != nil {
		return false, err.Error()
	}
	var resp wire.HealthCheckResponse
	if err := wire.Decode(msg.Data, &resp); err != nil {
		return false, err.Error()
	}
	return resp.Healthy, resp.Message
}

func (m *Monitor) record(entity wire.Entity, healthy bool, message string) {
	m.mu.Lock()
	target := m.targets[entity.ID]
	if target == nil {
		// Untracked while the probe was in flight.
		m.mu.Unlock()
		return
	}

	var transition *bool
	if healthy {
		target.misses = 0
		if target.unhealthy {
			target.unhealthy = false
			up := true
			transition = &up
		}
	} else {
		target.misses++
		m.log.Warn("health probe missed",
			"entity_id", entity.ID,
			"misses", target.misses,
			"message", message)
		if target.misses >= m.threshold && !target.unhealthy {
			target.unhealthy = true
			down := false
			transition = &down
		}
	}
	m.mu.Unlock()

	if transition == nil || m.onTransition == nil {
		return
	}
	if *transition {
		m.log.Info("dependency recovered", "entity_id", entity.ID)
	} else {
		m.log.Error("dependency unhealthy", "entity_id", entity.ID, "message", message)
	}
	m.onTransition(entity, *transition, message)
}
