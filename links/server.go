// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package links

import (
	"fmt"
	"log/slog"

	"github.com/lattice-foundation/lattice/bus"
	"github.com/lattice-foundation/lattice/lib/codec"
	"github.com/lattice-foundation/lattice/subject"
	"github.com/lattice-foundation/lattice/wire"
)

// Server applies link mutations arriving on the bus to a local Cache
// and answers bulk queries.
//
// Put and delete subscriptions are broadcast: every replica of the
// target entity applies the idempotent mutation to its own cache. The
// bulk query subscription is a load-balanced queue group so exactly
// one replica answers each request.
type Server struct {
	bus   bus.Bus
	cache *Cache
	log   *slog.Logger

	prefix   string
	lattice  string
	entity   string
	linkName string

	subs []bus.Subscription
}

// NewServer wires cache to the linkdefs subjects of one target entity.
// Call Start to subscribe.
func NewServer(b bus.Bus, cache *Cache, log *slog.Logger, prefix, lattice, entity, linkName string) *Server {
	return &Server{
		bus:      b,
		cache:    cache,
		log:      log,
		prefix:   prefix,
		lattice:  lattice,
		entity:   entity,
		linkName: linkName,
	}
}

// Start subscribes to the put, del, and get subjects. On error, any
// subscriptions already established are drained.
func (s *Server) Start() error {
	put, err := s.subscribe(subject.LeafLinkPut, false, s.handlePut)
	if err != nil {
		return err
	}
	s.subs = append(s.subs, put)

	del, err := s.subscribe(subject.LeafLinkDel, false, s.handleDelete)
	if err != nil {
		s.Drain()
		return err
	}
	s.subs = append(s.subs, del)

	get, err := s.subscribe(subject.LeafLinkGet, true, s.handleGet)
	if err != nil {
		s.Drain()
		return err
	}
	s.subs = append(s.subs, get)
	return nil
}

// Drain unsubscribes from all linkdefs subjects. The cache itself is
// left intact.
func (s *Server) Drain() {
	for _, sub := range s.subs {
		if err := sub.Drain(); err != nil {
			s.log.Warn("draining linkdefs subscription", "error", err)
		}
	}
	s.subs = nil
}

func (s *Server) subscribe(leaf subject.RPCLeaf, queued bool, handler bus.Handler) (bus.Subscription, error) {
	addr := subject.RPC{
		Prefix:   s.prefix,
		Lattice:  s.lattice,
		Target:   s.entity,
		LinkName: s.linkName,
		Leaf:     leaf,
	}
	subj, err := addr.Subject()
	if err != nil {
		return nil, fmt.Errorf("links: %w", err)
	}
	if queued {
		return s.bus.QueueSubscribe(subj, subj, handler)
	}
	return s.bus.Subscribe(subj, handler)
}

func (s *Server) handlePut(msg bus.Message) {
	var def wire.LinkDefinition
	if err := wire.Decode(msg.Data, &def); err != nil {
		s.log.Warn("dropping malformed link put", "subject", msg.Subject, "error", err)
		return
	}
	// Put logs its own rejection for semantically invalid definitions.
	_ = s.cache.Put(def)
}

func (s *Server) handleDelete(msg bus.Message) {
	var key wire.LinkKey
	if err := wire.Decode(msg.Data, &key); err != nil {
		s.log.Warn("dropping malformed link delete", "subject", msg.Subject, "error", err)
		return
	}
	s.cache.Delete(key)
}

func (s *Server) handleGet(msg bus.Message) {
	if msg.Reply == "" {
		s.log.Warn("link query without reply subject", "subject", msg.Subject)
		return
	}
	data, err := codec.Marshal(s.cache.GetAll())
	if err != nil {
		s.log.Error("encoding link query response", "error", err)
		return
	}
	if err := s.bus.Publish(msg.Reply, data); err != nil {
		s.log.Warn("publishing link query response", "error", err)
	}
}
