// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package auction

import (
	"fmt"
	"log/slog"

	"github.com/lattice-foundation/lattice/bus"
	"github.com/lattice-foundation/lattice/subject"
	"github.com/lattice-foundation/lattice/wire"
)

// ConflictFunc reports whether the host already runs an instance that
// conflicts with the candidate under a single-instance rule. A
// conflicting host stays silent instead of bidding.
type ConflictFunc func(req wire.AuctionRequest) bool

// Responder answers auction broadcasts on behalf of one host. It bids
// only when every requested constraint matches the host's labels
// exactly and no conflict rule applies; otherwise it sends nothing at
// all, since silence is cheaper than an explicit decline on a
// broadcast subject.
type Responder struct {
	bus bus.Bus
	log *slog.Logger

	prefix    string
	lattice   string
	hostID    string
	labels    map[string]string
	conflicts ConflictFunc

	subs []bus.Subscription
}

// NewResponder builds a responder for one host. conflicts may be nil
// when no single-instance rule applies.
func NewResponder(b bus.Bus, log *slog.Logger, prefix, lattice, hostID string, labels map[string]string, conflicts ConflictFunc) *Responder {
	if prefix == "" {
		prefix = subject.DefaultPrefix
	}
	return &Responder{
		bus:       b,
		log:       log,
		prefix:    prefix,
		lattice:   lattice,
		hostID:    hostID,
		labels:    labels,
		conflicts: conflicts,
	}
}

// Start subscribes to the component and provider auction subjects.
func (r *Responder) Start() error {
	for _, kind := range []wire.EntityKind{wire.KindComponent, wire.KindProvider} {
		subj, err := subject.Auction{Prefix: r.prefix, Lattice: r.lattice, Kind: kind}.Subject()
		if err != nil {
			r.Drain()
			return err
		}
		sub, err := r.bus.Subscribe(subj, r.handle)
		if err != nil {
			r.Drain()
			return fmt.Errorf("auction: subscribing on %s: %w", subj, err)
		}
		r.subs = append(r.subs, sub)
	}
	return nil
}

// Drain stops answering auctions.
func (r *Responder) Drain() {
	for _, sub := range r.subs {
		if err := sub.Drain(); err != nil {
			r.log.Warn("draining auction subscription", "error", err)
		}
	}
	r.subs = nil
}

func (r *Responder) handle(msg bus.Message) {
	if msg.Reply == "" {
		r.log.Warn("auction request without reply subject", "subject", msg.Subject)
		return
	}
	var req wire.AuctionRequest
	if err := wire.Decode(msg.Data, &req); err != nil {
		r.log.Warn("dropping malformed auction request", "subject", msg.Subject, "error", err)
		return
	}
	if !r.eligible(req) {
		return
	}

	bid := wire.AuctionBid{HostID: r.hostID, Ref: req.Ref, LinkName: req.LinkName}
	data, err := wire.Encode(&bid)
	if err != nil {
		r.log.Error("encoding auction bid", "error", err)
		return
	}
	if err := r.bus.Publish(msg.Reply, data); err != nil {
		r.log.Warn("publishing auction bid", "ref", req.Ref, "error", err)
		return
	}
	r.log.Info("bid on auction", "kind", req.Kind, "ref", req.Ref)
}

// eligible applies exact-match-all constraint semantics: every
// requested label must match the host's value exactly; local labels
// the request does not name are ignored.
func (r *Responder) eligible(req wire.AuctionRequest) bool {
	for key, want := range req.Constraints {
		if got, ok := r.labels[key]; !ok || got != want {
			return false
		}
	}
	if r.conflicts != nil && r.conflicts(req) {
		return false
	}
	return true
}
