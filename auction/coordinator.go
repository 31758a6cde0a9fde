// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package auction implements scatter-gather placement discovery: a
// coordinator broadcasts a candidate and collects bids from every
// eligible host within a soft window, and a responder answers for one
// host. Ineligible hosts stay silent rather than sending a decline,
// and picking a winner among the returned bids is the caller's job.
package auction

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lattice-foundation/lattice/bus"
	"github.com/lattice-foundation/lattice/lib/clock"
	"github.com/lattice-foundation/lattice/subject"
	"github.com/lattice-foundation/lattice/wire"
)

// DefaultWindow is the bid collection window used when the caller
// passes none.
const DefaultWindow = 3 * time.Second

// Coordinator runs auctions on behalf of a controller.
type Coordinator struct {
	bus   bus.Bus
	clock clock.Clock
	log   *slog.Logger

	prefix  string
	lattice string
}

func NewCoordinator(b bus.Bus, clk clock.Clock, log *slog.Logger, prefix, lattice string) *Coordinator {
	if prefix == "" {
		prefix = subject.DefaultPrefix
	}
	return &Coordinator{bus: b, clock: clk, log: log, prefix: prefix, lattice: lattice}
}

// Auction broadcasts req and returns every bid that arrives before
// window elapses, deduplicated by host. The window is a soft deadline:
// late bids are simply not included, never an error, and an empty list
// is a valid successful outcome. Context cancellation returns the bids
// collected so far along with the context's error.
func (c *Coordinator) Auction(ctx context.Context, req wire.AuctionRequest, window time.Duration) ([]wire.AuctionBid, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("auction: invalid request: %w", err)
	}
	if window <= 0 {
		window = DefaultWindow
	}
	subj, err := subject.Auction{Prefix: c.prefix, Lattice: c.lattice, Kind: req.Kind}.Subject()
	if err != nil {
		return nil, err
	}
	data, err := wire.Encode(&req)
	if err != nil {
		return nil, fmt.Errorf("auction: encoding request: %w", err)
	}

	inbox := c.bus.NewInbox()
	arrived := make(chan wire.AuctionBid, 64)
	sub, err := c.bus.Subscribe(inbox, func(msg bus.Message) {
		var bid wire.AuctionBid
		if err := wire.Decode(msg.Data, &bid); err != nil {
			c.log.Warn("dropping malformed auction bid", "error", err)
			return
		}
		select {
		case arrived <- bid:
		default:
			c.log.Warn("dropping auction bid beyond buffer", "host_id", bid.HostID)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("auction: subscribing bid inbox: %w", err)
	}
	defer sub.Drain()

	if err := c.bus.PublishRequest(subj, inbox, data); err != nil {
		return nil, fmt.Errorf("auction: broadcasting on %s: %w", subj, err)
	}

	var bids []wire.AuctionBid
	seen := make(map[string]bool)
	deadline := c.clock.After(window)
	for {
		select {
		case bid := <-arrived:
			if seen[bid.HostID] {
				continue
			}
			seen[bid.HostID] = true
			bids = append(bids, bid)
		case <-deadline:
			return bids, nil
		case <-ctx.Done():
			return bids, ctx.Err()
		}
	}
}
