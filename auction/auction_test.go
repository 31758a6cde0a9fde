// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package auction

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/lattice-foundation/lattice/bus"
	"github.com/lattice-foundation/lattice/lib/clock"
	"github.com/lattice-foundation/lattice/lib/testutil"
	"github.com/lattice-foundation/lattice/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

type auctionResult struct {
	bids []wire.AuctionBid
	err  error
}

// runAuction starts an auction on a fake clock and returns a channel
// carrying its result once the window is closed with Advance.
func runAuction(t *testing.T, c *Coordinator, req wire.AuctionRequest, window time.Duration) <-chan auctionResult {
	t.Helper()
	done := make(chan auctionResult, 1)
	go func() {
		bids, err := c.Auction(context.Background(), req, window)
		done <- auctionResult{bids: bids, err: err}
	}()
	return done
}

func startResponder(t *testing.T, b bus.Bus, hostID string, labels map[string]string, conflicts ConflictFunc) {
	t.Helper()
	r := NewResponder(b, testLogger(), "", "test", hostID, labels, conflicts)
	if err := r.Start(); err != nil {
		t.Fatalf("Start responder %s: %v", hostID, err)
	}
	t.Cleanup(r.Drain)
}

func TestAuctionCollectsEligibleBids(t *testing.T) {
	b := bus.NewMemory()
	defer b.Drain()
	clk := clock.Fake(time.Unix(1000, 0))
	c := NewCoordinator(b, clk, testLogger(), "", "test")

	startResponder(t, b, "host-a", map[string]string{"zone": "eu-1", "tier": "edge"}, nil)
	startResponder(t, b, "host-b", map[string]string{"zone": "eu-1"}, nil)
	startResponder(t, b, "host-c", map[string]string{"zone": "us-1"}, nil)

	req := wire.AuctionRequest{
		Kind:        wire.KindComponent,
		Ref:         "registry/echo:1.0",
		Constraints: map[string]string{"zone": "eu-1"},
	}
	done := runAuction(t, c, req, 3*time.Second)

	// Both eu-1 hosts bid. Bids are delivered by the memory bus's
	// goroutines; give the coordinator's select loop a moment to
	// absorb them before closing the window.
	clk.WaitForTimers(1)
	time.Sleep(50 * time.Millisecond)
	clk.Advance(3 * time.Second)

	res := testutil.RequireReceive(t, done, 5*time.Second, "auction result")
	if res.err != nil {
		t.Fatalf("Auction: %v", res.err)
	}
	if len(res.bids) != 2 {
		t.Fatalf("Auction returned %d bids, want 2: %+v", len(res.bids), res.bids)
	}
	hosts := map[string]bool{}
	for _, bid := range res.bids {
		hosts[bid.HostID] = true
		if bid.Ref != req.Ref {
			t.Errorf("bid ref = %q, want %q", bid.Ref, req.Ref)
		}
	}
	if !hosts["host-a"] || !hosts["host-b"] {
		t.Errorf("bidders = %v, want host-a and host-b", hosts)
	}
}

func TestAuctionConstraintMismatchReturnsEmpty(t *testing.T) {
	b := bus.NewMemory()
	defer b.Drain()
	clk := clock.Fake(time.Unix(1000, 0))
	c := NewCoordinator(b, clk, testLogger(), "", "test")

	startResponder(t, b, "host-a", map[string]string{"zone": "eu-1"}, nil)

	done := runAuction(t, c, wire.AuctionRequest{
		Kind:        wire.KindProvider,
		Ref:         "registry/kv:2.1",
		LinkName:    "default",
		Constraints: map[string]string{"zone": "mars-1"},
	}, 3*time.Second)

	// The lone host stays silent; the window closes with no bids.
	clk.WaitForTimers(1)
	clk.Advance(3 * time.Second)
	res := testutil.RequireReceive(t, done, 5*time.Second, "auction result")
	if res.err != nil {
		t.Fatalf("Auction: %v", res.err)
	}
	if len(res.bids) != 0 {
		t.Errorf("Auction returned %d bids, want 0 (empty list is success, not error)", len(res.bids))
	}
}

func TestAuctionConflictingHostStaysSilent(t *testing.T) {
	b := bus.NewMemory()
	defer b.Drain()
	clk := clock.Fake(time.Unix(1000, 0))
	c := NewCoordinator(b, clk, testLogger(), "", "test")

	startResponder(t, b, "host-busy", nil, func(wire.AuctionRequest) bool { return true })
	startResponder(t, b, "host-free", nil, nil)

	done := runAuction(t, c, wire.AuctionRequest{
		Kind: wire.KindProvider,
		Ref:  "registry/kv:2.1",
	}, 3*time.Second)

	clk.WaitForTimers(1)
	time.Sleep(50 * time.Millisecond)
	clk.Advance(3 * time.Second)
	res := testutil.RequireReceive(t, done, 5*time.Second, "auction result")
	if res.err != nil {
		t.Fatalf("Auction: %v", res.err)
	}
	if len(res.bids) != 1 || res.bids[0].HostID != "host-free" {
		t.Fatalf("Auction returned %+v, want a single bid from host-free", res.bids)
	}
}

func TestAuctionInvalidRequest(t *testing.T) {
	b := bus.NewMemory()
	defer b.Drain()
	c := NewCoordinator(b, clock.Fake(time.Unix(1000, 0)), testLogger(), "", "test")

	_, err := c.Auction(context.Background(), wire.AuctionRequest{Kind: "neither"}, time.Second)
	if err == nil {
		t.Fatal("Auction with invalid kind succeeded, want error")
	}
}

func TestResponderEligibility(t *testing.T) {
	r := NewResponder(nil, testLogger(), "", "test", "host-a",
		map[string]string{"zone": "eu-1", "arch": "arm64"}, nil)

	tests := []struct {
		name        string
		constraints map[string]string
		want        bool
	}{
		{name: "no constraints", constraints: nil, want: true},
		{name: "all match", constraints: map[string]string{"zone": "eu-1", "arch": "arm64"}, want: true},
		{name: "subset match", constraints: map[string]string{"zone": "eu-1"}, want: true},
		{name: "value mismatch", constraints: map[string]string{"zone": "us-1"}, want: false},
		{name: "missing label", constraints: map[string]string{"gpu": "a100"}, want: false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := wire.AuctionRequest{Kind: wire.KindComponent, Ref: "r", Constraints: tc.constraints}
			if got := r.eligible(req); got != tc.want {
				t.Errorf("eligible(%v) = %v, want %v", tc.constraints, got, tc.want)
			}
		})
	}
}
