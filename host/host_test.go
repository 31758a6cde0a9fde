// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package host

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/lattice-foundation/lattice/bus"
	"github.com/lattice-foundation/lattice/client"
	"github.com/lattice-foundation/lattice/lib/clock"
	"github.com/lattice-foundation/lattice/lib/testutil"
	"github.com/lattice-foundation/lattice/subject"
	"github.com/lattice-foundation/lattice/wire"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// nopLauncher accepts every operation.
type nopLauncher struct{}

func (nopLauncher) Start(context.Context, wire.EntityKind, string, string, string, uint32) error {
	return nil
}
func (nopLauncher) Stop(context.Context, string, uint64) error    { return nil }
func (nopLauncher) Scale(context.Context, string, uint32) error   { return nil }
func (nopLauncher) Update(context.Context, string, string) error  { return nil }

func testConfig() Config {
	return Config{
		LatticeID: "test",
		BusURL:    "mem://",
		HostID:    "host-a",
		Labels:    map[string]string{"zone": "eu-1"},
	}
}

type testRig struct {
	bus    *bus.Memory
	clock  *clock.FakeClock
	host   *Host
	client *client.Client
}

func newTestRig(t *testing.T) *testRig {
	t.Helper()
	b := bus.NewMemory()
	t.Cleanup(func() { b.Drain() })
	clk := clock.Fake(time.Unix(1000, 0))

	h := New(testConfig(), b, clk, testLogger(), nopLauncher{})
	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(h.drainSubs)

	return &testRig{
		bus:    b,
		clock:  clk,
		host:   h,
		client: client.New(b, clk, testLogger(), "", "test", 5*time.Second),
	}
}

func TestStartCommandRoundTrip(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	cmd := wire.StartCommand{
		HostID:   "host-a",
		Kind:     wire.KindComponent,
		Ref:      "registry/echo:1.0",
		EntityID: "echo",
		Count:    2,
	}
	ack, err := rig.client.Start(ctx, cmd)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !ack.Accepted {
		t.Fatalf("start rejected: %s", ack.Message)
	}

	// The same command again is an accepted no-op.
	ack, err = rig.client.Start(ctx, cmd)
	if err != nil {
		t.Fatalf("repeated Start: %v", err)
	}
	if !ack.Accepted {
		t.Fatalf("repeated start rejected: %s", ack.Message)
	}

	inv, err := rig.client.Inventory(ctx, "host-a")
	if err != nil {
		t.Fatalf("Inventory: %v", err)
	}
	if len(inv.Components) != 1 || inv.Components[0].ID != "echo" || inv.Components[0].Count != 2 {
		t.Errorf("inventory = %+v, want one echo component at count 2", inv.Components)
	}
	if inv.HostID != "host-a" || inv.Labels["zone"] != "eu-1" {
		t.Errorf("inventory identity = %s %v, want host-a with its labels", inv.HostID, inv.Labels)
	}
}

func TestScaleAbsentRejectedOverBus(t *testing.T) {
	rig := newTestRig(t)
	ack, err := rig.client.Scale(context.Background(), wire.ScaleCommand{
		HostID:   "host-a",
		EntityID: "ghost",
		Count:    3,
	})
	if err != nil {
		t.Fatalf("Scale: %v", err)
	}
	if ack.Accepted {
		t.Errorf("scale of absent entity accepted: %s", ack.Message)
	}
	if ack.Message == "" {
		t.Error("rejection carries no message for the operator")
	}
}

func TestAuctionAgainstHost(t *testing.T) {
	rig := newTestRig(t)

	done := make(chan []wire.AuctionBid, 1)
	go func() {
		bids, err := rig.client.Auction(context.Background(), wire.AuctionRequest{
			Kind:        wire.KindComponent,
			Ref:         "registry/echo:1.0",
			Constraints: map[string]string{"zone": "eu-1"},
		}, 3*time.Second)
		if err != nil {
			t.Errorf("Auction: %v", err)
		}
		done <- bids
	}()

	rig.clock.WaitForTimers(1)
	time.Sleep(50 * time.Millisecond)
	rig.clock.Advance(3 * time.Second)
	bids := testutil.RequireReceive(t, done, 5*time.Second, "auction bids")
	if len(bids) != 1 || bids[0].HostID != "host-a" {
		t.Fatalf("bids = %+v, want one bid from host-a", bids)
	}
}

func TestPingDiscoversHost(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	if _, err := rig.client.Start(ctx, wire.StartCommand{
		HostID:   "host-a",
		Kind:     wire.KindComponent,
		Ref:      "registry/echo:1.0",
		EntityID: "echo",
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan []wire.HostPing, 1)
	go func() {
		hosts, err := rig.client.Hosts(context.Background(), 2*time.Second)
		if err != nil {
			t.Errorf("Hosts: %v", err)
		}
		done <- hosts
	}()

	rig.clock.WaitForTimers(1)
	time.Sleep(50 * time.Millisecond)
	rig.clock.Advance(2 * time.Second)
	hosts := testutil.RequireReceive(t, done, 5*time.Second, "ping answers")
	if len(hosts) != 1 {
		t.Fatalf("hosts = %+v, want exactly one answer", hosts)
	}
	if hosts[0].HostID != "host-a" || hosts[0].Components != 1 {
		t.Errorf("answer = %+v, want host-a with one component", hosts[0])
	}
	if hosts[0].Labels["zone"] != "eu-1" {
		t.Errorf("answer labels = %v, want the host's labels", hosts[0].Labels)
	}
}

func TestProviderAuctionConflict(t *testing.T) {
	rig := newTestRig(t)
	ctx := context.Background()

	ack, err := rig.client.Start(ctx, wire.StartCommand{
		HostID:   "host-a",
		Kind:     wire.KindProvider,
		Ref:      "registry/kv:2.1",
		EntityID: "kv",
		LinkName: "default",
	})
	if err != nil || !ack.Accepted {
		t.Fatalf("Start provider: %v %s", err, ack.Message)
	}

	// The host already runs this provider on this link: silence.
	done := make(chan []wire.AuctionBid, 1)
	go func() {
		bids, err := rig.client.Auction(ctx, wire.AuctionRequest{
			Kind:     wire.KindProvider,
			Ref:      "registry/kv:2.1",
			LinkName: "default",
		}, 3*time.Second)
		if err != nil {
			t.Errorf("Auction: %v", err)
		}
		done <- bids
	}()
	rig.clock.WaitForTimers(1)
	time.Sleep(50 * time.Millisecond)
	rig.clock.Advance(3 * time.Second)
	bids := testutil.RequireReceive(t, done, 5*time.Second, "auction bids")
	if len(bids) != 0 {
		t.Fatalf("bids = %+v, want silence from the conflicting host", bids)
	}
}

func TestHostEventsPublished(t *testing.T) {
	b := bus.NewMemory()
	defer b.Drain()
	clk := clock.Fake(time.Unix(1000, 0))

	subj, err := subject.Event{Prefix: subject.DefaultPrefix, Lattice: "test", Type: wire.EventStarted}.Subject()
	if err != nil {
		t.Fatalf("Subject: %v", err)
	}
	events := make(chan wire.Event, 8)
	if _, err := b.Subscribe(subj, func(msg bus.Message) {
		var event wire.Event
		if err := wire.Decode(msg.Data, &event); err != nil {
			t.Errorf("decoding event: %v", err)
			return
		}
		events <- event
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	h := New(testConfig(), b, clk, testLogger(), nopLauncher{})
	if err := h.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer h.drainSubs()

	cl := client.New(b, clk, testLogger(), "", "test", 5*time.Second)
	if _, err := cl.Start(context.Background(), wire.StartCommand{
		HostID:   "host-a",
		Kind:     wire.KindComponent,
		Ref:      "registry/echo:1.0",
		EntityID: "echo",
	}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	event := testutil.RequireReceive(t, events, 5*time.Second, "entity_started event")
	if event.HostID != "host-a" || event.Type != wire.EventStarted {
		t.Errorf("event = %+v, want entity_started from host-a", event)
	}
	if event.ID == "" || event.Time == "" {
		t.Error("event missing id or timestamp")
	}
}

func TestRunShutsDownOnCommand(t *testing.T) {
	b := bus.NewMemory()
	defer b.Drain()
	clk := clock.Fake(time.Unix(1000, 0))
	h := New(testConfig(), b, clk, testLogger(), nopLauncher{})

	done := make(chan error, 1)
	go func() { done <- h.Run(context.Background()) }()

	// The control surface comes up asynchronously; retry until the
	// host answers.
	cl := client.New(b, clk, testLogger(), "", "test", 5*time.Second)
	deadline := time.Now().Add(5 * time.Second)
	for {
		ack, err := cl.StopHost(context.Background(), wire.StopHostCommand{HostID: "host-a"})
		if err == nil {
			if !ack.Accepted {
				t.Fatalf("shutdown rejected: %s", ack.Message)
			}
			break
		}
		if errors.Is(err, context.DeadlineExceeded) || time.Now().After(deadline) {
			t.Fatalf("StopHost: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := testutil.RequireReceive(t, done, 5*time.Second, "Run returned"); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
