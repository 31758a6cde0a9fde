// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the controller-side surface of the lattice: it
// issues control commands to hosts, queries inventories and link
// definitions, runs auctions, and mutates links. Every mutating
// command yields a synchronous acknowledgement from the receiving
// host.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lattice-foundation/lattice/auction"
	"github.com/lattice-foundation/lattice/bus"
	"github.com/lattice-foundation/lattice/lib/clock"
	"github.com/lattice-foundation/lattice/links"
	"github.com/lattice-foundation/lattice/subject"
	"github.com/lattice-foundation/lattice/wire"
)

// DefaultTimeout bounds one control round trip.
const DefaultTimeout = 2 * time.Second

type Client struct {
	bus     bus.Bus
	clock   clock.Clock
	log     *slog.Logger
	prefix  string
	lattice string
	timeout time.Duration

	auctions *auction.Coordinator
}

func New(b bus.Bus, clk clock.Clock, log *slog.Logger, prefix, lattice string, timeout time.Duration) *Client {
	if prefix == "" {
		prefix = subject.DefaultPrefix
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		bus:      b,
		clock:    clk,
		log:      log,
		prefix:   prefix,
		lattice:  lattice,
		timeout:  timeout,
		auctions: auction.NewCoordinator(b, clk, log, prefix, lattice),
	}
}

// Start asks cmd.HostID to run an entity.
func (c *Client) Start(ctx context.Context, cmd wire.StartCommand) (wire.ControlAck, error) {
	if err := cmd.Validate(); err != nil {
		return wire.ControlAck{}, fmt.Errorf("client: invalid start command: %w", err)
	}
	return c.command(ctx, cmd.HostID, subject.VerbStart, &cmd)
}

// Stop asks cmd.HostID to stop an entity.
func (c *Client) Stop(ctx context.Context, cmd wire.StopCommand) (wire.ControlAck, error) {
	if err := cmd.Validate(); err != nil {
		return wire.ControlAck{}, fmt.Errorf("client: invalid stop command: %w", err)
	}
	return c.command(ctx, cmd.HostID, subject.VerbStop, &cmd)
}

// Scale asks cmd.HostID to adjust an entity's instance count.
func (c *Client) Scale(ctx context.Context, cmd wire.ScaleCommand) (wire.ControlAck, error) {
	if err := cmd.Validate(); err != nil {
		return wire.ControlAck{}, fmt.Errorf("client: invalid scale command: %w", err)
	}
	return c.command(ctx, cmd.HostID, subject.VerbScale, &cmd)
}

// Update asks cmd.HostID to move matching instances to a new ref.
func (c *Client) Update(ctx context.Context, cmd wire.UpdateCommand) (wire.ControlAck, error) {
	if err := cmd.Validate(); err != nil {
		return wire.ControlAck{}, fmt.Errorf("client: invalid update command: %w", err)
	}
	return c.command(ctx, cmd.HostID, subject.VerbUpdate, &cmd)
}

// StopHost asks a host process to shut down.
func (c *Client) StopHost(ctx context.Context, cmd wire.StopHostCommand) (wire.ControlAck, error) {
	if err := cmd.Validate(); err != nil {
		return wire.ControlAck{}, fmt.Errorf("client: invalid shutdown command: %w", err)
	}
	return c.command(ctx, cmd.HostID, subject.VerbShutdown, &cmd)
}

// Inventory queries one host for a point-in-time snapshot of what it
// runs. The snapshot is advisory and can be stale by the time it is
// read.
func (c *Client) Inventory(ctx context.Context, hostID string) (wire.HostInventory, error) {
	subj, err := subject.Control{
		Prefix:  c.prefix,
		Lattice: c.lattice,
		HostID:  hostID,
		Verb:    subject.VerbInventory,
	}.Subject()
	if err != nil {
		return wire.HostInventory{}, err
	}
	msg, err := c.request(ctx, subj, nil)
	if err != nil {
		return wire.HostInventory{}, err
	}
	var inv wire.HostInventory
	if err := wire.Decode(msg.Data, &inv); err != nil {
		return wire.HostInventory{}, fmt.Errorf("client: decoding inventory: %w", err)
	}
	return inv, nil
}

// Auction discovers which hosts could run the candidate, collecting
// bids for the given window. An empty list is a successful outcome.
func (c *Client) Auction(ctx context.Context, req wire.AuctionRequest, window time.Duration) ([]wire.AuctionBid, error) {
	return c.auctions.Auction(ctx, req, window)
}

// Hosts discovers the hosts alive in the lattice by broadcasting a
// ping and collecting answers for the given window, deduplicated by
// host. Like an auction window, the deadline is soft: late answers are
// not included and an empty list is a successful outcome.
func (c *Client) Hosts(ctx context.Context, window time.Duration) ([]wire.HostPing, error) {
	if window <= 0 {
		window = auction.DefaultWindow
	}
	subj, err := subject.Ping{Prefix: c.prefix, Lattice: c.lattice}.Subject()
	if err != nil {
		return nil, err
	}

	inbox := c.bus.NewInbox()
	arrived := make(chan wire.HostPing, 64)
	sub, err := c.bus.Subscribe(inbox, func(msg bus.Message) {
		var ping wire.HostPing
		if err := wire.Decode(msg.Data, &ping); err != nil {
			c.log.Warn("dropping malformed ping answer", "error", err)
			return
		}
		select {
		case arrived <- ping:
		default:
			c.log.Warn("dropping ping answer beyond buffer", "host_id", ping.HostID)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("client: subscribing ping inbox: %w", err)
	}
	defer sub.Drain()

	if err := c.bus.PublishRequest(subj, inbox, nil); err != nil {
		return nil, fmt.Errorf("client: broadcasting ping on %s: %w", subj, err)
	}

	var hosts []wire.HostPing
	seen := make(map[string]bool)
	deadline := c.clock.After(window)
	for {
		select {
		case ping := <-arrived:
			if seen[ping.HostID] {
				continue
			}
			seen[ping.HostID] = true
			hosts = append(hosts, ping)
		case <-deadline:
			return hosts, nil
		case <-ctx.Done():
			return hosts, ctx.Err()
		}
	}
}

// PutLink broadcasts a link-definition upsert.
func (c *Client) PutLink(def wire.LinkDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("client: invalid link definition: %w", err)
	}
	return links.PublishPut(c.bus, c.prefix, c.lattice, def)
}

// DeleteLink broadcasts a link-definition deletion.
func (c *Client) DeleteLink(target string, key wire.LinkKey) error {
	if err := key.Validate(); err != nil {
		return fmt.Errorf("client: invalid link key: %w", err)
	}
	return links.PublishDelete(c.bus, c.prefix, c.lattice, target, key)
}

// GetLinks queries one target entity for its active link definitions.
func (c *Client) GetLinks(ctx context.Context, target, linkName string) ([]wire.LinkDefinition, error) {
	return links.Fetch(ctx, c.bus, c.prefix, c.lattice, target, linkName)
}

func (c *Client) command(ctx context.Context, hostID, verb string, cmd wire.Message) (wire.ControlAck, error) {
	subj, err := subject.Control{
		Prefix:  c.prefix,
		Lattice: c.lattice,
		HostID:  hostID,
		Verb:    verb,
	}.Subject()
	if err != nil {
		return wire.ControlAck{}, err
	}
	data, err := wire.Encode(cmd)
	if err != nil {
		return wire.ControlAck{}, fmt.Errorf("client: encoding %s command: %w", verb, err)
	}
	msg, err := c.request(ctx, subj, data)
	if err != nil {
		return wire.ControlAck{}, err
	}
	var ack wire.ControlAck
	if err := wire.Decode(msg.Data, &ack); err != nil {
		return wire.ControlAck{}, fmt.Errorf("client: decoding %s ack: %w", verb, err)
	}
	return ack, nil
}

func (c *Client) request(ctx context.Context, subj string, data []byte) (bus.Message, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	msg, err := c.bus.Request(ctx, subj, data)
	if err != nil {
		return bus.Message{}, fmt.Errorf("client: request on %s: %w", subj, err)
	}
	return msg, nil
}
