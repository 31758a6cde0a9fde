// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Lattice-ctl issues control commands against a lattice: starting,
// stopping, scaling, and updating entities, mutating and querying
// link definitions, running placement auctions, and inspecting host
// inventories.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/pflag"

	"github.com/lattice-foundation/lattice/bus"
	"github.com/lattice-foundation/lattice/client"
	"github.com/lattice-foundation/lattice/lib/clock"
	"github.com/lattice-foundation/lattice/wire"
)

const usage = `Usage: lattice-ctl [global flags] <command> [flags]

Commands:
  start       start an entity on a host
  stop        stop an entity on a host
  scale       change an entity's instance count
  update      move matching instances to a new ref
  stop-host   shut a host process down
  inventory   show what a host is running
  hosts       discover live hosts in the lattice
  auction     discover hosts able to run a candidate
  link put    create or replace a link definition
  link del    delete a link definition
  link get    list a target's link definitions
`

// globalFlags are shared by every subcommand.
type globalFlags struct {
	busURL      string
	credentials string
	lattice     string
	prefix      string
	timeout     time.Duration
	jsonOut     bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := pflag.NewFlagSet("lattice-ctl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	g := globalFlags{}
	global.StringVarP(&g.busURL, "bus-url", "s", nats.DefaultURL, "bus connection address")
	global.StringVar(&g.credentials, "creds", "", "bus credentials file")
	global.StringVar(&g.lattice, "lattice", "default", "lattice id")
	global.StringVar(&g.prefix, "prefix", "", "subject prefix override")
	global.DurationVar(&g.timeout, "timeout", 2*time.Second, "command timeout")
	global.BoolVar(&g.jsonOut, "json", false, "print results as JSON")
	global.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fmt.Fprintln(os.Stderr, "\nGlobal flags:")
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return fmt.Errorf("a command is required")
	}
	command, rest := rest[0], rest[1:]
	if command == "link" {
		if len(rest) == 0 {
			return fmt.Errorf("link needs a subcommand: put, del, or get")
		}
		command, rest = "link "+rest[0], rest[1:]
	}

	cl, drain, err := dial(g)
	if err != nil {
		return err
	}
	defer drain()

	ctx, cancel := context.WithTimeout(context.Background(), g.timeout)
	defer cancel()

	switch command {
	case "start":
		return cmdStart(ctx, cl, g, rest)
	case "stop":
		return cmdStop(ctx, cl, g, rest)
	case "scale":
		return cmdScale(ctx, cl, g, rest)
	case "update":
		return cmdUpdate(ctx, cl, g, rest)
	case "stop-host":
		return cmdStopHost(ctx, cl, g, rest)
	case "inventory":
		return cmdInventory(ctx, cl, g, rest)
	case "hosts":
		return cmdHosts(cl, g, rest)
	case "auction":
		return cmdAuction(ctx, cl, g, rest)
	case "link put":
		return cmdLinkPut(cl, g, rest)
	case "link del":
		return cmdLinkDel(cl, g, rest)
	case "link get":
		return cmdLinkGet(ctx, cl, g, rest)
	default:
		global.Usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

func dial(g globalFlags) (*client.Client, func(), error) {
	var options []nats.Option
	if g.credentials != "" {
		options = append(options, nats.UserCredentials(g.credentials))
	}
	conn, err := bus.Connect(g.busURL, "lattice-ctl", options...)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to bus at %s: %w", g.busURL, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	cl := client.New(conn, clock.Real(), logger, g.prefix, g.lattice, g.timeout)
	return cl, func() { _ = conn.Drain() }, nil
}

func cmdStart(ctx context.Context, cl *client.Client, g globalFlags, args []string) error {
	flags := pflag.NewFlagSet("start", pflag.ContinueOnError)
	cmd := wire.StartCommand{}
	var kind string
	annotations := kvFlag{}
	flags.StringVar(&cmd.HostID, "host", "", "target host id (required)")
	flags.StringVar(&kind, "kind", "component", "entity kind: component or provider")
	flags.StringVar(&cmd.Ref, "ref", "", "package reference (required)")
	flags.StringVar(&cmd.EntityID, "id", "", "entity id (required)")
	flags.StringVar(&cmd.LinkName, "link", "", "link name (providers)")
	flags.Uint32Var(&cmd.Count, "count", 1, "instance count")
	flags.Var(&annotations, "annotation", "key=value annotation (repeatable)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	cmd.Kind = wire.EntityKind(kind)
	cmd.Annotations = annotations.values

	ack, err := cl.Start(ctx, cmd)
	if err != nil {
		return err
	}
	return printAck(g, ack)
}

func cmdStop(ctx context.Context, cl *client.Client, g globalFlags, args []string) error {
	flags := pflag.NewFlagSet("stop", pflag.ContinueOnError)
	cmd := wire.StopCommand{}
	flags.StringVar(&cmd.HostID, "host", "", "target host id (required)")
	flags.StringVar(&cmd.EntityID, "id", "", "entity id (required)")
	flags.Uint64Var(&cmd.TimeoutMillis, "timeout-ms", 5000, "graceful teardown budget")
	if err := flags.Parse(args); err != nil {
		return err
	}
	ack, err := cl.Stop(ctx, cmd)
	if err != nil {
		return err
	}
	return printAck(g, ack)
}

func cmdScale(ctx context.Context, cl *client.Client, g globalFlags, args []string) error {
	flags := pflag.NewFlagSet("scale", pflag.ContinueOnError)
	cmd := wire.ScaleCommand{}
	annotations := kvFlag{}
	flags.StringVar(&cmd.HostID, "host", "", "target host id (required)")
	flags.StringVar(&cmd.EntityID, "id", "", "entity id (required)")
	flags.Uint32Var(&cmd.Count, "count", 0, "target instance count")
	flags.Var(&annotations, "annotation", "key=value annotation (repeatable)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	cmd.Annotations = annotations.values
	ack, err := cl.Scale(ctx, cmd)
	if err != nil {
		return err
	}
	return printAck(g, ack)
}

func cmdUpdate(ctx context.Context, cl *client.Client, g globalFlags, args []string) error {
	flags := pflag.NewFlagSet("update", pflag.ContinueOnError)
	cmd := wire.UpdateCommand{}
	annotations := kvFlag{}
	flags.StringVar(&cmd.HostID, "host", "", "target host id (required)")
	flags.StringVar(&cmd.EntityID, "id", "", "entity id (empty updates all matching instances)")
	flags.StringVar(&cmd.NewRef, "new-ref", "", "replacement package reference (required)")
	flags.Var(&annotations, "annotation", "key=value scope; only superset-matching instances update")
	if err := flags.Parse(args); err != nil {
		return err
	}
	cmd.Annotations = annotations.values
	ack, err := cl.Update(ctx, cmd)
	if err != nil {
		return err
	}
	return printAck(g, ack)
}

func cmdStopHost(ctx context.Context, cl *client.Client, g globalFlags, args []string) error {
	flags := pflag.NewFlagSet("stop-host", pflag.ContinueOnError)
	cmd := wire.StopHostCommand{}
	flags.StringVar(&cmd.HostID, "host", "", "target host id (required)")
	flags.Uint64Var(&cmd.TimeoutMillis, "timeout-ms", 5000, "graceful teardown budget")
	if err := flags.Parse(args); err != nil {
		return err
	}
	ack, err := cl.StopHost(ctx, cmd)
	if err != nil {
		return err
	}
	return printAck(g, ack)
}

func cmdInventory(ctx context.Context, cl *client.Client, g globalFlags, args []string) error {
	flags := pflag.NewFlagSet("inventory", pflag.ContinueOnError)
	var hostID string
	flags.StringVar(&hostID, "host", "", "target host id (required)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	inv, err := cl.Inventory(ctx, hostID)
	if err != nil {
		return err
	}
	if g.jsonOut {
		return printJSON(inv)
	}
	fmt.Printf("host %s (up %ds)\n", inv.HostID, inv.UptimeSeconds)
	for key, value := range inv.Labels {
		fmt.Printf("  label %s=%s\n", key, value)
	}
	for _, c := range inv.Components {
		fmt.Printf("  component %s  ref=%s count=%d\n", c.ID, c.Ref, c.Count)
	}
	for _, p := range inv.Providers {
		fmt.Printf("  provider  %s  ref=%s link=%s\n", p.ID, p.Ref, p.LinkName)
	}
	return nil
}

func cmdHosts(cl *client.Client, g globalFlags, args []string) error {
	flags := pflag.NewFlagSet("hosts", pflag.ContinueOnError)
	var window time.Duration
	flags.DurationVar(&window, "window", 2*time.Second, "answer collection window")
	if err := flags.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), window+g.timeout)
	defer cancel()
	hosts, err := cl.Hosts(ctx, window)
	if err != nil {
		return err
	}
	if g.jsonOut {
		return printJSON(hosts)
	}
	if len(hosts) == 0 {
		fmt.Println("no hosts answered")
		return nil
	}
	for _, h := range hosts {
		fmt.Printf("host %s  components=%d providers=%d up=%ds\n",
			h.HostID, h.Components, h.Providers, h.UptimeSeconds)
	}
	return nil
}

func cmdAuction(ctx context.Context, cl *client.Client, g globalFlags, args []string) error {
	flags := pflag.NewFlagSet("auction", pflag.ContinueOnError)
	req := wire.AuctionRequest{}
	var kind string
	var window time.Duration
	constraints := kvFlag{}
	flags.StringVar(&kind, "kind", "component", "entity kind: component or provider")
	flags.StringVar(&req.Ref, "ref", "", "candidate package reference (required)")
	flags.StringVar(&req.LinkName, "link", "", "link name (providers)")
	flags.Var(&constraints, "constraint", "key=value label constraint (repeatable)")
	flags.DurationVar(&window, "window", 3*time.Second, "bid collection window")
	if err := flags.Parse(args); err != nil {
		return err
	}
	req.Kind = wire.EntityKind(kind)
	req.Constraints = constraints.values

	// The window, not the global timeout, bounds an auction.
	auctionCtx, cancel := context.WithTimeout(context.Background(), window+g.timeout)
	defer cancel()
	bids, err := cl.Auction(auctionCtx, req, window)
	if err != nil {
		return err
	}
	if g.jsonOut {
		return printJSON(bids)
	}
	if len(bids) == 0 {
		fmt.Println("no eligible hosts")
		return nil
	}
	for _, bid := range bids {
		fmt.Printf("host %s  ref=%s", bid.HostID, bid.Ref)
		if bid.LinkName != "" {
			fmt.Printf(" link=%s", bid.LinkName)
		}
		fmt.Println()
	}
	return nil
}

func cmdLinkPut(cl *client.Client, g globalFlags, args []string) error {
	flags := pflag.NewFlagSet("link put", pflag.ContinueOnError)
	def := wire.LinkDefinition{}
	sourceConfig := kvFlag{}
	targetConfig := kvFlag{}
	flags.StringVar(&def.SourceID, "source", "", "source entity id (required)")
	flags.StringVar(&def.Target, "target", "", "target entity id (required)")
	flags.StringVar(&def.Name, "name", "default", "link name")
	flags.StringVar(&def.Namespace, "namespace", "", "interface namespace (required)")
	flags.StringVar(&def.Package, "package", "", "interface package (required)")
	flags.StringSliceVar(&def.Interfaces, "interface", nil, "authorized interface (repeatable)")
	flags.Var(&sourceConfig, "source-config", "key=value source configuration (repeatable)")
	flags.Var(&targetConfig, "target-config", "key=value target configuration (repeatable)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	def.SourceConfig = sourceConfig.values
	def.TargetConfig = targetConfig.values

	if err := cl.PutLink(def); err != nil {
		return err
	}
	fmt.Printf("link %s -> %s (%s:%s, name %s) put\n", def.SourceID, def.Target, def.Namespace, def.Package, def.Name)
	return nil
}

func cmdLinkDel(cl *client.Client, g globalFlags, args []string) error {
	flags := pflag.NewFlagSet("link del", pflag.ContinueOnError)
	key := wire.LinkKey{}
	var target string
	flags.StringVar(&key.SourceID, "source", "", "source entity id (required)")
	flags.StringVar(&target, "target", "", "target entity id (required)")
	flags.StringVar(&key.Name, "name", "default", "link name")
	flags.StringVar(&key.Namespace, "namespace", "", "interface namespace (required)")
	flags.StringVar(&key.Package, "package", "", "interface package (required)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if err := cl.DeleteLink(target, key); err != nil {
		return err
	}
	fmt.Printf("link %s on %s (%s:%s, name %s) deleted\n", key.SourceID, target, key.Namespace, key.Package, key.Name)
	return nil
}

func cmdLinkGet(ctx context.Context, cl *client.Client, g globalFlags, args []string) error {
	flags := pflag.NewFlagSet("link get", pflag.ContinueOnError)
	var target, linkName string
	flags.StringVar(&target, "target", "", "target entity id (required)")
	flags.StringVar(&linkName, "link", "default", "link name")
	if err := flags.Parse(args); err != nil {
		return err
	}
	defs, err := cl.GetLinks(ctx, target, linkName)
	if err != nil {
		return err
	}
	if g.jsonOut {
		return printJSON(defs)
	}
	if len(defs) == 0 {
		fmt.Println("no link definitions")
		return nil
	}
	for _, def := range defs {
		fmt.Printf("%s -> %s  %s:%s name=%s interfaces=%s\n",
			def.SourceID, def.Target, def.Namespace, def.Package, def.Name,
			strings.Join(def.Interfaces, ","))
	}
	return nil
}

func printAck(g globalFlags, ack wire.ControlAck) error {
	if g.jsonOut {
		return printJSON(ack)
	}
	status := "accepted"
	if !ack.Accepted {
		status = "rejected"
	}
	fmt.Printf("%s: %s\n", status, ack.Message)
	if !ack.Accepted {
		os.Exit(1)
	}
	return nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// kvFlag collects repeatable key=value flags.
type kvFlag struct {
	values map[string]string
}

func (f *kvFlag) String() string {
	pairs := make([]string, 0, len(f.values))
	for key, value := range f.values {
		pairs = append(pairs, key+"="+value)
	}
	return strings.Join(pairs, ",")
}

func (f *kvFlag) Set(s string) error {
	key, value, ok := strings.Cut(s, "=")
	if !ok || key == "" {
		return fmt.Errorf("expected key=value, got %q", s)
	}
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[key] = value
	return nil
}

func (f *kvFlag) Type() string { return "key=value" }
