// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package subject

import (
	"errors"
	"testing"

	"github.com/lattice-foundation/lattice/wire"
)

func TestRoundtrip(t *testing.T) {
	addresses := []struct {
		name string
		addr Address
		want string
	}{
		{
			name: "invoke",
			addr: RPC{Prefix: "lattice", Lattice: "default", Target: "provider-kv", LinkName: "default"},
			want: "lattice.rpc.default.provider-kv.default",
		},
		{
			name: "health",
			addr: RPC{Prefix: "lattice", Lattice: "default", Target: "provider-kv", LinkName: "default", Leaf: LeafHealth},
			want: "lattice.rpc.default.provider-kv.default.health",
		},
		{
			name: "shutdown",
			addr: RPC{Prefix: "lattice", Lattice: "default", Target: "provider-kv", LinkName: "default", Leaf: LeafShutdown},
			want: "lattice.rpc.default.provider-kv.default.shutdown",
		},
		{
			name: "link get",
			addr: RPC{Prefix: "lattice", Lattice: "default", Target: "provider-kv", LinkName: "cache", Leaf: LeafLinkGet},
			want: "lattice.rpc.default.provider-kv.cache.linkdefs.get",
		},
		{
			name: "link put",
			addr: RPC{Prefix: "lattice", Lattice: "default", Target: "provider-kv", LinkName: "cache", Leaf: LeafLinkPut},
			want: "lattice.rpc.default.provider-kv.cache.linkdefs.put",
		},
		{
			name: "link del",
			addr: RPC{Prefix: "lattice", Lattice: "default", Target: "provider-kv", LinkName: "cache", Leaf: LeafLinkDel},
			want: "lattice.rpc.default.provider-kv.cache.linkdefs.del",
		},
		{
			name: "component auction",
			addr: Auction{Prefix: "lattice", Lattice: "default", Kind: wire.KindComponent},
			want: "lattice.ctl.default.component.auction",
		},
		{
			name: "provider auction",
			addr: Auction{Prefix: "lattice", Lattice: "default", Kind: wire.KindProvider},
			want: "lattice.ctl.default.provider.auction",
		},
		{
			name: "host ping",
			addr: Ping{Prefix: "lattice", Lattice: "default"},
			want: "lattice.ctl.default.ping.hosts",
		},
		{
			name: "control start",
			addr: Control{Prefix: "lattice", Lattice: "default", HostID: "host-abc", Verb: VerbStart},
			want: "lattice.ctl.default.host-abc.start",
		},
		{
			name: "control inventory",
			addr: Control{Prefix: "lattice", Lattice: "default", HostID: "host-abc", Verb: VerbInventory},
			want: "lattice.ctl.default.host-abc.inventory",
		},
		{
			name: "event",
			addr: Event{Prefix: "lattice", Lattice: "default", Type: "entity_started"},
			want: "lattice.evt.default.entity_started",
		},
	}

	for _, tc := range addresses {
		t.Run(tc.name, func(t *testing.T) {
			s, err := tc.addr.Subject()
			if err != nil {
				t.Fatalf("Subject: %v", err)
			}
			if s != tc.want {
				t.Fatalf("Subject = %q, want %q", s, tc.want)
			}
			parsed, err := Parse(s)
			if err != nil {
				t.Fatalf("Parse(%q): %v", s, err)
			}
			if parsed != tc.addr {
				t.Errorf("Parse(%q) = %#v, want %#v", s, parsed, tc.addr)
			}
		})
	}
}

func TestSubjectRejectsBadTokens(t *testing.T) {
	bad := []Address{
		RPC{Prefix: "lattice", Lattice: "default", Target: "has.dot", LinkName: "default"},
		RPC{Prefix: "lattice", Lattice: "default", Target: "star*", LinkName: "default"},
		RPC{Prefix: "lattice", Lattice: "", Target: "x", LinkName: "default"},
		RPC{Prefix: "lattice", Lattice: "default", Target: "x", LinkName: "default", Leaf: RPCLeaf("bogus")},
		Control{Prefix: "lattice", Lattice: "default", HostID: "has space", Verb: VerbStop},
		Control{Prefix: "lattice", Lattice: "default", HostID: "component", Verb: VerbStart},
		Control{Prefix: "lattice", Lattice: "default", HostID: "ping", Verb: VerbStart},
		Auction{Prefix: "lattice", Lattice: "default", Kind: wire.EntityKind("workload")},
		Event{Prefix: "lattice", Lattice: "default", Type: "wild>card"},
	}
	for _, addr := range bad {
		if _, err := addr.Subject(); !errors.Is(err, ErrInvalid) {
			t.Errorf("%#v: expected ErrInvalid, got %v", addr, err)
		}
	}
}

func TestParseRejectsUnknownShapes(t *testing.T) {
	bad := []string{
		"",
		"lattice.rpc.default",
		"lattice.rpc.default.target.link.bogus",
		"lattice.rpc.default.target.link.linkdefs.merge",
		"lattice.rpc.default.target.link.linkdefs.get.extra",
		"lattice.ctl.default.host-abc",
		"lattice.ctl.default.provider.start",
		"lattice.ctl.default.ping.start",
		"lattice.evt.default.a.b",
		"lattice.mail.default.host-abc.start",
		"lattice.rpc.default.tar get.link",
	}
	for _, s := range bad {
		if _, err := Parse(s); !errors.Is(err, ErrInvalid) {
			t.Errorf("Parse(%q): expected ErrInvalid, got %v", s, err)
		}
	}
}
