// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package subject maps structured addressing intent to bus subject
// strings and back. Construction and parsing are pure, deterministic
// functions: no identifier is ever allocated here, and for every
// address a Subject() accepts, Parse(Subject()) yields the original
// structured value.
//
// Three families exist:
//
//   - rpc: {prefix}.rpc.{lattice}.{target}.{link} plus the health,
//     shutdown, and linkdefs.{get,put,del} leaves. linkdefs.get is
//     served by a load-balanced queue group (one replica answers);
//     linkdefs.put and linkdefs.del are broadcast so every replica
//     applies the idempotent mutation to its own cache.
//   - ctl: {prefix}.ctl.{lattice}.{kind}.auction broadcasts to every
//     eligible host, {prefix}.ctl.{lattice}.ping.hosts broadcasts a
//     discovery ping, and {prefix}.ctl.{lattice}.{host}.{verb} targets
//     one host. The tokens "component", "provider", and "ping" are
//     reserved: a control address with such a host id is rejected at
//     construction, which is what keeps parsing unambiguous.
//   - evt: {prefix}.evt.{lattice}.{type}, broadcast, fire-and-forget.
//
// Subjects are ASCII and dot-delimited. Tokens containing dots,
// wildcards, or whitespace are structurally invalid and rejected
// before anything is published.
package subject

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lattice-foundation/lattice/wire"
)

// DefaultPrefix is the subject prefix used when a deployment does not
// override it.
const DefaultPrefix = "lattice"

// DefaultLinkName is the link name used for entities that do not
// distinguish links (components).
const DefaultLinkName = "default"

// Control verbs carried as the last token of a targeted ctl subject.
const (
	VerbStart     = "start"
	VerbStop      = "stop"
	VerbScale     = "scale"
	VerbUpdate    = "update"
	VerbShutdown  = "shutdown"
	VerbInventory = "inventory"
)

// ErrInvalid reports a structurally invalid address or subject. It is
// returned before any publish happens.
var ErrInvalid = errors.New("subject: invalid address")

// Address is a structured bus address. Subject renders it to the
// string published on the bus; Parse is its inverse.
type Address interface {
	Subject() (string, error)
}

// RPCLeaf selects the sub-resource of an RPC target subject.
type RPCLeaf string

const (
	// LeafInvoke is the bare RPC subject on which invocations are
	// served.
	LeafInvoke RPCLeaf = ""
	// LeafHealth answers health check requests.
	LeafHealth RPCLeaf = "health"
	// LeafShutdown asks the entity to gracefully stop.
	LeafShutdown RPCLeaf = "shutdown"
	// LeafLinkGet answers bulk link-definition queries.
	LeafLinkGet RPCLeaf = "linkdefs.get"
	// LeafLinkPut carries link-definition upserts.
	LeafLinkPut RPCLeaf = "linkdefs.put"
	// LeafLinkDel carries link-definition deletions.
	LeafLinkDel RPCLeaf = "linkdefs.del"
)

func (l RPCLeaf) valid() bool {
	switch l {
	case LeafInvoke, LeafHealth, LeafShutdown, LeafLinkGet, LeafLinkPut, LeafLinkDel:
		return true
	}
	return false
}

// RPC addresses one invocation recipient (or one of its
// sub-resources) in a lattice.
type RPC struct {
	Prefix   string
	Lattice  string
	Target   string
	LinkName string
	Leaf     RPCLeaf
}

func (r RPC) Subject() (string, error) {
	if err := validTokens("rpc", r.Prefix, r.Lattice, r.Target, r.LinkName); err != nil {
		return "", err
	}
	if !r.Leaf.valid() {
		return "", fmt.Errorf("%w: unknown rpc leaf %q", ErrInvalid, string(r.Leaf))
	}
	base := fmt.Sprintf("%s.rpc.%s.%s.%s", r.Prefix, r.Lattice, r.Target, r.LinkName)
	if r.Leaf == LeafInvoke {
		return base, nil
	}
	return base + "." + string(r.Leaf), nil
}

// Auction addresses the broadcast auction subject for one entity
// kind. Every eligible host may answer.
type Auction struct {
	Prefix  string
	Lattice string
	Kind    wire.EntityKind
}

func (a Auction) Subject() (string, error) {
	if err := validTokens("auction", a.Prefix, a.Lattice); err != nil {
		return "", err
	}
	if !a.Kind.Valid() {
		return "", fmt.Errorf("%w: unknown entity kind %q", ErrInvalid, string(a.Kind))
	}
	return fmt.Sprintf("%s.ctl.%s.%s.auction", a.Prefix, a.Lattice, a.Kind), nil
}

// Ping addresses the broadcast host-discovery subject. Every host in
// the lattice answers a ping with a short identity record.
type Ping struct {
	Prefix  string
	Lattice string
}

func (p Ping) Subject() (string, error) {
	if err := validTokens("ctl", p.Prefix, p.Lattice); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.ctl.%s.ping.hosts", p.Prefix, p.Lattice), nil
}

// Control addresses one verb on one host.
type Control struct {
	Prefix  string
	Lattice string
	HostID  string
	Verb    string
}

func (c Control) Subject() (string, error) {
	if err := validTokens("ctl", c.Prefix, c.Lattice, c.HostID, c.Verb); err != nil {
		return "", err
	}
	// Reserved to keep ctl parsing unambiguous against the auction
	// and ping subjects.
	if c.HostID == string(wire.KindComponent) || c.HostID == string(wire.KindProvider) || c.HostID == "ping" {
		return "", fmt.Errorf("%w: host id %q is a reserved token", ErrInvalid, c.HostID)
	}
	return fmt.Sprintf("%s.ctl.%s.%s.%s", c.Prefix, c.Lattice, c.HostID, c.Verb), nil
}

// Event addresses the broadcast subject for one event type.
type Event struct {
	Prefix  string
	Lattice string
	Type    string
}

func (e Event) Subject() (string, error) {
	if err := validTokens("evt", e.Prefix, e.Lattice, e.Type); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s.evt.%s.%s", e.Prefix, e.Lattice, e.Type), nil
}

// Parse maps a subject string back to its structured address. Subjects
// that no address family produces yield ErrInvalid.
func Parse(s string) (Address, error) {
	tokens := strings.Split(s, ".")
	for _, token := range tokens {
		if !validToken(token) {
			return nil, fmt.Errorf("%w: bad token %q in %q", ErrInvalid, token, s)
		}
	}
	if len(tokens) < 4 {
		return nil, fmt.Errorf("%w: %q has too few tokens", ErrInvalid, s)
	}

	prefix, family, lattice := tokens[0], tokens[1], tokens[2]
	rest := tokens[3:]

	switch family {
	case "rpc":
		return parseRPC(prefix, lattice, rest, s)
	case "ctl":
		if len(rest) != 2 {
			return nil, fmt.Errorf("%w: ctl subject %q must have exactly five tokens", ErrInvalid, s)
		}
		kind := wire.EntityKind(rest[0])
		if kind.Valid() && rest[1] == "auction" {
			return Auction{Prefix: prefix, Lattice: lattice, Kind: kind}, nil
		}
		if rest[0] == "ping" && rest[1] == "hosts" {
			return Ping{Prefix: prefix, Lattice: lattice}, nil
		}
		if kind.Valid() || rest[0] == "ping" {
			return nil, fmt.Errorf("%w: reserved host id %q in %q", ErrInvalid, rest[0], s)
		}
		return Control{Prefix: prefix, Lattice: lattice, HostID: rest[0], Verb: rest[1]}, nil
	case "evt":
		if len(rest) != 1 {
			return nil, fmt.Errorf("%w: evt subject %q must have exactly four tokens", ErrInvalid, s)
		}
		return Event{Prefix: prefix, Lattice: lattice, Type: rest[0]}, nil
	}
	return nil, fmt.Errorf("%w: unknown family %q in %q", ErrInvalid, family, s)
}

func parseRPC(prefix, lattice string, rest []string, s string) (Address, error) {
	if len(rest) < 2 {
		return nil, fmt.Errorf("%w: rpc subject %q needs a target and link name", ErrInvalid, s)
	}
	addr := RPC{
		Prefix:   prefix,
		Lattice:  lattice,
		Target:   rest[0],
		LinkName: rest[1],
	}
	switch leaf := rest[2:]; len(leaf) {
	case 0:
		addr.Leaf = LeafInvoke
	case 1:
		switch leaf[0] {
		case string(LeafHealth):
			addr.Leaf = LeafHealth
		case string(LeafShutdown):
			addr.Leaf = LeafShutdown
		default:
			return nil, fmt.Errorf("%w: unknown rpc leaf %q in %q", ErrInvalid, leaf[0], s)
		}
	case 2:
		if leaf[0] != "linkdefs" {
			return nil, fmt.Errorf("%w: unknown rpc leaf %q in %q", ErrInvalid, strings.Join(leaf, "."), s)
		}
		switch leaf[1] {
		case "get":
			addr.Leaf = LeafLinkGet
		case "put":
			addr.Leaf = LeafLinkPut
		case "del":
			addr.Leaf = LeafLinkDel
		default:
			return nil, fmt.Errorf("%w: unknown linkdefs operation %q in %q", ErrInvalid, leaf[1], s)
		}
	default:
		return nil, fmt.Errorf("%w: rpc subject %q has too many tokens", ErrInvalid, s)
	}
	return addr, nil
}

// validTokens checks every token of an address under construction,
// reporting the family for context.
func validTokens(family string, tokens ...string) error {
	for _, token := range tokens {
		if !validToken(token) {
			return fmt.Errorf("%w: bad %s token %q", ErrInvalid, family, token)
		}
	}
	return nil
}

// validToken reports whether a single subject token is well-formed:
// nonempty printable ASCII with no dot, wildcard, or whitespace.
func validToken(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c > '~' {
			return false
		}
		switch c {
		case '.', '*', '>':
			return false
		}
	}
	return true
}
