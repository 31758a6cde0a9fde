// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package links

import (
	"context"
	"fmt"

	"github.com/lattice-foundation/lattice/bus"
	"github.com/lattice-foundation/lattice/lib/codec"
	"github.com/lattice-foundation/lattice/subject"
	"github.com/lattice-foundation/lattice/wire"
)

// Fetch performs a bulk link-definition query against one target
// entity and returns the definitions its cache reported. The result
// is advisory: it can be stale by the time it is read, so callers
// should re-query rather than cache it indefinitely.
func Fetch(ctx context.Context, b bus.Bus, prefix, lattice, entity, linkName string) ([]wire.LinkDefinition, error) {
	subj, err := leafSubject(prefix, lattice, entity, linkName, subject.LeafLinkGet)
	if err != nil {
		return nil, err
	}
	resp, err := b.Request(ctx, subj, nil)
	if err != nil {
		return nil, fmt.Errorf("links: querying %s: %w", subj, err)
	}
	var defs []wire.LinkDefinition
	if err := codec.Unmarshal(resp.Data, &defs); err != nil {
		return nil, fmt.Errorf("links: decoding query response: %w", err)
	}
	return defs, nil
}

// PublishPut broadcasts a link-definition upsert to every replica of
// the target entity. Delivery is at-least-once; the mutation is
// idempotent on the receiving side.
func PublishPut(b bus.Bus, prefix, lattice string, def wire.LinkDefinition) error {
	subj, err := leafSubject(prefix, lattice, def.Target, def.Name, subject.LeafLinkPut)
	if err != nil {
		return err
	}
	data, err := wire.Encode(&def)
	if err != nil {
		return fmt.Errorf("links: encoding definition: %w", err)
	}
	return b.Publish(subj, data)
}

// PublishDelete broadcasts a link-definition deletion to every
// replica of the target entity.
func PublishDelete(b bus.Bus, prefix, lattice, target string, key wire.LinkKey) error {
	subj, err := leafSubject(prefix, lattice, target, key.Name, subject.LeafLinkDel)
	if err != nil {
		return err
	}
	data, err := wire.Encode(&key)
	if err != nil {
		return fmt.Errorf("links: encoding key: %w", err)
	}
	return b.Publish(subj, data)
}

func leafSubject(prefix, lattice, entity, linkName string, leaf subject.RPCLeaf) (string, error) {
	addr := subject.RPC{
		Prefix:   prefix,
		Lattice:  lattice,
		Target:   entity,
		LinkName: linkName,
		Leaf:     leaf,
	}
	subj, err := addr.Subject()
	if err != nil {
		return "", fmt.Errorf("links: %w", err)
	}
	return subj, nil
}
