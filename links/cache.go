// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package links maintains a process-local cache of link definitions.
//
// The cache is owned exclusively by the process hosting the link
// targets. The only mutation path is the bus's linkdefs put/delete
// messages, applied here; consistency across processes comes from
// every replica applying the same idempotent mutations, not from
// shared state. Mutations on distinct keys proceed independently;
// mutations on the same key are serialized in arrival order.
package links

import (
	"cmp"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/lattice-foundation/lattice/wire"
)

// Op distinguishes the two change notifications a watcher can see.
type Op int

const (
	OpPut Op = iota
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpPut:
		return "put"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Change describes one cache mutation delivered to watchers.
type Change struct {
	Op         Op
	Definition wire.LinkDefinition
}

// ChangeFunc observes cache mutations. Callbacks run synchronously on
// the mutating goroutine while the affected key is locked, so a
// provider can tear down and reopen downstream resources before any
// later mutation to the same key is applied. Callbacks must not call
// back into the cache for the same key.
type ChangeFunc func(Change)

// Cache stores the active link definition per identity key.
type Cache struct {
	log *slog.Logger

	mu       sync.Mutex
	entries  map[wire.LinkKey]*entry
	watchers []ChangeFunc
}

// Entries persist as tombstones after delete so that a concurrent
// put/delete pair on the same key serializes on one lock.
type entry struct {
	mu  sync.Mutex
	def *wire.LinkDefinition
}

func NewCache(log *slog.Logger) *Cache {
	return &Cache{
		log:     log,
		entries: make(map[wire.LinkKey]*entry),
	}
}

// OnChange registers a watcher for subsequent mutations. Existing
// entries are not replayed; call GetAll first if the watcher needs the
// current state.
func (c *Cache) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

// Put upserts a definition by its identity key. Re-applying an
// identical definition is a no-op with no notification. Replacing an
// existing key with a different value notifies watchers with a delete
// of the old value followed by a put of the new one, so downstream
// resources cycle exactly once per distinct configuration.
func (c *Cache) Put(def wire.LinkDefinition) error {
	if err := def.Validate(); err != nil {
		c.log.Warn("rejecting malformed link definition",
			"source_id", def.SourceID,
			"link_name", def.Name,
			"error", err)
		return err
	}

	e, watchers := c.entryFor(def.Key())
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.def != nil && e.def.Equal(&def) {
		return nil
	}
	old := e.def
	stored := cloneDefinition(def)
	e.def = &stored

	if old != nil {
		notify(watchers, Change{Op: OpDelete, Definition: *old})
	}
	notify(watchers, Change{Op: OpPut, Definition: cloneDefinition(stored)})
	c.log.Info("link definition stored",
		"source_id", stored.SourceID,
		"target", stored.Target,
		"link_name", stored.Name,
		"namespace", stored.Namespace,
		"package", stored.Package,
		"replaced", old != nil)
	return nil
}

// Delete removes the definition under key if present. Deleting an
// absent key is not an error and produces no notification.
func (c *Cache) Delete(key wire.LinkKey) {
	c.mu.Lock()
	e := c.entries[key]
	watchers := slices.Clone(c.watchers)
	c.mu.Unlock()
	if e == nil {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.def == nil {
		return
	}
	old := *e.def
	e.def = nil
	notify(watchers, Change{Op: OpDelete, Definition: old})
	c.log.Info("link definition deleted",
		"source_id", key.SourceID,
		"link_name", key.Name,
		"namespace", key.Namespace,
		"package", key.Package)
}

// Lookup returns a copy of the definition under key, if present.
func (c *Cache) Lookup(key wire.LinkKey) (wire.LinkDefinition, bool) {
	c.mu.Lock()
	e := c.entries[key]
	c.mu.Unlock()
	if e == nil {
		return wire.LinkDefinition{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.def == nil {
		return wire.LinkDefinition{}, false
	}
	return cloneDefinition(*e.def), true
}

// Contains reports whether an active definition exists under key.
func (c *Cache) Contains(key wire.LinkKey) bool {
	_, ok := c.Lookup(key)
	return ok
}

// GetAll returns a snapshot of every active definition, ordered by
// identity key so bulk-query responses are stable.
func (c *Cache) GetAll() []wire.LinkDefinition {
	c.mu.Lock()
	live := make([]*entry, 0, len(c.entries))
	for _, e := range c.entries {
		live = append(live, e)
	}
	c.mu.Unlock()

	defs := make([]wire.LinkDefinition, 0, len(live))
	for _, e := range live {
		e.mu.Lock()
		if e.def != nil {
			defs = append(defs, cloneDefinition(*e.def))
		}
		e.mu.Unlock()
	}
	slices.SortFunc(defs, func(a, b wire.LinkDefinition) int {
		return cmp.Or(
			cmp.Compare(a.SourceID, b.SourceID),
			cmp.Compare(a.Name, b.Name),
			cmp.Compare(a.Namespace, b.Namespace),
			cmp.Compare(a.Package, b.Package),
		)
	})
	return defs
}

func (c *Cache) entryFor(key wire.LinkKey) (*entry, []ChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.entries[key]
	if e == nil {
		e = &entry{}
		c.entries[key] = e
	}
	return e, slices.Clone(c.watchers)
}

func notify(watchers []ChangeFunc, change Change) {
	for _, fn := range watchers {
		fn(change)
	}
}

func cloneDefinition(def wire.LinkDefinition) wire.LinkDefinition {
	def.Interfaces = slices.Clone(def.Interfaces)
	def.SourceConfig = maps.Clone(def.SourceConfig)
	def.TargetConfig = maps.Clone(def.TargetConfig)
	return def
}
