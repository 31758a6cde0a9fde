// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"maps"
	"slices"
)

// LinkDefinition is an authorized, configured relationship allowing
// SourceID to invoke the named interfaces on Target. Definitions are
// identified by [LinkKey]; a put with an existing key fully replaces
// the prior value (last writer wins, never merged).
//
// Uses json tags because link definitions surface in CLI output as
// well as on the bus.
type LinkDefinition struct {
	SourceID  string `json:"source_id"`
	Target    string `json:"target"`
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Package   string `json:"package"`

	Interfaces []string `json:"interfaces,omitempty"`

	SourceConfig map[string]string `json:"source_config,omitempty"`
	TargetConfig map[string]string `json:"target_config,omitempty"`
}

func (l *LinkDefinition) Validate() error {
	if l.SourceID == "" {
		return missing("source_id")
	}
	if l.Target == "" {
		return missing("target")
	}
	if l.Name == "" {
		return missing("name")
	}
	if l.Namespace == "" {
		return missing("namespace")
	}
	if l.Package == "" {
		return missing("package")
	}
	return nil
}

// Key returns the identity key under which this definition is stored.
// At most one active definition exists per key.
func (l *LinkDefinition) Key() LinkKey {
	return LinkKey{
		SourceID:  l.SourceID,
		Name:      l.Name,
		Namespace: l.Namespace,
		Package:   l.Package,
	}
}

// Equal reports whether two definitions are identical in every field,
// including configuration. The link cache uses this to recognize a
// redundant re-put (same bytes, no re-provisioning) versus a
// replacement (same key, different value, downstream resources must
// cycle).
func (l *LinkDefinition) Equal(other *LinkDefinition) bool {
	return l.SourceID == other.SourceID &&
		l.Target == other.Target &&
		l.Name == other.Name &&
		l.Namespace == other.Namespace &&
		l.Package == other.Package &&
		slices.Equal(l.Interfaces, other.Interfaces) &&
		maps.Equal(l.SourceConfig, other.SourceConfig) &&
		maps.Equal(l.TargetConfig, other.TargetConfig)
}

// ServesInterface reports whether the definition authorizes the named
// interface.
func (l *LinkDefinition) ServesInterface(name string) bool {
	return slices.Contains(l.Interfaces, name)
}

// LinkKey is the identity key of a link definition.
type LinkKey struct {
	SourceID  string `json:"source_id"`
	Name      string `json:"name"`
	Namespace string `json:"namespace"`
	Package   string `json:"package"`
}

func (k *LinkKey) Validate() error {
	if k.SourceID == "" {
		return missing("source_id")
	}
	if k.Name == "" {
		return missing("name")
	}
	if k.Namespace == "" {
		return missing("namespace")
	}
	if k.Package == "" {
		return missing("package")
	}
	return nil
}
