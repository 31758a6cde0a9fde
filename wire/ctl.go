// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// EntityKind distinguishes the two kinds of placeable work.
type EntityKind string

const (
	KindComponent EntityKind = "component"
	KindProvider  EntityKind = "provider"
)

// Valid reports whether k is a known kind.
func (k EntityKind) Valid() bool {
	return k == KindComponent || k == KindProvider
}

// ControlAck is the uniform terminal result of every mutating control
// command. Accepted means the host will attempt the operation, not
// that it has completed; completion is observed asynchronously on the
// event subjects. An ack is never partial: commands that cannot apply
// return Accepted false with the reason in Message.
type ControlAck struct {
	Accepted bool   `json:"accepted"`
	Message  string `json:"message,omitempty"`
}

func (*ControlAck) Validate() error { return nil }

// StartCommand asks a host to run Count instances of the entity
// packaged at Ref. Starting an already-running matching entity is an
// accepted no-op. Providers additionally name the link they serve.
type StartCommand struct {
	HostID      string            `json:"host_id"`
	Kind        EntityKind        `json:"kind"`
	Ref         string            `json:"ref"`
	EntityID    string            `json:"entity_id"`
	LinkName    string            `json:"link_name,omitempty"`
	Count       uint32            `json:"count"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

func (c *StartCommand) Validate() error {
	if c.HostID == "" {
		return missing("host_id")
	}
	if !c.Kind.Valid() {
		return missing("kind")
	}
	if c.Ref == "" {
		return missing("ref")
	}
	if c.EntityID == "" {
		return missing("entity_id")
	}
	return nil
}

// StopCommand asks a host to stop a running entity, waiting up to
// TimeoutMillis for graceful teardown. Stopping an absent entity is
// an accepted no-op.
type StopCommand struct {
	HostID        string `json:"host_id"`
	EntityID      string `json:"entity_id"`
	TimeoutMillis uint64 `json:"timeout_ms,omitempty"`
}

func (c *StopCommand) Validate() error {
	if c.HostID == "" {
		return missing("host_id")
	}
	if c.EntityID == "" {
		return missing("entity_id")
	}
	return nil
}

// ScaleCommand adjusts a running entity to Count instances. Scaling
// an absent entity is rejected (invalid transition), not silently
// started.
type ScaleCommand struct {
	HostID      string            `json:"host_id"`
	EntityID    string            `json:"entity_id"`
	Count       uint32            `json:"count"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

func (c *ScaleCommand) Validate() error {
	if c.HostID == "" {
		return missing("host_id")
	}
	if c.EntityID == "" {
		return missing("entity_id")
	}
	return nil
}

// UpdateCommand replaces the package reference of running instances.
// When Annotations is non-empty, only instances whose annotations are
// a superset of the command's are touched, which is how canary-style
// partial updates of otherwise-identical entities work. An empty
// EntityID updates every matching instance on the host.
type UpdateCommand struct {
	HostID      string            `json:"host_id"`
	EntityID    string            `json:"entity_id,omitempty"`
	NewRef      string            `json:"new_ref"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

func (c *UpdateCommand) Validate() error {
	if c.HostID == "" {
		return missing("host_id")
	}
	if c.NewRef == "" {
		return missing("new_ref")
	}
	return nil
}

// StopHostCommand asks a host process to shut down: stop local
// entities, flush pending acknowledgements, and release its bus
// resources.
type StopHostCommand struct {
	HostID        string `json:"host_id"`
	TimeoutMillis uint64 `json:"timeout_ms,omitempty"`
}

func (c *StopHostCommand) Validate() error {
	if c.HostID == "" {
		return missing("host_id")
	}
	return nil
}

// AuctionRequest is broadcast to every host in the lattice to discover
// which of them could run the candidate at Ref under the given
// constraints. Hosts that do not qualify stay silent.
type AuctionRequest struct {
	Kind        EntityKind        `json:"kind"`
	Ref         string            `json:"ref"`
	EntityID    string            `json:"entity_id,omitempty"`
	LinkName    string            `json:"link_name,omitempty"`
	Constraints map[string]string `json:"constraints,omitempty"`
}

func (a *AuctionRequest) Validate() error {
	if !a.Kind.Valid() {
		return missing("kind")
	}
	if a.Ref == "" {
		return missing("ref")
	}
	return nil
}

// AuctionBid is one host's positive answer to an AuctionRequest. It
// exists only for the duration of one auction window; the caller, not
// the bidder, picks a winner.
type AuctionBid struct {
	HostID   string `json:"host_id"`
	Ref      string `json:"ref"`
	LinkName string `json:"link_name,omitempty"`
}

func (b *AuctionBid) Validate() error {
	if b.HostID == "" {
		return missing("host_id")
	}
	if b.Ref == "" {
		return missing("ref")
	}
	return nil
}
