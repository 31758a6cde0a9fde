// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "github.com/lattice-foundation/lattice/lib/codec"

// ComponentStatus describes one component running on a host at the
// moment an inventory snapshot was taken.
type ComponentStatus struct {
	ID          string            `json:"id"`
	Ref         string            `json:"ref"`
	Count       uint32            `json:"count"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// ProviderStatus describes one provider instance running on a host.
type ProviderStatus struct {
	ID          string            `json:"id"`
	Ref         string            `json:"ref"`
	LinkName    string            `json:"link_name,omitempty"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// HostInventory is a point-in-time, host-authoritative view of what a
// host is running. It can be stale by the time it is read: consumers
// must treat it as advisory and re-query rather than cache it.
type HostInventory struct {
	HostID        string            `json:"host_id"`
	Labels        map[string]string `json:"labels,omitempty"`
	Components    []ComponentStatus `json:"components,omitempty"`
	Providers     []ProviderStatus  `json:"providers,omitempty"`
	UptimeSeconds uint64            `json:"uptime_seconds"`
}

func (h *HostInventory) Validate() error {
	if h.HostID == "" {
		return missing("host_id")
	}
	return nil
}

// HostPing is one host's answer to the broadcast discovery ping. It is
// deliberately small: callers that want detail follow up with a
// targeted inventory query.
type HostPing struct {
	HostID        string            `json:"host_id"`
	Labels        map[string]string `json:"labels,omitempty"`
	Components    uint32            `json:"components"`
	Providers     uint32            `json:"providers"`
	UptimeSeconds uint64            `json:"uptime_seconds"`
}

func (p *HostPing) Validate() error {
	if p.HostID == "" {
		return missing("host_id")
	}
	return nil
}

// Event types published on the evt subject family.
const (
	EventHostStarted    = "host_started"
	EventHostStopped    = "host_stopped"
	EventHostHeartbeat  = "host_heartbeat"
	EventStarted        = "entity_started"
	EventStopped        = "entity_stopped"
	EventScaled         = "entity_scaled"
	EventUpdated        = "entity_updated"
	EventFailed         = "entity_failed"
	EventLinkPut        = "linkdef_put"
	EventLinkDeleted    = "linkdef_deleted"
	EventHealthFailed   = "health_check_failed"
	EventHealthRestored = "health_check_recovered"
)

// Event is the envelope for fire-and-forget lattice events. Data holds
// the event-specific body, left encoded so consumers that only route
// on Type never pay to decode it.
type Event struct {
	Type   string           `cbor:"type"`
	ID     string           `cbor:"id"`
	HostID string           `cbor:"host_id"`
	Time   string           `cbor:"time"`
	Data   codec.RawMessage `cbor:"data,omitempty"`
}

func (e *Event) Validate() error {
	if e.Type == "" {
		return missing("type")
	}
	if e.ID == "" {
		return missing("id")
	}
	if e.HostID == "" {
		return missing("host_id")
	}
	return nil
}
