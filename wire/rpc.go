// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Entity names one addressable participant in the lattice: a host, a
// component, or a provider instance. IDs are opaque strings, unique
// within a lattice, and never reused while any cached reference to
// them exists. Provider entities carry the link name they serve;
// components and hosts leave LinkName empty.
type Entity struct {
	ID       string `cbor:"id"`
	LinkName string `cbor:"link_name,omitempty"`
}

// Invocation is one outstanding synchronous call from Origin to
// Target. The payload travels inline unless it exceeded the sender's
// chunk threshold, in which case Payload is empty, ContentLength still
// records the full size, and the bytes are staged in the chunk store
// under InvocationID.
type Invocation struct {
	Origin       Entity            `cbor:"origin"`
	Target       Entity            `cbor:"target"`
	Operation    string            `cbor:"operation"`
	Payload      []byte            `cbor:"payload,omitempty"`
	InvocationID string            `cbor:"invocation_id"`
	TraceContext map[string]string `cbor:"trace_context,omitempty"`

	// ContentLength is the size of the full payload in bytes,
	// whether inline or staged. A value larger than len(Payload)
	// tells the receiver to dechunk before dispatching.
	ContentLength uint64 `cbor:"content_length"`
}

func (i *Invocation) Validate() error {
	if i.Origin.ID == "" {
		return missing("origin.id")
	}
	if i.Target.ID == "" {
		return missing("target.id")
	}
	if i.Operation == "" {
		return missing("operation")
	}
	if i.InvocationID == "" {
		return missing("invocation_id")
	}
	return nil
}

// Chunked reports whether the payload was staged out of band.
func (i *Invocation) Chunked() bool {
	return i.ContentLength > uint64(len(i.Payload))
}

// Error codes carried in InvocationResponse.ErrorCode. They let the
// caller distinguish a control-plane misconfiguration (unauthorized:
// no link definition authorizes the call) from a handler failure
// (application) and from an undecodable request (protocol).
const (
	ErrorCodeApplication  = "application"
	ErrorCodeUnauthorized = "unauthorized"
	ErrorCodeProtocol     = "protocol"
)

// InvocationResponse correlates to its Invocation by InvocationID. A
// non-empty Error means the call failed; ErrorCode classifies the
// failure. Like the request, an oversized response payload is staged
// in the chunk store (under the invocation ID with a response suffix)
// and ContentLength records the full size.
type InvocationResponse struct {
	InvocationID string            `cbor:"invocation_id"`
	Payload      []byte            `cbor:"payload,omitempty"`
	Error        string            `cbor:"error,omitempty"`
	ErrorCode    string            `cbor:"error_code,omitempty"`
	TraceContext map[string]string `cbor:"trace_context,omitempty"`

	ContentLength uint64 `cbor:"content_length"`
}

func (r *InvocationResponse) Validate() error {
	if r.InvocationID == "" {
		return missing("invocation_id")
	}
	return nil
}

// Chunked reports whether the response payload was staged out of band.
func (r *InvocationResponse) Chunked() bool {
	return r.ContentLength > uint64(len(r.Payload))
}

// HealthCheckRequest asks a component or provider whether it is able
// to serve. It carries no fields today; the shape exists so a future
// revision can add optional ones without breaking older responders.
type HealthCheckRequest struct{}

func (HealthCheckRequest) Validate() error { return nil }

// HealthCheckResponse is the responder's verdict. An unanswered
// request is indistinguishable from an unhealthy one from the
// monitor's perspective, so responders must answer within the
// caller's timeout.
type HealthCheckResponse struct {
	Healthy bool   `cbor:"healthy"`
	Message string `cbor:"message,omitempty"`
}

func (*HealthCheckResponse) Validate() error { return nil }
