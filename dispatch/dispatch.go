// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package dispatch implements synchronous invocations over the bus:
// outbound calls correlated by invocation id, and inbound serving
// gated by the link cache. Oversized payloads are staged in a chunk
// store in either direction; the splitting is invisible to handlers.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/propagation"

	"github.com/lattice-foundation/lattice/bus"
	"github.com/lattice-foundation/lattice/links"
	"github.com/lattice-foundation/lattice/subject"
	"github.com/lattice-foundation/lattice/wire"
)

// DefaultTimeout bounds an outbound call when the caller's context
// carries no deadline of its own.
const DefaultTimeout = 2 * time.Second

// chunkExtraTime extends the timeout of a chunked invocation to cover
// the staging round trips on both sides.
const chunkExtraTime = 13 * time.Second

// Handler is business logic plugged into the dispatcher by the
// execution engine or a provider implementation. The context carries
// the inbound deadline and the propagated trace context; a returned
// error surfaces to the caller as an application error.
type Handler func(ctx context.Context, payload []byte) ([]byte, error)

// Config assembles a Dispatcher. Bus, Links, Log, Lattice, and Entity
// are required; zero values elsewhere select defaults.
type Config struct {
	Bus    bus.Bus
	Links  *links.Cache
	Chunks ChunkStore
	Log    *slog.Logger

	Prefix  string
	Lattice string
	// Entity is the local identity: origin of outbound calls, target
	// of inbound ones.
	Entity wire.Entity

	// Timeout bounds calls with no caller deadline and inbound handler
	// execution. Defaults to DefaultTimeout.
	Timeout time.Duration
	// ChunkThreshold is the inline payload size limit. Defaults to
	// DefaultChunkThreshold. Staging requires a ChunkStore; without
	// one, oversized payloads travel inline and the bus may reject
	// them.
	ChunkThreshold int
}

// Dispatcher sends and serves invocations for one local entity.
type Dispatcher struct {
	bus        bus.Bus
	links      *links.Cache
	chunks     ChunkStore
	log        *slog.Logger
	propagator propagation.TextMapPropagator

	prefix    string
	lattice   string
	entity    wire.Entity
	timeout   time.Duration
	threshold int

	mu       sync.Mutex
	handlers map[string]Handler

	sub      bus.Subscription
	inflight sync.WaitGroup
}

func New(cfg Config) *Dispatcher {
	if cfg.Prefix == "" {
		cfg.Prefix = subject.DefaultPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ChunkThreshold <= 0 {
		cfg.ChunkThreshold = DefaultChunkThreshold
	}
	return &Dispatcher{
		bus:        cfg.Bus,
		links:      cfg.Links,
		chunks:     cfg.Chunks,
		log:        cfg.Log,
		propagator: propagation.TraceContext{},
		prefix:     cfg.Prefix,
		lattice:    cfg.Lattice,
		entity:     cfg.Entity,
		timeout:    cfg.Timeout,
		threshold:  cfg.ChunkThreshold,
		handlers:   make(map[string]Handler),
	}
}

// RegisterHandler installs fn for one operation, replacing any prior
// registration. Operations are named "namespace:package/interface.function".
func (d *Dispatcher) RegisterHandler(operation string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[operation] = fn
}

// Invoke performs one synchronous call and returns the response
// payload. Failures map to the package's error taxonomy: ErrTimeout
// when no response arrives in time, ErrProtocol on an undecodable or
// mismatched response, ErrUnauthorized when the target has no matching
// link definition, and ApplicationError when the remote handler
// failed.
func (d *Dispatcher) Invoke(ctx context.Context, target wire.Entity, operation string, payload []byte) ([]byte, error) {
	linkName := target.LinkName
	if linkName == "" {
		linkName = subject.DefaultLinkName
	}
	addr := subject.RPC{
		Prefix:   d.prefix,
		Lattice:  d.lattice,
		Target:   target.ID,
		LinkName: linkName,
		Leaf:     subject.LeafInvoke,
	}
	subj, err := addr.Subject()
	if err != nil {
		return nil, err
	}

	inv := wire.Invocation{
		Origin:        d.entity,
		Target:        target,
		Operation:     operation,
		Payload:       payload,
		InvocationID:  uuid.NewString(),
		TraceContext:  map[string]string{},
		ContentLength: uint64(len(payload)),
	}
	d.propagator.Inject(ctx, propagation.MapCarrier(inv.TraceContext))

	timeout := d.timeout
	if len(payload) > d.threshold && d.chunks != nil {
		if err := d.chunks.Put(ctx, inv.InvocationID, payload); err != nil {
			return nil, fmt.Errorf("dispatch: staging request payload: %w", err)
		}
		inv.Payload = nil
		timeout += chunkExtraTime
	}

	data, err := wire.Encode(&inv)
	if err != nil {
		return nil, fmt.Errorf("dispatch: encoding invocation: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	msg, err := d.bus.Request(ctx, subj, data)
	switch {
	case errors.Is(err, bus.ErrTimeout):
		return nil, fmt.Errorf("%w: operation %s on %s", ErrTimeout, operation, target.ID)
	case errors.Is(err, bus.ErrNoResponders):
		return nil, fmt.Errorf("%w: no responder for %s", ErrTimeout, subj)
	case err != nil:
		return nil, fmt.Errorf("dispatch: request on %s: %w", subj, err)
	}

	var resp wire.InvocationResponse
	if err := wire.Decode(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("%w: undecodable response: %v", ErrProtocol, err)
	}
	if resp.InvocationID != inv.InvocationID {
		return nil, fmt.Errorf("%w: response correlates to %s, not %s", ErrProtocol, resp.InvocationID, inv.InvocationID)
	}
	if resp.Error != "" {
		switch resp.ErrorCode {
		case wire.ErrorCodeUnauthorized:
			return nil, fmt.Errorf("%w: %s", ErrUnauthorized, resp.Error)
		case wire.ErrorCodeProtocol:
			return nil, fmt.Errorf("%w: %s", ErrProtocol, resp.Error)
		default:
			return nil, &ApplicationError{Message: resp.Error}
		}
	}
	if resp.Chunked() {
		if d.chunks == nil {
			return nil, fmt.Errorf("%w: chunked response without a chunk store", ErrProtocol)
		}
		body, err := d.chunks.Get(ctx, inv.InvocationID+respSuffix)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrProtocol, err)
		}
		return body, nil
	}
	return resp.Payload, nil
}

// Start subscribes to the local entity's invoke subject. The
// subscription is a load-balanced queue group so one replica of the
// entity handles each invocation.
func (d *Dispatcher) Start() error {
	linkName := d.entity.LinkName
	if linkName == "" {
		linkName = subject.DefaultLinkName
	}
	addr := subject.RPC{
		Prefix:   d.prefix,
		Lattice:  d.lattice,
		Target:   d.entity.ID,
		LinkName: linkName,
		Leaf:     subject.LeafInvoke,
	}
	subj, err := addr.Subject()
	if err != nil {
		return err
	}
	sub, err := d.bus.QueueSubscribe(subj, subj, func(msg bus.Message) {
		d.inflight.Add(1)
		go func() {
			defer d.inflight.Done()
			d.serve(msg)
		}()
	})
	if err != nil {
		return fmt.Errorf("dispatch: subscribing on %s: %w", subj, err)
	}
	d.sub = sub
	return nil
}

// Drain stops accepting invocations and waits for in-flight handlers
// to publish their responses.
func (d *Dispatcher) Drain() error {
	if d.sub == nil {
		return nil
	}
	err := d.sub.Drain()
	d.inflight.Wait()
	d.sub = nil
	return err
}

// serve handles one inbound invocation and publishes exactly one
// response, success or failure.
func (d *Dispatcher) serve(msg bus.Message) {
	var inv wire.Invocation
	if err := wire.Decode(msg.Data, &inv); err != nil {
		d.log.Warn("undecodable invocation", "subject", msg.Subject, "error", err)
		d.respond(msg.Reply, wire.InvocationResponse{
			InvocationID: inv.InvocationID,
			Error:        err.Error(),
			ErrorCode:    wire.ErrorCodeProtocol,
		})
		return
	}

	log := d.log.With(
		"invocation_id", inv.InvocationID,
		"operation", inv.Operation,
		"origin", inv.Origin.ID)

	resp := wire.InvocationResponse{
		InvocationID: inv.InvocationID,
		TraceContext: inv.TraceContext,
	}

	op, err := parseOperation(inv.Operation)
	if err != nil {
		log.Warn("rejecting invocation", "error", err)
		resp.Error = err.Error()
		resp.ErrorCode = wire.ErrorCodeProtocol
		d.respond(msg.Reply, resp)
		return
	}

	// Authorization gate: the call must be covered by an active link
	// definition before any handler runs.
	if !d.authorized(inv.Origin, op) {
		log.Warn("rejecting unauthorized invocation",
			"namespace", op.Namespace, "package", op.Package)
		resp.Error = fmt.Sprintf("no link definition from %s on %s:%s", inv.Origin.ID, op.Namespace, op.Package)
		resp.ErrorCode = wire.ErrorCodeUnauthorized
		d.respond(msg.Reply, resp)
		return
	}

	d.mu.Lock()
	handler := d.handlers[inv.Operation]
	d.mu.Unlock()
	if handler == nil {
		log.Warn("no handler registered")
		resp.Error = fmt.Sprintf("no handler registered for %s", inv.Operation)
		resp.ErrorCode = wire.ErrorCodeApplication
		d.respond(msg.Reply, resp)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	ctx = d.propagator.Extract(ctx, propagation.MapCarrier(inv.TraceContext))

	payload := inv.Payload
	if inv.Chunked() {
		if d.chunks == nil {
			resp.Error = "chunked invocation without a chunk store"
			resp.ErrorCode = wire.ErrorCodeProtocol
			d.respond(msg.Reply, resp)
			return
		}
		payload, err = d.chunks.Get(ctx, inv.InvocationID)
		if err != nil {
			log.Warn("dechunking request payload", "error", err)
			resp.Error = err.Error()
			resp.ErrorCode = wire.ErrorCodeProtocol
			d.respond(msg.Reply, resp)
			return
		}
	}

	result, err := handler(ctx, payload)
	if err != nil {
		resp.Error = err.Error()
		resp.ErrorCode = wire.ErrorCodeApplication
		d.respond(msg.Reply, resp)
		return
	}

	resp.Payload = result
	resp.ContentLength = uint64(len(result))
	if len(result) > d.threshold && d.chunks != nil {
		if err := d.chunks.Put(ctx, inv.InvocationID+respSuffix, result); err != nil {
			log.Warn("staging response payload", "error", err)
			resp.Payload = nil
			resp.Error = err.Error()
			resp.ErrorCode = wire.ErrorCodeApplication
			d.respond(msg.Reply, resp)
			return
		}
		resp.Payload = nil
	}
	d.respond(msg.Reply, resp)
}

func (d *Dispatcher) respond(reply string, resp wire.InvocationResponse) {
	if reply == "" {
		d.log.Warn("invocation without reply subject", "invocation_id", resp.InvocationID)
		return
	}
	data, err := wire.Encode(&resp)
	if err != nil {
		d.log.Error("encoding invocation response", "error", err)
		return
	}
	if err := d.bus.Publish(reply, data); err != nil {
		d.log.Warn("publishing invocation response", "error", err)
	}
}

func (d *Dispatcher) authorized(origin wire.Entity, op operation) bool {
	linkName := origin.LinkName
	if linkName == "" {
		linkName = subject.DefaultLinkName
	}
	def, ok := d.links.Lookup(wire.LinkKey{
		SourceID:  origin.ID,
		Name:      linkName,
		Namespace: op.Namespace,
		Package:   op.Package,
	})
	if !ok {
		return false
	}
	return def.ServesInterface(op.Interface)
}

// operation is the parsed form of "namespace:package/interface.function".
type operation struct {
	Namespace string
	Package   string
	Interface string
	Function  string
}

func parseOperation(s string) (operation, error) {
	nsPkg, rest, ok := strings.Cut(s, "/")
	if !ok {
		return operation{}, fmt.Errorf("dispatch: operation %q lacks an interface", s)
	}
	ns, pkg, ok := strings.Cut(nsPkg, ":")
	if !ok {
		return operation{}, fmt.Errorf("dispatch: operation %q lacks a namespace", s)
	}
	iface, fn, _ := strings.Cut(rest, ".")
	op := operation{Namespace: ns, Package: pkg, Interface: iface, Function: fn}
	if op.Namespace == "" || op.Package == "" || op.Interface == "" {
		return operation{}, fmt.Errorf("dispatch: operation %q is incomplete", s)
	}
	return op, nil
}
