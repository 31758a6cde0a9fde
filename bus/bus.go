// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package bus abstracts the publish/subscribe-with-request-reply
// substrate that connects every lattice process. The production
// implementation wraps a NATS connection; tests use [NewMemory], an
// in-process bus with the same semantics, so every protocol test runs
// without a server.
//
// Two subscription modes exist, and the distinction carries protocol
// meaning: [Bus.Subscribe] is broadcast (every subscriber sees every
// message — link mutations, auctions, events), while
// [Bus.QueueSubscribe] is load-balanced (one member of the queue group
// sees each message — invocations and bulk link queries, where a
// duplicate delivery would mean a duplicate side effect).
//
// Delivery is at least once from the application's point of view:
// handlers must be idempotent. Per-publisher order is preserved per
// subscription, matching what single-connection pub/sub substrates
// guarantee; nothing is guaranteed across publishers.
package bus

import (
	"context"
	"errors"
)

// ErrTimeout reports that a request's context expired before a
// response arrived.
var ErrTimeout = errors.New("bus: request timed out")

// ErrNoResponders reports a request published to a subject with no
// subscribers. Callers that treat silence and absence the same can
// fold this into their timeout path.
var ErrNoResponders = errors.New("bus: no responders")

// ErrClosed reports an operation on a bus that has been drained.
var ErrClosed = errors.New("bus: connection closed")

// Message is one delivered bus message. Reply is the subject a
// responder should publish its answer to; it is empty for
// fire-and-forget publishes.
type Message struct {
	Subject string
	Reply   string
	Data    []byte
}

// Handler consumes one delivered message. Handlers run on the
// subscription's delivery goroutine; slow work should be handed off.
type Handler func(Message)

// Subscription is one active subject subscription.
type Subscription interface {
	// Drain stops delivery after in-flight messages are handled.
	Drain() error
}

// Bus is the lattice's view of the message substrate.
type Bus interface {
	// Publish sends a fire-and-forget message.
	Publish(subject string, data []byte) error

	// PublishRequest sends a message whose responses (zero, one, or
	// many) go to the reply subject. This is the scatter-gather
	// primitive: the caller subscribes to reply first, then collects
	// for as long as it cares to.
	PublishRequest(subject, reply string, data []byte) error

	// Request publishes and waits for the first response. The
	// context bounds the wait; expiry yields ErrTimeout, a subject
	// with no subscribers yields ErrNoResponders.
	Request(ctx context.Context, subject string, data []byte) (Message, error)

	// Subscribe delivers every message on subject to handler.
	Subscribe(subject string, handler Handler) (Subscription, error)

	// QueueSubscribe delivers each message on subject to exactly one
	// member of the named queue group.
	QueueSubscribe(subject, queue string, handler Handler) (Subscription, error)

	// NewInbox returns a unique subject for receiving replies.
	NewInbox() string

	// Flush blocks until every message published so far has been
	// handed to the substrate.
	Flush() error

	// Drain flushes, stops all subscriptions after their in-flight
	// messages complete, and releases the connection. The bus is
	// unusable afterwards.
	Drain() error
}
