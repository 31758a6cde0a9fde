// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
)

// Compile-time interface check.
var _ Bus = (*NATS)(nil)

// NATS is the production Bus backed by a NATS connection.
type NATS struct {
	conn *nats.Conn
}

// Connect dials a NATS server and wraps the connection. The name
// appears in server-side monitoring; credentials and TLS come in as
// standard nats.Option values from the host configuration.
func Connect(url, name string, options ...nats.Option) (*NATS, error) {
	options = append([]nats.Option{nats.Name(name)}, options...)
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("bus: connecting to %s: %w", url, err)
	}
	return &NATS{conn: conn}, nil
}

// FromConn wraps an existing connection. The caller keeps ownership
// of the connection's lifecycle only until Drain is called.
func FromConn(conn *nats.Conn) *NATS {
	return &NATS{conn: conn}
}

// Conn exposes the underlying connection for substrate features that
// sit outside the Bus contract (the JetStream object store used for
// chunked payload staging).
func (b *NATS) Conn() *nats.Conn {
	return b.conn
}

func (b *NATS) Publish(subject string, data []byte) error {
	return b.conn.Publish(subject, data)
}

func (b *NATS) PublishRequest(subject, reply string, data []byte) error {
	return b.conn.PublishRequest(subject, reply, data)
}

func (b *NATS) Request(ctx context.Context, subject string, data []byte) (Message, error) {
	msg, err := b.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		switch {
		case errors.Is(err, nats.ErrNoResponders):
			return Message{}, ErrNoResponders
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, nats.ErrTimeout):
			return Message{}, ErrTimeout
		case errors.Is(err, nats.ErrConnectionClosed):
			return Message{}, ErrClosed
		}
		return Message{}, err
	}
	return Message{Subject: msg.Subject, Reply: msg.Reply, Data: msg.Data}, nil
}

func (b *NATS) Subscribe(subject string, handler Handler) (Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(m *nats.Msg) {
		handler(Message{Subject: m.Subject, Reply: m.Reply, Data: m.Data})
	})
	if err != nil {
		return nil, err
	}
	return natsSubscription{sub}, nil
}

func (b *NATS) QueueSubscribe(subject, queue string, handler Handler) (Subscription, error) {
	sub, err := b.conn.QueueSubscribe(subject, queue, func(m *nats.Msg) {
		handler(Message{Subject: m.Subject, Reply: m.Reply, Data: m.Data})
	})
	if err != nil {
		return nil, err
	}
	return natsSubscription{sub}, nil
}

func (b *NATS) NewInbox() string {
	return b.conn.NewRespInbox()
}

func (b *NATS) Flush() error {
	return b.conn.Flush()
}

func (b *NATS) Drain() error {
	return b.conn.Drain()
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s natsSubscription) Drain() error {
	return s.sub.Drain()
}
