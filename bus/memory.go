// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Compile-time interface check.
var _ Bus = (*Memory)(nil)

// Memory is an in-process Bus for tests. It implements the same
// delivery semantics as the NATS adapter: broadcast subscriptions see
// every message, queue groups see each message exactly once
// (round-robin), requests to subjects without subscribers fail fast
// with ErrNoResponders, and per-subscription delivery order matches
// publish order.
//
// Each subscription runs its handler on a dedicated goroutine fed by
// an ordered channel, so handlers may themselves publish without
// deadlocking the bus.
type Memory struct {
	mu       sync.Mutex
	subs     []*memorySubscription
	rr       map[string]uint64
	closed   bool
	inboxSeq atomic.Uint64
	wg       sync.WaitGroup
}

// NewMemory creates an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{rr: make(map[string]uint64)}
}

func (b *Memory) Publish(subject string, data []byte) error {
	_, err := b.deliver(subject, "", data)
	return err
}

func (b *Memory) PublishRequest(subject, reply string, data []byte) error {
	_, err := b.deliver(subject, reply, data)
	return err
}

func (b *Memory) Request(ctx context.Context, subject string, data []byte) (Message, error) {
	inbox := b.NewInbox()
	first := make(chan Message, 1)
	sub, err := b.Subscribe(inbox, func(m Message) {
		// Only the first response matters; late ones are dropped,
		// mirroring the request-reply substrate.
		select {
		case first <- m:
		default:
		}
	})
	if err != nil {
		return Message{}, err
	}
	defer sub.Drain()

	delivered, err := b.deliver(subject, inbox, data)
	if err != nil {
		return Message{}, err
	}
	if delivered == 0 {
		return Message{}, ErrNoResponders
	}

	select {
	case m := <-first:
		return m, nil
	case <-ctx.Done():
		return Message{}, ErrTimeout
	}
}

func (b *Memory) Subscribe(subject string, handler Handler) (Subscription, error) {
	return b.subscribe(subject, "", handler)
}

func (b *Memory) QueueSubscribe(subject, queue string, handler Handler) (Subscription, error) {
	return b.subscribe(subject, queue, handler)
}

func (b *Memory) NewInbox() string {
	return "_INBOX." + strconv.FormatUint(b.inboxSeq.Add(1), 10)
}

func (b *Memory) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

func (b *Memory) Drain() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.closed = true
	subs := make([]*memorySubscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Drain()
	}
	b.wg.Wait()
	return nil
}

func (b *Memory) subscribe(subject, queue string, handler Handler) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &memorySubscription{
		pattern: subject,
		queue:   queue,
		handler: handler,
		ch:      make(chan Message, 1024),
	}
	b.subs = append(b.subs, sub)
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for msg := range sub.ch {
			sub.handler(msg)
		}
	}()
	return sub, nil
}

// deliver routes one message and returns how many subscriptions
// received it.
func (b *Memory) deliver(subject, reply string, data []byte) (int, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrClosed
	}

	var targets []*memorySubscription
	queueGroups := make(map[string][]*memorySubscription)
	for _, sub := range b.subs {
		if !subjectMatches(sub.pattern, subject) || sub.isClosed() {
			continue
		}
		if sub.queue == "" {
			targets = append(targets, sub)
		} else {
			queueGroups[sub.queue] = append(queueGroups[sub.queue], sub)
		}
	}
	for queue, group := range queueGroups {
		pick := b.rr[queue] % uint64(len(group))
		b.rr[queue]++
		targets = append(targets, group[pick])
	}
	b.mu.Unlock()

	msg := Message{Subject: subject, Reply: reply, Data: data}
	delivered := 0
	for _, sub := range targets {
		if sub.send(msg) {
			delivered++
		}
	}
	return delivered, nil
}

type memorySubscription struct {
	pattern string
	queue   string
	handler Handler
	ch      chan Message

	mu     sync.Mutex
	closed bool
}

func (s *memorySubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *memorySubscription) send(msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.ch <- msg
	return true
}

func (s *memorySubscription) Drain() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.ch)
	return nil
}

// subjectMatches implements NATS-style subject matching: tokens are
// dot-separated, "*" matches exactly one token, ">" matches one or
// more trailing tokens. Published subjects are always literal; only
// subscription patterns carry wildcards.
func subjectMatches(pattern, subject string) bool {
	if pattern == subject {
		return true
	}
	patternTokens := strings.Split(pattern, ".")
	subjectTokens := strings.Split(subject, ".")
	for i, token := range patternTokens {
		if token == ">" {
			return i < len(subjectTokens)
		}
		if i >= len(subjectTokens) {
			return false
		}
		if token != "*" && token != subjectTokens[i] {
			return false
		}
	}
	return len(patternTokens) == len(subjectTokens)
}
