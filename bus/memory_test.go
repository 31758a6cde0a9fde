// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package bus

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/lattice-foundation/lattice/lib/testutil"
)

func TestMemoryPublishSubscribe(t *testing.T) {
	b := NewMemory()
	defer b.Drain()

	received := make(chan Message, 8)
	if _, err := b.Subscribe("lattice.events.*", func(m Message) {
		received <- m
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := b.Publish("lattice.events.started", []byte("one")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Publish("lattice.other.started", []byte("miss")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Publish("lattice.events.stopped", []byte("two")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	first := testutil.RequireReceive(t, received, 5*time.Second, "first event")
	if first.Subject != "lattice.events.started" || string(first.Data) != "one" {
		t.Errorf("first message = %q %q, want lattice.events.started one", first.Subject, first.Data)
	}
	second := testutil.RequireReceive(t, received, 5*time.Second, "second event")
	if string(second.Data) != "two" {
		t.Errorf("second message data = %q, want two (order must match publish order)", second.Data)
	}
}

func TestMemoryQueueGroupDeliversOnce(t *testing.T) {
	b := NewMemory()
	defer b.Drain()

	received := make(chan int, 16)
	for i := range 3 {
		member := i
		if _, err := b.QueueSubscribe("work.items", "workers", func(Message) {
			received <- member
		}); err != nil {
			t.Fatalf("QueueSubscribe: %v", err)
		}
	}

	const total = 6
	for i := range total {
		if err := b.Publish("work.items", []byte{byte(i)}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	seen := make(map[int]int)
	for range total {
		member := testutil.RequireReceive(t, received, 5*time.Second, "queue delivery")
		seen[member]++
	}
	select {
	case extra := <-received:
		t.Fatalf("message delivered to more than one group member (extra from %d)", extra)
	case <-time.After(50 * time.Millisecond):
	}
	if len(seen) != 3 {
		t.Errorf("deliveries spread across %d members, want 3 (round-robin): %v", len(seen), seen)
	}
}

func TestMemoryRequestReply(t *testing.T) {
	b := NewMemory()
	defer b.Drain()

	if _, err := b.Subscribe("svc.echo", func(m Message) {
		b.Publish(m.Reply, append([]byte("re:"), m.Data...))
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := b.Request(ctx, "svc.echo", []byte("ping"))
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if string(resp.Data) != "re:ping" {
		t.Errorf("response = %q, want re:ping", resp.Data)
	}
}

func TestMemoryRequestNoResponders(t *testing.T) {
	b := NewMemory()
	defer b.Drain()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	start := time.Now()
	_, err := b.Request(ctx, "svc.nobody", []byte("ping"))
	if !errors.Is(err, ErrNoResponders) {
		t.Fatalf("Request error = %v, want ErrNoResponders", err)
	}
	// No-responders must fail fast, not wait out the context.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("no-responders took %v, want immediate failure", elapsed)
	}
}

func TestMemoryRequestTimeout(t *testing.T) {
	b := NewMemory()
	defer b.Drain()

	// A subscriber that never replies.
	if _, err := b.Subscribe("svc.slow", func(Message) {}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := b.Request(ctx, "svc.slow", []byte("ping"))
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Request error = %v, want ErrTimeout", err)
	}
}

func TestMemorySubscriptionDrainStopsDelivery(t *testing.T) {
	b := NewMemory()
	defer b.Drain()

	received := make(chan Message, 8)
	sub, err := b.Subscribe("topic", func(m Message) { received <- m })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err := b.Publish("topic", []byte("before")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	testutil.RequireReceive(t, received, 5*time.Second, "message before drain")

	if err := sub.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if err := b.Publish("topic", []byte("after")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case m := <-received:
		t.Fatalf("received %q after subscription drain", m.Data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryDrainRejectsFurtherUse(t *testing.T) {
	b := NewMemory()
	if err := b.Drain(); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if err := b.Publish("topic", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("Publish after drain = %v, want ErrClosed", err)
	}
	if _, err := b.Subscribe("topic", func(Message) {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Subscribe after drain = %v, want ErrClosed", err)
	}
	if err := b.Drain(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Drain = %v, want ErrClosed", err)
	}
}

func TestMemoryInboxesAreUnique(t *testing.T) {
	b := NewMemory()
	defer b.Drain()
	seen := make(map[string]bool)
	for range 100 {
		inbox := b.NewInbox()
		if seen[inbox] {
			t.Fatalf("duplicate inbox %q", inbox)
		}
		seen[inbox] = true
	}
}

func TestSubjectMatches(t *testing.T) {
	tests := []struct {
		pattern, subject string
		want             bool
	}{
		{"a.b.c", "a.b.c", true},
		{"a.b.c", "a.b.d", false},
		{"a.*.c", "a.b.c", true},
		{"a.*.c", "a.b.c.d", false},
		{"a.>", "a.b.c.d", true},
		{"a.>", "a", false},
		{"a.*", "a.b.c", false},
		{">", "anything.at.all", true},
		{"a.b", "a.b.c", false},
		{"a.b.c", "a.b", false},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%s_vs_%s", tc.pattern, tc.subject), func(t *testing.T) {
			if got := subjectMatches(tc.pattern, tc.subject); got != tc.want {
				t.Errorf("subjectMatches(%q, %q) = %v, want %v", tc.pattern, tc.subject, got, tc.want)
			}
		})
	}
}
