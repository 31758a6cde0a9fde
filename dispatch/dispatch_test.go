// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lattice-foundation/lattice/bus"
	"github.com/lattice-foundation/lattice/links"
	"github.com/lattice-foundation/lattice/wire"
)

const testOperation = "lattice:keyvalue/store.get"

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// testPair wires a caller and a serving target over one in-process
// bus, with a link authorizing the caller on lattice:keyvalue.
type testPair struct {
	bus    *bus.Memory
	chunks *MemoryChunks
	caller *Dispatcher
	target *Dispatcher
	cache  *links.Cache
}

func newTestPair(t *testing.T, threshold int) *testPair {
	t.Helper()
	b := bus.NewMemory()
	t.Cleanup(func() { b.Drain() })

	chunks, err := NewMemoryChunks()
	if err != nil {
		t.Fatalf("NewMemoryChunks: %v", err)
	}

	cache := links.NewCache(testLogger())
	if err := cache.Put(wire.LinkDefinition{
		SourceID:   "component-a",
		Target:     "provider-kv",
		Name:       "default",
		Namespace:  "lattice",
		Package:    "keyvalue",
		Interfaces: []string{"store"},
	}); err != nil {
		t.Fatalf("Put link: %v", err)
	}

	caller := New(Config{
		Bus:            b,
		Links:          links.NewCache(testLogger()),
		Chunks:         chunks,
		Log:            testLogger(),
		Lattice:        "test",
		Entity:         wire.Entity{ID: "component-a"},
		ChunkThreshold: threshold,
	})
	target := New(Config{
		Bus:            b,
		Links:          cache,
		Chunks:         chunks,
		Log:            testLogger(),
		Lattice:        "test",
		Entity:         wire.Entity{ID: "provider-kv", LinkName: "default"},
		ChunkThreshold: threshold,
	})
	if err := target.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { target.Drain() })

	return &testPair{bus: b, chunks: chunks, caller: caller, target: target, cache: cache}
}

func TestInvokeRoundTrip(t *testing.T) {
	pair := newTestPair(t, DefaultChunkThreshold)
	pair.target.RegisterHandler(testOperation, func(_ context.Context, payload []byte) ([]byte, error) {
		return append([]byte("value:"), payload...), nil
	})

	got, err := pair.caller.Invoke(context.Background(), wire.Entity{ID: "provider-kv", LinkName: "default"}, testOperation, []byte("session"))
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if string(got) != "value:session" {
		t.Errorf("Invoke returned %q, want value:session", got)
	}
}

func TestInvokeUnauthorizedNeverReachesHandler(t *testing.T) {
	pair := newTestPair(t, DefaultChunkThreshold)
	var handled bool
	pair.target.RegisterHandler("lattice:blobstore/container.create", func(context.Context, []byte) ([]byte, error) {
		handled = true
		return nil, nil
	})

	// No link definition covers lattice:blobstore.
	_, err := pair.caller.Invoke(context.Background(), wire.Entity{ID: "provider-kv", LinkName: "default"}, "lattice:blobstore/container.create", nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Invoke error = %v, want ErrUnauthorized", err)
	}
	if handled {
		t.Error("handler ran for an unauthorized invocation")
	}
}

func TestInvokeUnauthorizedInterface(t *testing.T) {
	pair := newTestPair(t, DefaultChunkThreshold)
	pair.target.RegisterHandler("lattice:keyvalue/atomics.increment", func(context.Context, []byte) ([]byte, error) {
		return nil, nil
	})

	// The link serves the store interface only.
	_, err := pair.caller.Invoke(context.Background(), wire.Entity{ID: "provider-kv", LinkName: "default"}, "lattice:keyvalue/atomics.increment", nil)
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Invoke error = %v, want ErrUnauthorized", err)
	}
}

func TestInvokeApplicationError(t *testing.T) {
	pair := newTestPair(t, DefaultChunkThreshold)
	pair.target.RegisterHandler(testOperation, func(context.Context, []byte) ([]byte, error) {
		return nil, errors.New("bucket does not exist")
	})

	_, err := pair.caller.Invoke(context.Background(), wire.Entity{ID: "provider-kv", LinkName: "default"}, testOperation, nil)
	var appErr *ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("Invoke error = %v, want ApplicationError", err)
	}
	if appErr.Message != "bucket does not exist" {
		t.Errorf("application message = %q, want handler message verbatim", appErr.Message)
	}
	if errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrProtocol) {
		t.Error("application error must not match the sentinel classes")
	}
}

func TestInvokeNoHandler(t *testing.T) {
	pair := newTestPair(t, DefaultChunkThreshold)
	_, err := pair.caller.Invoke(context.Background(), wire.Entity{ID: "provider-kv", LinkName: "default"}, testOperation, nil)
	var appErr *ApplicationError
	if !errors.As(err, &appErr) {
		t.Fatalf("Invoke error = %v, want ApplicationError for missing handler", err)
	}
}

func TestInvokeTimeout(t *testing.T) {
	pair := newTestPair(t, DefaultChunkThreshold)
	release := make(chan struct{})
	defer close(release)
	pair.target.RegisterHandler(testOperation, func(context.Context, []byte) ([]byte, error) {
		<-release
		return nil, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := pair.caller.Invoke(ctx, wire.Entity{ID: "provider-kv", LinkName: "default"}, testOperation, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Invoke error = %v, want ErrTimeout", err)
	}
}

func TestInvokeNoResponders(t *testing.T) {
	pair := newTestPair(t, DefaultChunkThreshold)
	_, err := pair.caller.Invoke(context.Background(), wire.Entity{ID: "provider-gone"}, testOperation, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Invoke error = %v, want ErrTimeout", err)
	}
}

func TestInvokeCorrelation(t *testing.T) {
	pair := newTestPair(t, DefaultChunkThreshold)
	pair.target.RegisterHandler(testOperation, func(_ context.Context, payload []byte) ([]byte, error) {
		return payload, nil
	})

	const callers = 16
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			want := fmt.Sprintf("payload-%d", i)
			got, err := pair.caller.Invoke(context.Background(), wire.Entity{ID: "provider-kv", LinkName: "default"}, testOperation, []byte(want))
			if err != nil {
				t.Errorf("Invoke %d: %v", i, err)
				return
			}
			if string(got) != want {
				t.Errorf("caller %d received %q, want its own response %q", i, got, want)
			}
		}()
	}
	wg.Wait()
}

func TestInvokeChunkedRoundTrip(t *testing.T) {
	// A tiny threshold forces staging in both directions.
	pair := newTestPair(t, 64)
	request := bytes.Repeat([]byte("req"), 100)
	response := bytes.Repeat([]byte("resp"), 100)

	pair.target.RegisterHandler(testOperation, func(_ context.Context, payload []byte) ([]byte, error) {
		if !bytes.Equal(payload, request) {
			return nil, fmt.Errorf("handler saw %d bytes, want %d", len(payload), len(request))
		}
		return response, nil
	})

	got, err := pair.caller.Invoke(context.Background(), wire.Entity{ID: "provider-kv", LinkName: "default"}, testOperation, request)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !bytes.Equal(got, response) {
		t.Errorf("Invoke returned %d bytes, want the staged response", len(got))
	}
	if n := pair.chunks.Len(); n != 0 {
		t.Errorf("%d staged payloads left behind, want 0", n)
	}
}

func TestParseOperation(t *testing.T) {
	tests := []struct {
		in      string
		want    operation
		wantErr bool
	}{
		{in: "lattice:keyvalue/store.get", want: operation{Namespace: "lattice", Package: "keyvalue", Interface: "store", Function: "get"}},
		{in: "lattice:messaging/consumer", want: operation{Namespace: "lattice", Package: "messaging", Interface: "consumer"}},
		{in: "keyvalue/store.get", wantErr: true},
		{in: "lattice:keyvalue", wantErr: true},
		{in: "lattice:/store.get", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range tests {
		got, err := parseOperation(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("parseOperation(%q) succeeded, want error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseOperation(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("parseOperation(%q) = %+v, want %+v", tc.in, got, tc.want)
		}
	}
}
