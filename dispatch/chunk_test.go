// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"bytes"
	"context"
	"testing"
)

func TestMemoryChunksRoundTrip(t *testing.T) {
	chunks, err := NewMemoryChunks()
	if err != nil {
		t.Fatalf("NewMemoryChunks: %v", err)
	}
	payload := bytes.Repeat([]byte("abcdefgh"), 4096)

	if err := chunks.Put(context.Background(), "inv-1", payload); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := chunks.Get(context.Background(), "inv-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("Get returned %d bytes, want the original %d", len(got), len(payload))
	}

	// Staged payloads are read exactly once.
	if _, err := chunks.Get(context.Background(), "inv-1"); err == nil {
		t.Error("second Get succeeded, want consumed-entry error")
	}
	if n := chunks.Len(); n != 0 {
		t.Errorf("Len = %d after Get, want 0", n)
	}
}

func TestUnpackDetectsCorruption(t *testing.T) {
	chunks, err := NewMemoryChunks()
	if err != nil {
		t.Fatalf("NewMemoryChunks: %v", err)
	}
	compressed, _ := packPayload(chunks.enc, []byte("payload"))
	if _, err := unpackPayload(chunks.dec, compressed, "0000"); err == nil {
		t.Error("unpackPayload accepted a wrong digest")
	}
}
