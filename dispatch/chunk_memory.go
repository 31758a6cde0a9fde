// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Compile-time interface check.
var _ ChunkStore = (*MemoryChunks)(nil)

// MemoryChunks is an in-process ChunkStore for tests and
// single-process deployments. It uses the same compression and
// integrity envelope as the object-store backend.
type MemoryChunks struct {
	enc *zstd.Encoder
	dec *zstd.Decoder

	mu      sync.Mutex
	entries map[string]memoryChunk
}

type memoryChunk struct {
	compressed []byte
	digest     string
}

func NewMemoryChunks() (*MemoryChunks, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("dispatch: creating compressor: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("dispatch: creating decompressor: %w", err)
	}
	return &MemoryChunks{
		enc:     enc,
		dec:     dec,
		entries: make(map[string]memoryChunk),
	}, nil
}

func (m *MemoryChunks) Put(ctx context.Context, invocationID string, payload []byte) error {
	compressed, digest := packPayload(m.enc, payload)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[invocationID] = memoryChunk{compressed: compressed, digest: digest}
	return nil
}

func (m *MemoryChunks) Get(ctx context.Context, invocationID string) ([]byte, error) {
	m.mu.Lock()
	chunk, ok := m.entries[invocationID]
	delete(m.entries, invocationID)
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("dispatch: no staged payload for invocation %s", invocationID)
	}
	return unpackPayload(m.dec, chunk.compressed, chunk.digest)
}

// Len reports the number of staged payloads, for leak checks in tests.
func (m *MemoryChunks) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
