// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// Compile-time interface check.
var _ ChunkStore = (*ObjectChunks)(nil)

// ObjectChunks stages oversized payloads in a JetStream object-store
// bucket shared by the lattice, so a payload written by the caller's
// process can be read by whichever host serves the invocation.
type ObjectChunks struct {
	store jetstream.ObjectStore
	enc   *zstd.Encoder
	dec   *zstd.Decoder
}

// NewObjectChunks opens (creating if needed) the chunk bucket for one
// lattice.
func NewObjectChunks(ctx context.Context, nc *nats.Conn, lattice string) (*ObjectChunks, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("dispatch: jetstream: %w", err)
	}
	store, err := js.CreateOrUpdateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      "chunks-" + lattice,
		Description: "staged oversized invocation payloads",
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch: opening chunk bucket: %w", err)
	}
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("dispatch: creating compressor: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("dispatch: creating decompressor: %w", err)
	}
	return &ObjectChunks{store: store, enc: enc, dec: dec}, nil
}

func (o *ObjectChunks) Put(ctx context.Context, invocationID string, payload []byte) error {
	compressed, digest := packPayload(o.enc, payload)
	meta := jetstream.ObjectMeta{
		Name:     invocationID,
		Metadata: map[string]string{"content-digest": digest},
	}
	if _, err := o.store.Put(ctx, meta, bytes.NewReader(compressed)); err != nil {
		return fmt.Errorf("dispatch: staging payload for invocation %s: %w", invocationID, err)
	}
	return nil
}

func (o *ObjectChunks) Get(ctx context.Context, invocationID string) ([]byte, error) {
	obj, err := o.store.Get(ctx, invocationID)
	if err != nil {
		return nil, fmt.Errorf("dispatch: fetching staged payload for invocation %s: %w", invocationID, err)
	}
	compressed, err := io.ReadAll(obj)
	if closeErr := obj.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("dispatch: reading staged payload for invocation %s: %w", invocationID, err)
	}
	info, err := obj.Info()
	if err != nil {
		return nil, fmt.Errorf("dispatch: staged payload info for invocation %s: %w", invocationID, err)
	}
	// Each staged payload has exactly one reader; remove it eagerly
	// rather than relying on bucket TTLs.
	if err := o.store.Delete(ctx, invocationID); err != nil {
		return nil, fmt.Errorf("dispatch: removing staged payload for invocation %s: %w", invocationID, err)
	}
	return unpackPayload(o.dec, compressed, info.Metadata["content-digest"])
}
