// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"
)

// DefaultChunkThreshold is the payload size above which an invocation
// payload is staged out of band instead of being carried inline. It
// sits below common bus message-size limits with headroom for the
// envelope.
const DefaultChunkThreshold = 900 * 1024

// respSuffix distinguishes a staged response payload from the staged
// request payload of the same invocation.
const respSuffix = "-r"

// ChunkStore stages oversized invocation payloads out of band. Put
// stores the payload under the invocation id; Get retrieves it and
// removes the entry, since each staged payload is read exactly once by
// its single recipient.
type ChunkStore interface {
	Put(ctx context.Context, invocationID string, payload []byte) error
	Get(ctx context.Context, invocationID string) ([]byte, error)
}

// packPayload compresses a payload for staging and returns the hex
// digest of the uncompressed bytes, verified again on retrieval.
func packPayload(enc *zstd.Encoder, payload []byte) (compressed []byte, digest string) {
	sum := blake3.Sum256(payload)
	return enc.EncodeAll(payload, nil), hex.EncodeToString(sum[:])
}

// unpackPayload reverses packPayload, failing if the content digest
// does not match what was stored.
func unpackPayload(dec *zstd.Decoder, compressed []byte, digest string) ([]byte, error) {
	payload, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return nil, fmt.Errorf("dispatch: decompressing staged payload: %w", err)
	}
	sum := blake3.Sum256(payload)
	if got := hex.EncodeToString(sum[:]); got != digest {
		return nil, fmt.Errorf("dispatch: staged payload digest mismatch: got %s want %s", got, digest)
	}
	return payload, nil
}
