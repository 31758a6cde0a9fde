// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the lattice's standard CBOR encoding
// configuration.
//
// Every message that crosses the bus — invocations, link definitions,
// control commands, acknowledgements, health responses, events — is
// serialized with the modes defined here so that every package encodes
// identically without duplicating configuration. The encoder uses Core
// Deterministic Encoding (RFC 8949 §4.2): sorted map keys, smallest
// integer encoding, no indefinite-length items. The decoder ignores
// unknown fields, which is what makes rolling protocol upgrades safe:
// an optional field added in a newer revision is carried by newer hosts
// and ignored by older ones.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// Field naming is controlled by `json` struct tags: fxamacker/cbor v2
// reads them when `cbor` tags are absent, and the same shapes are
// rendered as JSON by the operator CLI's --json output. Wire shapes
// that never surface in CLI output use `cbor` tags to document that
// contract.
package codec
