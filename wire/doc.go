// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines every message shape that crosses the lattice
// bus: invocations and their responses, link definitions, control
// commands and acknowledgements, auction requests and bids, health
// checks, host inventory, and the event envelope.
//
// Shapes are plain structs serialized through lib/codec (deterministic
// CBOR, unknown fields ignored on decode). Numeric wire fields use
// explicit fixed-width types because messages cross process and
// architecture boundaries. Payload bytes are opaque here — their
// interpretation belongs to the handler that receives them.
//
// Every shape that is decoded at a trust boundary has a Validate
// method. [Decode] combines unmarshalling with validation so boundary
// code gets a single call that either yields a usable message or a
// typed error: [ErrMalformed] for bytes that are not valid CBOR, or a
// [MissingFieldError] naming the first absent required field. Neither
// ever panics.
package wire
