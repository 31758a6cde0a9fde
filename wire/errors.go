// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"

	"github.com/lattice-foundation/lattice/lib/codec"
)

// ErrMalformed indicates bytes that could not be decoded as CBOR at
// all. Distinct from a MissingFieldError, which means the CBOR was
// well-formed but a required field was absent.
var ErrMalformed = errors.New("wire: malformed message")

// MissingFieldError reports a required field absent from an otherwise
// well-formed message. The field name is the wire name, not the Go
// name, so it is meaningful to the peer that produced the message.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("wire: missing required field %q", e.Field)
}

func missing(field string) error {
	return &MissingFieldError{Field: field}
}

// Message is any wire shape that can be validated after decoding.
type Message interface {
	Validate() error
}

// Encode serializes a message to its canonical wire bytes.
func Encode(v any) ([]byte, error) {
	return codec.Marshal(v)
}

// Decode unmarshals data into v and validates it. Malformed input is
// reported as ErrMalformed (wrapped with the decoder's detail); a
// structurally valid message with an absent required field is reported
// as a MissingFieldError.
func Decode(data []byte, v Message) error {
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return v.Validate()
}
