// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package dispatch

import "errors"

// Invocation failure taxonomy. Timeout, Protocol, and Unauthorized are
// sentinels checked with errors.Is; application failures carry the
// handler's message and are matched with errors.As.
var (
	// ErrTimeout reports that no response arrived within the caller's
	// timeout. Retry policy belongs to the caller; the dispatcher
	// never retries on its behalf.
	ErrTimeout = errors.New("dispatch: invocation timed out")

	// ErrProtocol reports a malformed or mismatched response. It
	// indicates a bug or version skew, not a handler failure.
	ErrProtocol = errors.New("dispatch: protocol error")

	// ErrUnauthorized reports that the target had no matching link
	// definition. It is distinguished from an application error
	// because it indicates control-plane misconfiguration, not a
	// handler bug.
	ErrUnauthorized = errors.New("dispatch: no matching link definition")
)

// ApplicationError is a failure produced by the remote handler itself
// and carried verbatim in the response's error field.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string {
	return "dispatch: application error: " + e.Message
}
