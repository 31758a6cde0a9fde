// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for lattice packages.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls. These are
// the only place in the test suite where real wall-clock timeouts are
// used; deterministic timing lives in lib/clock's fake clock.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation. Use it instead of time.Now() when tests need unique
// entity IDs, invocation IDs, or payloads that must be distinguishable
// on a shared bus.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
//
// This package has no lattice-internal dependencies.
package testutil
