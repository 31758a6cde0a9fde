// Copyright 2026 The Lattice Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns a string of the form "prefix-N" where N is a
// monotonically increasing integer. Use this instead of time.Now() when
// tests need unique identifiers for entity IDs, invocation IDs, or
// payloads that must be distinguishable on a shared bus.
//
//	hostID := testutil.UniqueID("host")      // "host-1", "host-2", ...
//	payload := testutil.UniqueID("echo")     // "echo-3", ...
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
