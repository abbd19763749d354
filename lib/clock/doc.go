// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the time operations the sync pipeline waits
// on (retry backoff and duration measurement) so tests can drive them
// deterministically.
//
// Production code injects [Real]. Tests inject [Fake] and move time
// forward with [FakeClock.Advance]; [FakeClock.WaitForTimers] blocks
// until the code under test has registered its waits, which removes
// the race between "goroutine starts waiting" and "test advances".
//
// This package depends on no other sodium packages.
package clock
