// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides entrypoint helpers for the sodium binary:
// mapping the error returned by a command tree to a process exit code
// and reporting it on stderr when the structured logger has not taken
// over.
package process
