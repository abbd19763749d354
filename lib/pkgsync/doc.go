// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package pkgsync drives the sodium pipeline: it resolves a package
// name (or a local archive path) to a source, fetches the archive into
// a per-sync session directory, hands it to the installer, and records
// the result.
//
// Every failure is returned as a [*pkgerror.SyncError] naming the
// package and the step that failed, wrapping an error that matches one
// of the pkgerror sentinels. Nothing is retried at this level; the
// fetch layer owns transfer retries.
//
// # Exclusivity
//
// A package is synced by at most one caller at a time. The lock is
// held in two places: an in-process table, and an flock(2) on
// <state>/locks/<name>.lock so separate sodium processes exclude each
// other too. A contended lock fails immediately with
// [pkgerror.ErrLocked]; callers are never queued.
//
// # Session directories
//
// Each sync stages into <work>/<name>-<uuid>/, so concurrent or
// repeated syncs never share a staging path. The directory is removed
// after a successful sync unless artifacts are kept, and left in place
// after a failure (for inspection) unless cleanup on failure is
// enabled. A sync that times out always removes it.
//
// # Batches
//
// [Syncer.SyncAll] runs several syncs with at most Config.Parallelism
// in flight. Fetches overlap; install script runs are serialized by
// the installer.
package pkgsync
