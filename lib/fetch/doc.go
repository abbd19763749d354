// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package fetch retrieves a package archive, from an HTTP(S) URL or a
// local path, into a staging file.
//
// A [Fetcher] streams the source to disk and reports transfer
// statistics in a [Result] rather than in process-wide counters. The
// destination policy is decided before any network traffic: with
// overwrite disabled the destination is created with O_EXCL, so an
// existing file fails with [pkgerror.ErrAlreadyExists] and is never
// touched.
//
// Transfer failures ([pkgerror.ErrTransfer]) are retried with bounded
// exponential backoff timed by the injected clock. Each retry
// truncates the file this fetch created. When every attempt fails the
// partial file is left in place; removing it is the caller's
// responsibility. The whole fetch, retries included, runs under
// Config.Timeout and reports [pkgerror.ErrTimeout] when it expires.
package fetch
