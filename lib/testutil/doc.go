// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for sodium packages.
//
// [TarArchive], [GzipArchive] and [ZstdArchive] build package archives
// in memory from a list of [Entry] values, so installer and sync tests
// can describe fixture packages inline. [InstallablePackage] returns a
// gzip-compressed archive whose sodium-install.sh writes a marker file,
// the shape most end-to-end tests need.
//
// [RequireReceive] encapsulates the timeout safety valve pattern
// (select with a wall-clock fallback) so individual tests do not need
// direct time.After calls.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
