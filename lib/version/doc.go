// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for the sodium
// binary.
//
// Four package-level variables are injected at build time via
// -ldflags -X:
//
//   - [GitCommit]: short git SHA of the build
//   - [GitDirty]: "true" if there were uncommitted changes
//   - [BuildTime]: UTC timestamp of the build
//   - [Version]: semantic version string
//
// When the binary was installed with "go install" and no ldflags were
// given, [Short] falls back to the module version recorded in the
// binary's build info.
//
// [SelfDigest] hashes the running executable, which "sodium version
// --verbose" prints so an installed binary can be matched against a
// release artifact.
package version
