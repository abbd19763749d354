// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package installer unpacks a staged package archive and runs the
// install script it carries.
//
// [Installer.Install] runs four steps:
//
//  1. Verification: when the request pins a digest, the staged archive
//     is hashed and compared. Otherwise the install proceeds on trust
//     (unless Config.RequireDigest is set) and says so in the log.
//  2. Extraction into a fresh directory under the request's working
//     directory, through the [Extractor] collaborator. The default
//     [TarExtractor] accepts gzip, zstd, ZV container framed and plain
//     tar streams and refuses entries that would land outside the
//     extraction root.
//  3. Entrypoint lookup: the install script must sit at the root of
//     the extracted tree.
//  4. Execution through the [Runner] collaborator with an explicit
//     argument list (shell, then script), inside the extraction root.
//
// The process working directory is shared by every goroutine, so step
// 4 holds a package-level mutex for the whole change-directory, run,
// restore sequence. The previous directory is restored on every exit
// path. Installs therefore never overlap, even when several syncs
// fetch concurrently.
//
// A script that outlives Config.Timeout is killed together with its
// process group, its extraction directory is removed, and Install
// returns an error matching [pkgerror.ErrTimeout].
package installer
