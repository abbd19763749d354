// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package cli provides the command-line framework for the sodium
// binary.
//
// The central type is [Command], a named command with optional nested
// [Command.Subcommands], a [pflag.FlagSet] factory and a Run function.
// [Command.Execute] handles flag parsing, subcommand routing and
// structured help output with examples. A command may set both Run and
// Subcommands: the first positional argument selects a subcommand when
// it names one, and Run handles everything else. The sodium root
// command uses this to accept both "sodium -s hello" and
// "sodium sync hello".
//
// When a user types an unknown subcommand or flag, the framework
// computes Levenshtein edit distance against the known names and
// suggests the closest match (distance at most 3).
//
// Flags are usually declared as tagged struct fields and bound with
// [FlagsFromParams]; see [BindFlags] for the tag syntax.
package cli
