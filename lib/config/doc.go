// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for sodium.
//
// Configuration comes from a single file named by the --config flag
// or, failing that, the SODIUM_CONFIG environment variable (see
// [Load]). With neither set the built-in [Default] is used, so sodium
// works with no configuration at all. There is no search path and no
// per-field environment override: the file, when given, is the single
// source of truth.
//
// Variable expansion is performed on path fields after loading:
// ${HOME}, ${SODIUM_ROOT} (the resolved paths.root) and
// ${VAR:-default} patterns are expanded.
//
// Durations are written as Go duration strings ("30s", "10m") and
// checked by [Config.Validate]. Pinned digests ("sha256:<hex>" or
// "blake3:<hex>") are parsed by Validate as well, so a typo in a pin
// is reported before any download starts.
package config
