// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds sodium's CBOR configuration. Every on-disk record
// is encoded through this package so that identical data always
// produces identical bytes (RFC 8949 Core Deterministic Encoding) and
// records written by a newer sodium still decode in an older one
// (unknown fields are ignored).
package codec
