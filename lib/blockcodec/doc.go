// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package blockcodec implements the ZV block container, the framing
// used for sodium package archives.
//
// A container is a sequence of typed blocks, each introduced by the
// two magic bytes "ZV" and a type byte, terminated by a single 0x00
// byte or by the end of the stream:
//
//	"ZV\x00" u16 usize <usize raw bytes>
//	"ZV\x01" u16 csize u16 usize <csize compressed bytes>
//	"ZV\x02" u32 crc32
//	"\x00"   end of stream
//
// All integers are little-endian. A block never decodes to more than
// [MaxBlockSize] bytes, and a compressed block is never larger than the
// data it encodes.
//
// The package has two layers:
//
//   - [Decoder] and [Encoder] work on [Block] values. They validate
//     framing and sizes only and never look inside payloads.
//   - [Reader] and [Writer] work on byte streams. They route payloads
//     through a [Compressor] (LZ4 by default) and maintain the running
//     checksum carried by checksum blocks.
//
// Decoding is strictly sequential: blocks are produced one at a time,
// nothing beyond the current block is held in memory, and a stream can
// only be restarted from its beginning.
package blockcodec
