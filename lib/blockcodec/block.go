// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package blockcodec

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/warp-linux/sodium/lib/pkgerror"
)

// Container format constants. These are wire constants: changing them
// breaks every archive already published.
const (
	// MaxBlockSize is the largest number of decoded bytes a single
	// block may carry. It is also the default block size used by
	// [Writer].
	MaxBlockSize = 64*1024 - 1

	// RawHeaderSize is "ZV\x00" plus the u16 uncompressed size.
	RawHeaderSize = 5

	// CompressedHeaderSize is "ZV\x01" plus the u16 compressed size
	// and the u16 uncompressed size.
	CompressedHeaderSize = 7

	// ChecksumHeaderSize is "ZV\x02" plus the u32 CRC. Checksum blocks
	// have no payload.
	ChecksumHeaderSize = 7

	// ChecksumPolynomial is the CRC32 polynomial named by the format
	// for checksum blocks.
	ChecksumPolynomial = 0xDEBB20E3

	eofMarker = 0x00
	magic0    = 'Z'
	magic1    = 'V'
)

var checksumTable = crc32.MakeTable(ChecksumPolynomial)

// BlockType is the third header byte of a block.
type BlockType uint8

const (
	// Raw blocks carry their payload uncompressed.
	Raw BlockType = 0

	// Compressed blocks carry a payload produced by a [Compressor].
	Compressed BlockType = 1

	// Checksum blocks carry the CRC32 of every decoded byte that
	// precedes them in the container.
	Checksum BlockType = 2
)

// String returns the human-readable name of a block type.
func (t BlockType) String() string {
	switch t {
	case Raw:
		return "raw"
	case Compressed:
		return "compressed"
	case Checksum:
		return "checksum"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// HeaderSize returns the encoded header length for a block type, or 0
// for an unknown type.
func (t BlockType) HeaderSize() int {
	switch t {
	case Raw:
		return RawHeaderSize
	case Compressed:
		return CompressedHeaderSize
	case Checksum:
		return ChecksumHeaderSize
	default:
		return 0
	}
}

// Block is one record of a container.
type Block struct {
	Type BlockType

	// UncompressedSize is the number of bytes the block decodes to.
	// Zero for checksum blocks.
	UncompressedSize uint16

	// CompressedSize is the payload length of a compressed block.
	// Zero for raw and checksum blocks.
	CompressedSize uint16

	// Checksum is the CRC carried by a checksum block. Zero otherwise.
	Checksum uint32

	// Payload is the block body exactly as stored: UncompressedSize
	// bytes for raw blocks, CompressedSize bytes for compressed blocks,
	// empty for checksum blocks.
	Payload []byte
}

// RawBlock returns a raw block carrying data. data must not exceed
// [MaxBlockSize] bytes; [Block.Validate] reports violations.
func RawBlock(data []byte) Block {
	return Block{
		Type:             Raw,
		UncompressedSize: uint16(len(data)),
		Payload:          data,
	}
}

// CompressedBlock returns a compressed block whose payload decodes to
// uncompressedSize bytes.
func CompressedBlock(payload []byte, uncompressedSize int) Block {
	return Block{
		Type:             Compressed,
		UncompressedSize: uint16(uncompressedSize),
		CompressedSize:   uint16(len(payload)),
		Payload:          payload,
	}
}

// ChecksumBlock returns a checksum block carrying crc.
func ChecksumBlock(crc uint32) Block {
	return Block{Type: Checksum, Checksum: crc}
}

// Validate checks the size invariants of a block against maxBlockSize:
// compressed size ≤ uncompressed size ≤ maxBlockSize, and a payload
// whose length matches the declared size.
func (b Block) Validate(maxBlockSize int) error {
	switch b.Type {
	case Raw:
		if int(b.UncompressedSize) > maxBlockSize {
			return newFormatError(-1, fmt.Sprintf("raw block size %d exceeds maximum %d", b.UncompressedSize, maxBlockSize), nil)
		}
		if b.CompressedSize != 0 {
			return newFormatError(-1, "raw block declares a compressed size", nil)
		}
		if len(b.Payload) != int(b.UncompressedSize) {
			return newFormatError(-1, fmt.Sprintf("raw block payload is %d bytes, header declares %d", len(b.Payload), b.UncompressedSize), nil)
		}
	case Compressed:
		if err := checkCompressedSizes(-1, b.CompressedSize, b.UncompressedSize, maxBlockSize); err != nil {
			return err
		}
		if len(b.Payload) != int(b.CompressedSize) {
			return newFormatError(-1, fmt.Sprintf("compressed block payload is %d bytes, header declares %d", len(b.Payload), b.CompressedSize), nil)
		}
	case Checksum:
		if len(b.Payload) != 0 || b.UncompressedSize != 0 || b.CompressedSize != 0 {
			return newFormatError(-1, "checksum block carries sizes or payload", nil)
		}
	default:
		return newFormatError(-1, fmt.Sprintf("unknown block type %d", uint8(b.Type)), nil)
	}
	return nil
}

func checkCompressedSizes(offset int64, compressedSize, uncompressedSize uint16, maxBlockSize int) error {
	if int(uncompressedSize) > maxBlockSize {
		return newFormatError(offset, fmt.Sprintf("uncompressed size %d exceeds maximum %d", uncompressedSize, maxBlockSize), nil)
	}
	// 0/0 is a valid empty block.
	if compressedSize == 0 && uncompressedSize != 0 {
		return newFormatError(offset, "compressed block has an empty payload", nil)
	}
	if compressedSize > uncompressedSize {
		return newFormatError(offset, fmt.Sprintf("compressed size %d exceeds uncompressed size %d", compressedSize, uncompressedSize), nil)
	}
	return nil
}

// appendHeader appends the encoded header of b to dst.
func appendHeader(dst []byte, b Block) []byte {
	dst = append(dst, magic0, magic1, byte(b.Type))
	switch b.Type {
	case Raw:
		dst = binary.LittleEndian.AppendUint16(dst, b.UncompressedSize)
	case Compressed:
		dst = binary.LittleEndian.AppendUint16(dst, b.CompressedSize)
		dst = binary.LittleEndian.AppendUint16(dst, b.UncompressedSize)
	case Checksum:
		dst = binary.LittleEndian.AppendUint32(dst, b.Checksum)
	}
	return dst
}

// IsContainer reports whether prefix starts with a ZV block header.
// A container that holds nothing but the end marker is not detected.
func IsContainer(prefix []byte) bool {
	return len(prefix) >= 3 &&
		prefix[0] == magic0 && prefix[1] == magic1 &&
		BlockType(prefix[2]).HeaderSize() != 0
}

// FormatError describes malformed container input. It matches
// [pkgerror.ErrFormat] under errors.Is.
type FormatError struct {
	// Offset is the byte offset of the offending block header, or -1
	// when the error was found while encoding.
	Offset int64

	// Reason describes what was wrong.
	Reason string

	// Err is the underlying I/O or codec error, if any.
	Err error
}

func newFormatError(offset int64, reason string, err error) *FormatError {
	return &FormatError{Offset: offset, Reason: reason, Err: err}
}

func (e *FormatError) Error() string {
	message := "blockcodec: " + e.Reason
	if e.Offset >= 0 {
		message = fmt.Sprintf("blockcodec: block at offset %d: %s", e.Offset, e.Reason)
	}
	if e.Err != nil {
		message += ": " + e.Err.Error()
	}
	return message
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

// Is matches [pkgerror.ErrFormat].
func (e *FormatError) Is(target error) bool {
	return target == pkgerror.ErrFormat
}
