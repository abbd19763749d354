// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package blockcodec

import (
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Compressor transforms block payloads. The container records only
// sizes, so writer and reader must agree on the compressor out of band.
type Compressor interface {
	// Compress returns the compressed form of data, or
	// ErrIncompressible when the result would not be smaller.
	Compress(data []byte) ([]byte, error)

	// Decompress expands compressed into exactly uncompressedSize
	// bytes. A size mismatch is an error.
	Decompress(compressed []byte, uncompressedSize int) ([]byte, error)
}

// ErrIncompressible is returned by [Compressor.Compress] when the
// output would not be smaller than the input. Writers fall back to a
// raw block.
var ErrIncompressible = errors.New("data is incompressible")

// LZ4 is the default [Compressor], using LZ4 block mode.
type LZ4 struct{}

// Compress implements [Compressor].
func (LZ4) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrIncompressible
	}
	destination := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}

	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, ErrIncompressible
	}
	return destination[:written], nil
}

// Decompress implements [Compressor].
func (LZ4) Decompress(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}
