// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package blockcodec

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"iter"
)

// Option configures a [Decoder] or [Reader].
type Option func(*options)

type options struct {
	maxBlockSize  int
	compressor    Compressor
	skipChecksums bool
}

func defaultOptions() options {
	return options{
		maxBlockSize: MaxBlockSize,
		compressor:   LZ4{},
	}
}

// WithMaxBlockSize lowers the largest block size the decoder accepts.
// Values outside 1..MaxBlockSize are ignored.
func WithMaxBlockSize(size int) Option {
	return func(o *options) {
		if size > 0 && size <= MaxBlockSize {
			o.maxBlockSize = size
		}
	}
}

// WithCompressor sets the codec used to expand compressed blocks.
// Only [Reader] uses it.
func WithCompressor(compressor Compressor) Option {
	return func(o *options) {
		if compressor != nil {
			o.compressor = compressor
		}
	}
}

// WithoutChecksumVerification makes [Reader] pass over checksum blocks
// without comparing them to the data read so far.
func WithoutChecksumVerification() Option {
	return func(o *options) {
		o.skipChecksums = true
	}
}

// Decoder reads blocks from a container one at a time.
//
// Typical usage:
//
//	decoder := blockcodec.NewDecoder(file)
//	for block, err := range decoder.All() {
//	    if err != nil {
//	        return err
//	    }
//	    // ... use block ...
//	}
type Decoder struct {
	reader       *bufio.Reader
	maxBlockSize int
	offset       int64
	err          error
}

// NewDecoder returns a decoder reading from r.
func NewDecoder(r io.Reader, opts ...Option) *Decoder {
	config := defaultOptions()
	for _, opt := range opts {
		opt(&config)
	}
	return &Decoder{
		reader:       bufio.NewReader(r),
		maxBlockSize: config.maxBlockSize,
	}
}

// Offset returns the number of container bytes consumed so far.
func (d *Decoder) Offset() int64 {
	return d.offset
}

// Next returns the next block. It returns io.EOF at the end marker or
// when the stream ends cleanly between blocks. Any other error is
// sticky: later calls return it again.
//
// The returned payload is freshly allocated and owned by the caller.
func (d *Decoder) Next() (Block, error) {
	if d.err != nil {
		return Block{}, d.err
	}
	block, err := d.next()
	if err != nil {
		d.err = err
		return Block{}, err
	}
	return block, nil
}

// All returns the remaining blocks as a sequence. The sequence ends
// after the end marker or clean end of stream; a decoding error is
// yielded once as the final element.
func (d *Decoder) All() iter.Seq2[Block, error] {
	return func(yield func(Block, error) bool) {
		for {
			block, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(block, err) || err != nil {
				return
			}
		}
	}
}

func (d *Decoder) next() (Block, error) {
	start := d.offset

	// ReadHeader: the first byte distinguishes the end marker from a
	// block header.
	first, err := d.reader.ReadByte()
	if err == io.EOF {
		return Block{}, io.EOF
	}
	if err != nil {
		return Block{}, fmt.Errorf("reading block header at offset %d: %w", start, err)
	}
	d.offset++
	if first == eofMarker {
		return Block{}, io.EOF
	}

	var prefix [2]byte
	if err := d.readFull(start, prefix[:], "truncated block header"); err != nil {
		return Block{}, err
	}
	if first != magic0 || prefix[0] != magic1 {
		return Block{}, newFormatError(start, fmt.Sprintf("bad magic %q", []byte{first, prefix[0]}), nil)
	}

	// DetermineType.
	blockType := BlockType(prefix[1])
	switch blockType {
	case Raw:
		var sizes [2]byte
		if err := d.readFull(start, sizes[:], "truncated raw block header"); err != nil {
			return Block{}, err
		}
		uncompressedSize := binary.LittleEndian.Uint16(sizes[:])
		if int(uncompressedSize) > d.maxBlockSize {
			return Block{}, newFormatError(start, fmt.Sprintf("raw block size %d exceeds maximum %d", uncompressedSize, d.maxBlockSize), nil)
		}
		payload, err := d.readPayload(start, int(uncompressedSize))
		if err != nil {
			return Block{}, err
		}
		return Block{Type: Raw, UncompressedSize: uncompressedSize, Payload: payload}, nil

	case Compressed:
		var sizes [4]byte
		if err := d.readFull(start, sizes[:], "truncated compressed block header"); err != nil {
			return Block{}, err
		}
		compressedSize := binary.LittleEndian.Uint16(sizes[0:2])
		uncompressedSize := binary.LittleEndian.Uint16(sizes[2:4])
		if err := checkCompressedSizes(start, compressedSize, uncompressedSize, d.maxBlockSize); err != nil {
			return Block{}, err
		}
		payload, err := d.readPayload(start, int(compressedSize))
		if err != nil {
			return Block{}, err
		}
		return Block{
			Type:             Compressed,
			UncompressedSize: uncompressedSize,
			CompressedSize:   compressedSize,
			Payload:          payload,
		}, nil

	case Checksum:
		var crc [4]byte
		if err := d.readFull(start, crc[:], "truncated checksum block"); err != nil {
			return Block{}, err
		}
		return Block{Type: Checksum, Checksum: binary.LittleEndian.Uint32(crc[:])}, nil

	default:
		return Block{}, newFormatError(start, fmt.Sprintf("unknown block type %d", prefix[1]), nil)
	}
}

// readPayload reads exactly size bytes. A short read is a format error,
// never a partial block.
func (d *Decoder) readPayload(start int64, size int) ([]byte, error) {
	payload := make([]byte, size)
	if err := d.readFull(start, payload, fmt.Sprintf("truncated payload (want %d bytes)", size)); err != nil {
		return nil, err
	}
	return payload, nil
}

func (d *Decoder) readFull(start int64, buffer []byte, reason string) error {
	read, err := io.ReadFull(d.reader, buffer)
	d.offset += int64(read)
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return newFormatError(start, reason, io.ErrUnexpectedEOF)
	}
	return fmt.Errorf("reading block at offset %d: %w", start, err)
}
