// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package blockcodec

import (
	"errors"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

// Reader decodes a container into the byte stream it carries.
type Reader struct {
	decoder       *Decoder
	compressor    Compressor
	verify        bool
	checksum      hash.Hash32
	pending       []byte
	checksumsSeen int
	err           error
}

// NewReader returns a reader that decodes the container read from r.
// Checksum blocks are verified unless [WithoutChecksumVerification] is
// given.
func NewReader(r io.Reader, opts ...Option) *Reader {
	config := defaultOptions()
	for _, opt := range opts {
		opt(&config)
	}
	return &Reader{
		decoder:    NewDecoder(r, opts...),
		compressor: config.compressor,
		verify:     !config.skipChecksums,
		checksum:   crc32.New(checksumTable),
	}
}

// ChecksumsVerified returns how many checksum blocks have been read
// and matched so far.
func (r *Reader) ChecksumsVerified() int {
	return r.checksumsSeen
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (int, error) {
	for len(r.pending) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		r.err = r.fill()
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

// fill decodes blocks until decoded bytes are available or the stream
// ends.
func (r *Reader) fill() error {
	offset := r.decoder.Offset()
	block, err := r.decoder.Next()
	if err != nil {
		return err
	}

	switch block.Type {
	case Raw:
		r.pending = block.Payload
	case Compressed:
		if block.UncompressedSize == 0 {
			r.pending = nil
			break
		}
		data, err := r.compressor.Decompress(block.Payload, int(block.UncompressedSize))
		if err != nil {
			return newFormatError(offset, "undecodable compressed payload", err)
		}
		r.pending = data
	case Checksum:
		if r.verify && block.Checksum != r.checksum.Sum32() {
			return newFormatError(offset, fmt.Sprintf("checksum mismatch: container says %08x, data is %08x",
				block.Checksum, r.checksum.Sum32()), nil)
		}
		r.checksumsSeen++
		return nil
	}
	r.checksum.Write(r.pending)
	return nil
}

// WriterOption configures a [Writer].
type WriterOption func(*Writer)

// WithBlockSize sets how many input bytes go into each block. Values
// outside 1..MaxBlockSize are ignored.
func WithBlockSize(size int) WriterOption {
	return func(w *Writer) {
		if size > 0 && size <= MaxBlockSize {
			w.blockSize = size
		}
	}
}

// WithWriterCompressor sets the compressor. A nil compressor stores
// every block raw.
func WithWriterCompressor(compressor Compressor) WriterOption {
	return func(w *Writer) {
		w.compressor = compressor
	}
}

// WithChecksum appends a checksum block covering the whole stream when
// the writer is closed.
func WithChecksum() WriterOption {
	return func(w *Writer) {
		w.appendChecksum = true
	}
}

// WriterStats summarizes what a [Writer] produced.
type WriterStats struct {
	BytesIn          int64
	BytesOut         int64
	RawBlocks        int
	CompressedBlocks int
}

// Writer frames a byte stream into a container. Close must be called
// to flush the last block and write the end marker.
type Writer struct {
	encoder        *Encoder
	compressor     Compressor
	blockSize      int
	appendChecksum bool
	checksum       hash.Hash32
	buffer         []byte
	stats          WriterStats
	closed         bool
}

// NewWriter returns a writer producing a container on w.
func NewWriter(w io.Writer, opts ...WriterOption) *Writer {
	writer := &Writer{
		encoder:    NewEncoder(w),
		compressor: LZ4{},
		blockSize:  MaxBlockSize,
		checksum:   crc32.New(checksumTable),
	}
	for _, opt := range opts {
		opt(writer)
	}
	writer.buffer = make([]byte, 0, writer.blockSize)
	return writer
}

// Stats returns the counters accumulated so far.
func (w *Writer) Stats() WriterStats {
	stats := w.stats
	stats.BytesOut = w.encoder.Written()
	return stats
}

// Write implements io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("blockcodec: write after close")
	}
	total := len(p)
	for len(p) > 0 {
		room := w.blockSize - len(w.buffer)
		take := min(room, len(p))
		w.buffer = append(w.buffer, p[:take]...)
		p = p[take:]
		if len(w.buffer) == w.blockSize {
			if err := w.flushBlock(); err != nil {
				return total - len(p) - take, err
			}
		}
	}
	return total, nil
}

// Close flushes buffered data, writes the optional checksum block and
// the end marker. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if len(w.buffer) > 0 {
		if err := w.flushBlock(); err != nil {
			return err
		}
	}
	if w.appendChecksum {
		if err := w.encoder.WriteBlock(ChecksumBlock(w.checksum.Sum32())); err != nil {
			return err
		}
	}
	return w.encoder.Close()
}

func (w *Writer) flushBlock() error {
	data := w.buffer
	w.checksum.Write(data)
	w.stats.BytesIn += int64(len(data))

	block := RawBlock(data)
	if w.compressor != nil {
		compressed, err := w.compressor.Compress(data)
		switch {
		case err == nil && len(compressed) > 0 && len(compressed) < len(data):
			block = CompressedBlock(compressed, len(data))
		case err != nil && !errors.Is(err, ErrIncompressible):
			return err
		}
	}

	if block.Type == Compressed {
		w.stats.CompressedBlocks++
	} else {
		w.stats.RawBlocks++
	}
	if err := w.encoder.WriteBlock(block); err != nil {
		return err
	}
	w.buffer = w.buffer[:0]
	return nil
}
