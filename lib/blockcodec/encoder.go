// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package blockcodec

import (
	"fmt"
	"io"
)

// Encoder writes blocks to a container. Headers are a pure function of
// the block fields, so identical blocks always encode to identical
// bytes.
type Encoder struct {
	writer       io.Writer
	maxBlockSize int
	header       [CompressedHeaderSize]byte
	written      int64
	closed       bool
}

// NewEncoder returns an encoder writing to w. Only [WithMaxBlockSize]
// is meaningful among the options.
func NewEncoder(w io.Writer, opts ...Option) *Encoder {
	config := defaultOptions()
	for _, opt := range opts {
		opt(&config)
	}
	return &Encoder{writer: w, maxBlockSize: config.maxBlockSize}
}

// Written returns the number of container bytes written so far.
func (e *Encoder) Written() int64 {
	return e.written
}

// WriteBlock validates and writes one block.
func (e *Encoder) WriteBlock(block Block) error {
	if e.closed {
		return fmt.Errorf("blockcodec: write after close")
	}
	if err := block.Validate(e.maxBlockSize); err != nil {
		return err
	}

	header := appendHeader(e.header[:0], block)
	if err := e.write(header); err != nil {
		return fmt.Errorf("writing %s block header: %w", block.Type, err)
	}
	if len(block.Payload) > 0 {
		if err := e.write(block.Payload); err != nil {
			return fmt.Errorf("writing %s block payload: %w", block.Type, err)
		}
	}
	return nil
}

// Close writes the end-of-stream marker. It does not close the
// underlying writer.
func (e *Encoder) Close() error {
	if e.closed {
		return nil
	}
	e.closed = true
	if err := e.write([]byte{eofMarker}); err != nil {
		return fmt.Errorf("writing end marker: %w", err)
	}
	return nil
}

func (e *Encoder) write(data []byte) error {
	written, err := e.writer.Write(data)
	e.written += int64(written)
	return err
}

// Encode writes blocks followed by the end marker.
func Encode(w io.Writer, blocks []Block, opts ...Option) error {
	encoder := NewEncoder(w, opts...)
	for i, block := range blocks {
		if err := encoder.WriteBlock(block); err != nil {
			return fmt.Errorf("block %d: %w", i, err)
		}
	}
	return encoder.Close()
}
