// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package blockcodec

import (
	"bytes"
	"crypto/rand"
	"errors"
	"hash/crc32"
	"io"
	"testing"

	"github.com/warp-linux/sodium/lib/pkgerror"
)

func compressibleData(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i % 23)
	}
	return data
}

func randomData(t *testing.T, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("generating random data: %v", err)
	}
	return data
}

func TestWriterReaderRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		data    func(t *testing.T) []byte
		options []WriterOption
	}{
		{
			name: "compressible multi-block",
			data: func(*testing.T) []byte { return compressibleData(3*MaxBlockSize + 17) },
		},
		{
			name: "random data stays raw",
			data: func(t *testing.T) []byte { return randomData(t, 100_000) },
		},
		{
			name:    "small blocks with checksum",
			data:    func(*testing.T) []byte { return compressibleData(10_000) },
			options: []WriterOption{WithBlockSize(512), WithChecksum()},
		},
		{
			name:    "no compressor",
			data:    func(*testing.T) []byte { return compressibleData(5000) },
			options: []WriterOption{WithWriterCompressor(nil)},
		},
		{
			name: "empty input",
			data: func(*testing.T) []byte { return nil },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.data(t)

			var container bytes.Buffer
			writer := NewWriter(&container, tt.options...)
			if _, err := writer.Write(data); err != nil {
				t.Fatalf("Write failed: %v", err)
			}
			if err := writer.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			stats := writer.Stats()
			if stats.BytesIn != int64(len(data)) {
				t.Errorf("BytesIn = %d, want %d", stats.BytesIn, len(data))
			}
			if stats.BytesOut != int64(container.Len()) {
				t.Errorf("BytesOut = %d, container is %d bytes", stats.BytesOut, container.Len())
			}

			decoded, err := io.ReadAll(NewReader(&container))
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if !bytes.Equal(decoded, data) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d", len(decoded), len(data))
			}
		})
	}
}

func TestWriterChoosesBlockTypes(t *testing.T) {
	var container bytes.Buffer
	writer := NewWriter(&container, WithBlockSize(4096))
	if _, err := writer.Write(compressibleData(4096)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := writer.Write(randomData(t, 4096)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	stats := writer.Stats()
	if stats.CompressedBlocks != 1 || stats.RawBlocks != 1 {
		t.Errorf("blocks = %d compressed, %d raw; want 1 and 1", stats.CompressedBlocks, stats.RawBlocks)
	}

	decoder := NewDecoder(&container)
	var types []BlockType
	for block, err := range decoder.All() {
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		types = append(types, block.Type)
	}
	if len(types) != 2 || types[0] != Compressed || types[1] != Raw {
		t.Errorf("block types = %v, want [compressed raw]", types)
	}
}

func TestWriterChecksumMatchesPolynomial(t *testing.T) {
	data := compressibleData(2000)

	var container bytes.Buffer
	writer := NewWriter(&container, WithChecksum())
	if _, err := writer.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	decoder := NewDecoder(&container)
	var last Block
	for block, err := range decoder.All() {
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		last = block
	}
	if last.Type != Checksum {
		t.Fatalf("last block is %s, want checksum", last.Type)
	}
	want := crc32.Checksum(data, crc32.MakeTable(ChecksumPolynomial))
	if last.Checksum != want {
		t.Errorf("checksum = %08x, want %08x", last.Checksum, want)
	}
}

func TestReaderDetectsChecksumMismatch(t *testing.T) {
	var container bytes.Buffer
	blocks := []Block{RawBlock([]byte("payload")), ChecksumBlock(0x12345678)}
	if err := Encode(&container, blocks); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	encoded := container.Bytes()

	_, err := io.ReadAll(NewReader(bytes.NewReader(encoded)))
	if !errors.Is(err, pkgerror.ErrFormat) {
		t.Fatalf("ReadAll error = %v, want format error", err)
	}

	reader := NewReader(bytes.NewReader(encoded), WithoutChecksumVerification())
	decoded, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll without verification failed: %v", err)
	}
	if string(decoded) != "payload" {
		t.Errorf("decoded = %q", decoded)
	}
}

func TestReaderCountsVerifiedChecksums(t *testing.T) {
	var container bytes.Buffer
	writer := NewWriter(&container, WithChecksum())
	if _, err := writer.Write([]byte("sodium")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reader := NewReader(&container)
	if _, err := io.ReadAll(reader); err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if reader.ChecksumsVerified() != 1 {
		t.Errorf("ChecksumsVerified = %d, want 1", reader.ChecksumsVerified())
	}
}

func TestReaderAcceptsEmptyCompressedBlock(t *testing.T) {
	var container bytes.Buffer
	blocks := []Block{
		RawBlock([]byte("so")),
		CompressedBlock(nil, 0),
		RawBlock([]byte("dium")),
	}
	if err := Encode(&container, blocks); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := io.ReadAll(NewReader(&container))
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(decoded) != "sodium" {
		t.Errorf("decoded = %q, want %q", decoded, "sodium")
	}
}

func TestReaderRejectsCorruptCompressedPayload(t *testing.T) {
	var container bytes.Buffer
	// 0xF0 announces a 15+ byte literal run that the payload never
	// supplies, which LZ4 rejects.
	if err := Encode(&container, []Block{CompressedBlock([]byte{0xF0, 0x00}, 100)}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	_, err := io.ReadAll(NewReader(&container))
	if !errors.Is(err, pkgerror.ErrFormat) {
		t.Fatalf("ReadAll error = %v, want format error", err)
	}
}

func TestReaderTruncatedContainer(t *testing.T) {
	var container bytes.Buffer
	writer := NewWriter(&container, WithWriterCompressor(nil))
	if _, err := writer.Write(compressibleData(1000)); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	truncated := container.Bytes()[:container.Len()/2]

	_, err := io.ReadAll(NewReader(bytes.NewReader(truncated)))
	if !errors.Is(err, pkgerror.ErrFormat) {
		t.Fatalf("ReadAll error = %v, want format error", err)
	}
}

func TestLZ4RoundTrip(t *testing.T) {
	data := compressibleData(MaxBlockSize)

	compressed, err := LZ4{}.Compress(data)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if len(compressed) >= len(data) {
		t.Errorf("LZ4 did not compress: %d → %d bytes", len(data), len(compressed))
	}

	decompressed, err := LZ4{}.Decompress(compressed, len(data))
	if err != nil {
		t.Fatalf("Decompress failed: %v", err)
	}
	if !bytes.Equal(decompressed, data) {
		t.Error("LZ4 round trip mismatch")
	}

	if _, err := (LZ4{}).Decompress(compressed, len(data)+1); err == nil {
		t.Error("Decompress should fail when the expected size is wrong")
	}
}

func TestLZ4Incompressible(t *testing.T) {
	_, err := LZ4{}.Compress(randomData(t, 4096))
	if !errors.Is(err, ErrIncompressible) {
		t.Errorf("Compress(random) error = %v, want ErrIncompressible", err)
	}
}
