// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package digest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSHA256(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "test")
	if err := os.WriteFile(path, []byte("test"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := File(SHA256, path)
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	const want = "sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"
	if got.String() != want {
		t.Errorf("File = %s, want %s", got, want)
	}
}

func TestFileBLAKE3MatchesReader(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("sodium package archive ", 10_000)
	path := filepath.Join(t.TempDir(), "archive")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	fromFile, err := File(BLAKE3, path)
	if err != nil {
		t.Fatalf("File failed: %v", err)
	}
	fromReader, err := Reader(BLAKE3, strings.NewReader(content))
	if err != nil {
		t.Fatalf("Reader failed: %v", err)
	}
	if !fromFile.Equal(fromReader) {
		t.Errorf("File = %s, Reader = %s", fromFile, fromReader)
	}
	if fromFile.Algorithm != BLAKE3 {
		t.Errorf("Algorithm = %q, want blake3", fromFile.Algorithm)
	}
}

func TestFileMissing(t *testing.T) {
	t.Parallel()

	_, err := File(SHA256, filepath.Join(t.TempDir(), "absent"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	for _, text := range []string{
		"sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08",
		"blake3:af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262",
	} {
		parsed, err := Parse(text)
		if err != nil {
			t.Fatalf("Parse(%q) failed: %v", text, err)
		}
		if parsed.String() != text {
			t.Errorf("Parse(%q).String() = %q", text, parsed.String())
		}
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
	}{
		{"no separator", "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"},
		{"unknown algorithm", "md5:9f86d081884c7d659a2feaa0c55ad015"},
		{"bad hex", "sha256:zzzz"},
		{"short digest", "sha256:abcd"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.input); err == nil {
				t.Errorf("Parse(%q) should fail", tt.input)
			}
		})
	}
}

func TestEqualRequiresSameAlgorithm(t *testing.T) {
	t.Parallel()

	a := Digest{Algorithm: SHA256}
	b := Digest{Algorithm: BLAKE3}
	if a.Equal(b) {
		t.Error("digests with different algorithms compared equal")
	}
	if !a.Equal(Digest{Algorithm: SHA256}) {
		t.Error("identical digests compared unequal")
	}
}

func TestTextRoundTrip(t *testing.T) {
	t.Parallel()

	original, err := Reader(BLAKE3, strings.NewReader("payload"))
	if err != nil {
		t.Fatal(err)
	}
	text, err := original.MarshalText()
	if err != nil {
		t.Fatal(err)
	}
	var decoded Digest
	if err := decoded.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText(%q): %v", text, err)
	}
	if !decoded.Equal(original) {
		t.Errorf("decoded %v, want %v", decoded, original)
	}

	empty, _ := Digest{}.MarshalText()
	if len(empty) != 0 {
		t.Errorf("zero digest marshals to %q", empty)
	}
	if err := decoded.UnmarshalText(nil); err != nil || !decoded.IsZero() {
		t.Errorf("empty text decodes to %v, %v", decoded, err)
	}
}
