// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package digest computes and parses the file digests used to pin
// package archives. A pinned digest is written as "<algorithm>:<hex>",
// for example:
//
//	sha256:9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08
//	blake3:af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262
//
// Files are streamed through the hash so memory use does not depend
// on archive size.
package digest

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

// Algorithm names a supported hash function.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	BLAKE3 Algorithm = "blake3"
)

// newHash returns a fresh hash for the algorithm.
func (a Algorithm) newHash() (hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New(), nil
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", string(a))
	}
}

// Digest is an algorithm-tagged 32-byte digest.
type Digest struct {
	Algorithm Algorithm
	Sum       [32]byte
}

// String returns the canonical "<algorithm>:<hex>" form.
func (d Digest) String() string {
	return string(d.Algorithm) + ":" + hex.EncodeToString(d.Sum[:])
}

// IsZero reports whether d is the zero value.
func (d Digest) IsZero() bool {
	return d.Algorithm == ""
}

// Equal compares two digests in constant time with respect to the sum.
func (d Digest) Equal(other Digest) bool {
	return d.Algorithm == other.Algorithm &&
		subtle.ConstantTimeCompare(d.Sum[:], other.Sum[:]) == 1
}

// MarshalText encodes d in its String form. The zero Digest encodes
// as empty text.
func (d Digest) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (d *Digest) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*d = Digest{}
		return nil
	}
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Parse parses "<algorithm>:<hex>". The hex part must encode exactly
// 32 bytes.
func Parse(text string) (Digest, error) {
	name, hexString, found := strings.Cut(strings.TrimSpace(text), ":")
	if !found {
		return Digest{}, fmt.Errorf("digest %q: want <algorithm>:<hex>", text)
	}
	algorithm := Algorithm(strings.ToLower(name))
	if _, err := algorithm.newHash(); err != nil {
		return Digest{}, fmt.Errorf("digest %q: %w", text, err)
	}
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return Digest{}, fmt.Errorf("parsing digest %q: %w", text, err)
	}
	if len(decoded) != 32 {
		return Digest{}, fmt.Errorf("digest %q is %d bytes, want 32", text, len(decoded))
	}
	result := Digest{Algorithm: algorithm}
	copy(result.Sum[:], decoded)
	return result, nil
}

// Reader computes the digest of everything read from r.
func Reader(algorithm Algorithm, r io.Reader) (Digest, error) {
	hasher, err := algorithm.newHash()
	if err != nil {
		return Digest{}, err
	}
	if _, err := io.Copy(hasher, r); err != nil {
		return Digest{}, err
	}
	result := Digest{Algorithm: algorithm}
	copy(result.Sum[:], hasher.Sum(nil))
	return result, nil
}

// File computes the digest of the file at path.
func File(algorithm Algorithm, path string) (Digest, error) {
	file, err := os.Open(path)
	if err != nil {
		return Digest{}, fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer file.Close()

	result, err := Reader(algorithm, file)
	if err != nil {
		return Digest{}, fmt.Errorf("hashing %s: %w", path, err)
	}
	return result, nil
}
