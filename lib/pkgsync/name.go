// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package pkgsync

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/warp-linux/sodium/lib/pkgerror"
)

// MaxNameLength bounds package names in bytes.
const MaxNameLength = 128

// archiveSuffixes are stripped, longest first, when deriving a package
// name from a local archive's file name.
var archiveSuffixes = []string{".tar.gz", ".tar.zst", ".tar.zv", ".tgz", ".tar", ".zv"}

// ValidateName checks that name is safe to splice into a URL and a
// path: non-empty, at most MaxNameLength bytes, drawn from
// [A-Za-z0-9._+-], not starting with '.' or '-', and without "..".
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty name: %w", pkgerror.ErrInvalidName)
	case len(name) > MaxNameLength:
		return fmt.Errorf("name is %d bytes, limit %d: %w", len(name), MaxNameLength, pkgerror.ErrInvalidName)
	case name[0] == '.' || name[0] == '-':
		return fmt.Errorf("%q starts with %q: %w", name, name[0], pkgerror.ErrInvalidName)
	case strings.Contains(name, ".."):
		return fmt.Errorf("%q contains \"..\": %w", name, pkgerror.ErrInvalidName)
	}
	for index := 0; index < len(name); index++ {
		if !nameByte(name[index]) {
			return fmt.Errorf("%q has disallowed byte %q at offset %d: %w", name, name[index], index, pkgerror.ErrInvalidName)
		}
	}
	return nil
}

func nameByte(b byte) bool {
	return b >= 'a' && b <= 'z' ||
		b >= 'A' && b <= 'Z' ||
		b >= '0' && b <= '9' ||
		b == '.' || b == '_' || b == '+' || b == '-'
}

// NameFromArchive derives a package name from a local archive path by
// stripping the directory and a known archive suffix.
func NameFromArchive(path string) (string, error) {
	base := filepath.Base(path)
	for _, suffix := range archiveSuffixes {
		if trimmed, ok := strings.CutSuffix(base, suffix); ok {
			base = trimmed
			break
		}
	}
	if err := ValidateName(base); err != nil {
		return "", fmt.Errorf("deriving package name from %s: %w", path, err)
	}
	return base, nil
}
