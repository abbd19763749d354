// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package installdb records which packages have been installed. Each
// successful sync writes one CBOR record per package:
//
//	<root>/<name>.cbor
//
// Records are replaced atomically (write to a temporary file, then
// rename) so readers never observe a partial record. A later install
// of the same package overwrites the earlier record.
package installdb

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/warp-linux/sodium/lib/codec"
	"github.com/warp-linux/sodium/lib/digest"
)

const recordSuffix = ".cbor"

// Record describes one installed package.
type Record struct {
	Name         string        `cbor:"name"`
	Source       string        `cbor:"source"`
	Digest       digest.Digest `cbor:"digest"`
	Verified     bool          `cbor:"verified"`
	ArchiveBytes int64         `cbor:"archive_bytes"`
	InstalledAt  time.Time     `cbor:"installed_at"`
	SessionID    string        `cbor:"session_id"`
}

// Store persists Records under a directory. Reads are safe
// concurrently with writes; concurrent writes for the same package are
// prevented by the caller's package lock.
type Store struct {
	root string
}

// Open returns a Store rooted at root, creating the directory.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating install database %s: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory the store writes to.
func (s *Store) Root() string { return s.root }

// Put writes record, replacing any earlier record for the same name.
func (s *Store) Put(record Record) error {
	if record.Name == "" || strings.ContainsAny(record.Name, `/\`) {
		return fmt.Errorf("installdb: invalid record name %q", record.Name)
	}
	data, err := codec.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding install record for %s: %w", record.Name, err)
	}

	temporary, err := os.CreateTemp(s.root, ".record-*")
	if err != nil {
		return fmt.Errorf("creating temporary record: %w", err)
	}
	temporaryPath := temporary.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(temporaryPath)
		}
	}()

	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("writing install record: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("closing install record: %w", err)
	}
	if err := os.Rename(temporaryPath, s.path(record.Name)); err != nil {
		return fmt.Errorf("committing install record for %s: %w", record.Name, err)
	}
	committed = true
	return nil
}

// Get loads the record for name. The error wraps fs.ErrNotExist when
// the package was never installed.
func (s *Store) Get(name string) (Record, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return Record{}, fmt.Errorf("reading install record for %s: %w", name, err)
	}
	var record Record
	if err := codec.Unmarshal(data, &record); err != nil {
		return Record{}, fmt.Errorf("decoding install record for %s: %w", name, err)
	}
	return record, nil
}

// Remove deletes the record for name. Removing an absent record is
// not an error.
func (s *Store) Remove(name string) error {
	if err := os.Remove(s.path(name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing install record for %s: %w", name, err)
	}
	return nil
}

// List returns every record sorted by name. Undecodable records are
// reported in the joined error while the rest are still returned.
func (s *Store) List() ([]Record, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing install database: %w", err)
	}

	var records []Record
	var errs []error
	for _, entry := range entries {
		name, ok := strings.CutSuffix(entry.Name(), recordSuffix)
		if !ok || entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		record, err := s.Get(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, errors.Join(errs...)
}

func (s *Store) path(name string) string {
	return filepath.Join(s.root, name+recordSuffix)
}
