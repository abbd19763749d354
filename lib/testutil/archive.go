// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Entry describes one member of a fixture archive. A Name ending in
// "/" is a directory. Linkname, when set, makes the entry a symlink,
// or a hard link when Hardlink is also set.
type Entry struct {
	Name     string
	Body     string
	Mode     int64
	Linkname string
	Hardlink bool
}

// TarArchive returns an uncompressed tar stream containing entries in
// order.
func TarArchive(t TB, entries ...Entry) []byte {
	t.Helper()

	var buffer bytes.Buffer
	writer := tar.NewWriter(&buffer)
	for _, entry := range entries {
		header := &tar.Header{Name: entry.Name, Mode: entry.Mode}
		switch {
		case entry.Linkname != "" && entry.Hardlink:
			header.Typeflag = tar.TypeLink
			header.Linkname = entry.Linkname
		case entry.Linkname != "":
			header.Typeflag = tar.TypeSymlink
			header.Linkname = entry.Linkname
		case len(entry.Name) > 0 && entry.Name[len(entry.Name)-1] == '/':
			header.Typeflag = tar.TypeDir
		default:
			header.Typeflag = tar.TypeReg
			header.Size = int64(len(entry.Body))
		}
		if header.Mode == 0 {
			header.Mode = 0o644
			if header.Typeflag == tar.TypeDir {
				header.Mode = 0o755
			}
		}
		if err := writer.WriteHeader(header); err != nil {
			t.Fatalf("writing tar header %s: %v", entry.Name, err)
		}
		if header.Typeflag == tar.TypeReg {
			if _, err := writer.Write([]byte(entry.Body)); err != nil {
				t.Fatalf("writing tar body %s: %v", entry.Name, err)
			}
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("closing tar writer: %v", err)
	}
	return buffer.Bytes()
}

// GzipArchive returns entries as a gzip-compressed tar stream.
func GzipArchive(t TB, entries ...Entry) []byte {
	t.Helper()

	var buffer bytes.Buffer
	writer := gzip.NewWriter(&buffer)
	if _, err := writer.Write(TarArchive(t, entries...)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buffer.Bytes()
}

// ZstdArchive returns entries as a zstd-compressed tar stream.
func ZstdArchive(t TB, entries ...Entry) []byte {
	t.Helper()

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		t.Fatalf("creating zstd encoder: %v", err)
	}
	defer encoder.Close()
	return encoder.EncodeAll(TarArchive(t, entries...), nil)
}

// InstallScript returns a sodium-install.sh entry whose body is the
// given shell fragment.
func InstallScript(body string) Entry {
	return Entry{Name: "sodium-install.sh", Body: "#!/bin/sh\nset -e\n" + body + "\n", Mode: 0o755}
}

// InstallablePackage returns a gzip tar archive whose install script
// writes the extraction directory's path into markerPath.
func InstallablePackage(t TB, markerPath string) []byte {
	t.Helper()
	return GzipArchive(t,
		Entry{Name: "payload/"},
		Entry{Name: "payload/README", Body: "fixture package\n"},
		InstallScript("pwd > '"+markerPath+"'"),
	)
}

// WriteFile writes data to name under directory and returns the full
// path.
func WriteFile(t TB, directory, name string, data []byte) string {
	t.Helper()

	path := filepath.Join(directory, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}
