// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sys/unix"

	"github.com/warp-linux/sodium/lib/blockcodec"
	"github.com/warp-linux/sodium/lib/pkgerror"
)

// Extractor unpacks an archive file into an existing, empty directory.
type Extractor interface {
	Extract(ctx context.Context, archivePath, destination string) error
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// maxCompressionLayers bounds nested framing, e.g. a ZV container
// wrapping a gzip stream.
const maxCompressionLayers = 3

// TarExtractor unpacks tar streams, detecting gzip, zstd and ZV
// container framing by magic bytes. Regular files, directories,
// symlinks and hard links are created; other entry types are skipped.
// Any entry, or link target, that resolves outside the destination
// fails the extraction.
type TarExtractor struct {
	// Logger receives skipped-entry notices. Defaults to slog.Default().
	Logger *slog.Logger
}

// Extract implements Extractor.
func (e *TarExtractor) Extract(ctx context.Context, archivePath, destination string) error {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %w", pkgerror.ErrExtraction, err)
	}
	defer file.Close()

	stream, closeStream, err := unwrap(file)
	if err != nil {
		return fmt.Errorf("%w: %w", pkgerror.ErrExtraction, err)
	}
	defer closeStream()

	root, err := filepath.Abs(destination)
	if err != nil {
		return fmt.Errorf("%w: %w", pkgerror.ErrExtraction, err)
	}

	reader := tar.NewReader(stream)
	entries := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		header, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: reading tar entry %d: %w", pkgerror.ErrExtraction, entries, err)
		}
		entries++
		if err := extractEntry(reader, header, root, logger); err != nil {
			return fmt.Errorf("%w: %s: %w", pkgerror.ErrExtraction, header.Name, err)
		}
	}
	if entries == 0 {
		return fmt.Errorf("%w: archive contains no entries", pkgerror.ErrExtraction)
	}
	return nil
}

// unwrap peels compression layers off r until what remains is not a
// recognised compressed format, which is then read as tar.
func unwrap(r io.Reader) (io.Reader, func(), error) {
	var closers []func()
	closeAll := func() {
		for index := len(closers) - 1; index >= 0; index-- {
			closers[index]()
		}
	}

	current := r
	for range maxCompressionLayers {
		buffered := bufio.NewReader(current)
		prefix, _ := buffered.Peek(8)
		switch {
		case bytes.HasPrefix(prefix, gzipMagic):
			gzipReader, err := gzip.NewReader(buffered)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("opening gzip stream: %w", err)
			}
			closers = append(closers, func() { gzipReader.Close() })
			current = gzipReader
		case bytes.HasPrefix(prefix, zstdMagic):
			zstdReader, err := zstd.NewReader(buffered)
			if err != nil {
				closeAll()
				return nil, nil, fmt.Errorf("opening zstd stream: %w", err)
			}
			closers = append(closers, zstdReader.Close)
			current = zstdReader
		case blockcodec.IsContainer(prefix):
			current = blockcodec.NewReader(buffered)
		default:
			return buffered, closeAll, nil
		}
	}
	closeAll()
	return nil, nil, fmt.Errorf("more than %d nested compression layers", maxCompressionLayers)
}

func extractEntry(reader io.Reader, header *tar.Header, root string, logger *slog.Logger) error {
	name := filepath.FromSlash(header.Name)
	if filepath.IsAbs(name) {
		return errors.New("absolute path in archive")
	}
	target := filepath.Join(root, name)
	if !isWithin(target, root) {
		return errors.New("path escapes the extraction root")
	}
	if err := refuseSymlinkComponents(root, target); err != nil {
		return err
	}
	mode := os.FileMode(header.Mode).Perm()

	switch header.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, mode|0o700)

	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|unix.O_NOFOLLOW, mode|0o600)
		if err != nil {
			return err
		}
		if _, err := io.Copy(file, reader); err != nil {
			file.Close()
			return err
		}
		return file.Close()

	case tar.TypeSymlink:
		if filepath.IsAbs(header.Linkname) {
			return fmt.Errorf("absolute symlink target %q", header.Linkname)
		}
		resolved := filepath.Join(filepath.Dir(target), filepath.FromSlash(header.Linkname))
		if !isWithin(resolved, root) {
			return fmt.Errorf("symlink target %q escapes the extraction root", header.Linkname)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.Symlink(header.Linkname, target)

	case tar.TypeLink:
		linked := filepath.Join(root, filepath.FromSlash(header.Linkname))
		if !isWithin(linked, root) {
			return fmt.Errorf("hard link target %q escapes the extraction root", header.Linkname)
		}
		if err := refuseSymlinkComponents(root, linked); err != nil {
			return fmt.Errorf("hard link target %q: %w", header.Linkname, err)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.Link(linked, target)

	case tar.TypeXGlobalHeader:
		return nil

	default:
		logger.Debug("skipping unsupported archive entry", "name", header.Name, "type", string(header.Typeflag))
		return nil
	}
}

// refuseSymlinkComponents fails when any existing component of path
// below root is a symlink. Entries are only ever created through real
// directories, so a link extracted earlier cannot redirect a later
// write outside root however its target reads lexically.
func refuseSymlinkComponents(root, path string) error {
	relative, err := filepath.Rel(root, path)
	if err != nil || relative == "." {
		return err
	}
	current := root
	for _, component := range strings.Split(relative, string(os.PathSeparator)) {
		current = filepath.Join(current, component)
		info, err := os.Lstat(current)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			relativeLink, _ := filepath.Rel(root, current)
			return fmt.Errorf("path passes through symlink %s", filepath.ToSlash(relativeLink))
		}
	}
	return nil
}

// isWithin reports whether path is root or lies beneath it, compared
// lexically.
func isWithin(path, root string) bool {
	relative, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	return relative == "." || (relative != ".." && !strings.HasPrefix(relative, ".."+string(os.PathSeparator)))
}
