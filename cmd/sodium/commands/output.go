// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/warp-linux/sodium/lib/pkgerror"
)

// stdioPath names standard input or output in place of a file.
const stdioPath = "-"

// openInput opens path for reading, or returns stdin for "-".
func openInput(path string, stdin io.Reader) (io.ReadCloser, error) {
	if path == stdioPath {
		return io.NopCloser(stdin), nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, pkgerror.ErrNotFound)
		}
		return nil, err
	}
	return file, nil
}

// writeOutput streams produce into a temporary file next to path and
// renames it into place once produce and the file close succeed. An
// existing path is an error unless force is set. Nothing is left at
// path on failure.
func writeOutput(path string, force bool, produce func(io.Writer) error) (err error) {
	if !force {
		if _, statErr := os.Lstat(path); statErr == nil {
			return fmt.Errorf("%s: %w (use --force to overwrite)", path, pkgerror.ErrAlreadyExists)
		} else if !errors.Is(statErr, fs.ErrNotExist) {
			return statErr
		}
	}

	temporary, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating output for %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			temporary.Close()
			os.Remove(temporary.Name())
		}
	}()

	if err := produce(temporary); err != nil {
		return err
	}
	if err := temporary.Chmod(0o644); err != nil {
		return err
	}
	if err := temporary.Close(); err != nil {
		return err
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return fmt.Errorf("moving output into place at %s: %w", path, err)
	}
	return nil
}
