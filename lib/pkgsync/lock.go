// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package pkgsync

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/warp-linux/sodium/lib/pkgerror"
)

// lockTable grants per-package exclusivity within the process and,
// through flock, across processes sharing a state directory.
type lockTable struct {
	directory string

	mu   sync.Mutex
	held map[string]struct{}
}

func newLockTable(directory string) (*lockTable, error) {
	if err := os.MkdirAll(directory, 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory %s: %w", directory, err)
	}
	return &lockTable{directory: directory, held: make(map[string]struct{})}, nil
}

// packageLock is a held lock. Release is idempotent.
type packageLock struct {
	table *lockTable
	name  string
	file  *os.File
	once  sync.Once
}

// tryAcquire takes the lock for name without waiting. Contention
// returns an error matching pkgerror.ErrLocked.
func (t *lockTable) tryAcquire(name string) (*packageLock, error) {
	t.mu.Lock()
	if _, busy := t.held[name]; busy {
		t.mu.Unlock()
		return nil, fmt.Errorf("%s is being synced by this process: %w", name, pkgerror.ErrLocked)
	}
	t.held[name] = struct{}{}
	t.mu.Unlock()

	file, err := t.lockFile(name)
	if err != nil {
		t.forget(name)
		return nil, err
	}
	return &packageLock{table: t, name: name, file: file}, nil
}

func (t *lockTable) lockFile(name string) (*os.File, error) {
	path := filepath.Join(t.directory, name+".lock")
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file %s: %w", path, err)
	}
	if err := unix.Flock(int(file.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		file.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s is being synced by another process (%s): %w", name, path, pkgerror.ErrLocked)
		}
		return nil, fmt.Errorf("locking %s: %w", path, err)
	}
	return file, nil
}

func (t *lockTable) forget(name string) {
	t.mu.Lock()
	delete(t.held, name)
	t.mu.Unlock()
}

// release drops the flock and the in-process entry. The lock file
// itself stays: removing it would let a waiter lock an unlinked inode.
func (l *packageLock) release() {
	l.once.Do(func() {
		unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
		l.file.Close()
		l.table.forget(l.name)
	})
}
