// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warp-linux/sodium/lib/digest"
	"github.com/warp-linux/sodium/lib/pkgerror"
)

const (
	// DefaultEntrypoint is the install script expected at the root of
	// every package archive.
	DefaultEntrypoint = "sodium-install.sh"

	// DefaultShell interprets the entrypoint.
	DefaultShell = "/bin/sh"

	// DefaultTimeout bounds one install script run.
	DefaultTimeout = 30 * time.Minute
)

// workingDirectoryMu serializes every change of the process working
// directory made by this package.
var workingDirectoryMu sync.Mutex

// Config holds configuration for an Installer. The zero value is
// usable.
type Config struct {
	// Extractor unpacks staged archives. Defaults to TarExtractor.
	Extractor Extractor

	// Runner executes the install script. Defaults to ExecRunner.
	Runner Runner

	// Entrypoint is the script name at the extraction root. Defaults
	// to DefaultEntrypoint. It must be a plain file name.
	Entrypoint string

	// Shell is the interpreter the entrypoint is passed to. Defaults
	// to DefaultShell.
	Shell string

	// Timeout bounds the script run. Defaults to DefaultTimeout.
	Timeout time.Duration

	// RequireDigest refuses to install archives without a pinned
	// digest.
	RequireDigest bool

	// Stdout and Stderr receive the script's output. Default to the
	// process's own streams.
	Stdout io.Writer
	Stderr io.Writer

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Request describes one install.
type Request struct {
	// Package is the validated package name, used for logging and the
	// script environment.
	Package string

	// ArchivePath is the staged archive.
	ArchivePath string

	// WorkingDirectory is the session directory the archive is
	// extracted under. It is created if missing. Relative paths are
	// resolved against the working directory at the start of Install.
	WorkingDirectory string

	// ExpectedDigest pins the archive's content. The zero value means
	// no pin.
	ExpectedDigest digest.Digest

	// SessionID identifies the install in logs. Generated when empty.
	SessionID string
}

// Session describes a completed (or failed) install.
type Session struct {
	ID      string
	Package string

	// WorkingDirectoryBefore is the process working directory the
	// install restored after running the script.
	WorkingDirectoryBefore string

	// ExtractedRoot is the directory the archive was unpacked into and
	// the script ran in.
	ExtractedRoot string

	// ArchiveDigest is the digest of the staged archive: the pinned
	// algorithm when a pin was given, SHA-256 otherwise.
	ArchiveDigest digest.Digest

	// Verified is true when ArchiveDigest matched a pin.
	Verified bool

	// Duration covers the script run only.
	Duration time.Duration
}

// Installer extracts staged archives and runs their install scripts.
// It is safe for concurrent use; script runs are serialized.
type Installer struct {
	extractor     Extractor
	runner        Runner
	entrypoint    string
	shell         string
	timeout       time.Duration
	requireDigest bool
	stdout        io.Writer
	stderr        io.Writer
	logger        *slog.Logger
}

// New creates an Installer, filling defaults for unset Config fields.
func New(config Config) (*Installer, error) {
	installer := &Installer{
		extractor:     config.Extractor,
		runner:        config.Runner,
		entrypoint:    config.Entrypoint,
		shell:         config.Shell,
		timeout:       config.Timeout,
		requireDigest: config.RequireDigest,
		stdout:        config.Stdout,
		stderr:        config.Stderr,
		logger:        config.Logger,
	}
	if installer.logger == nil {
		installer.logger = slog.Default()
	}
	if installer.extractor == nil {
		installer.extractor = &TarExtractor{Logger: installer.logger}
	}
	if installer.runner == nil {
		installer.runner = ExecRunner{}
	}
	if installer.entrypoint == "" {
		installer.entrypoint = DefaultEntrypoint
	}
	if installer.entrypoint != filepath.Base(installer.entrypoint) || installer.entrypoint == "." || installer.entrypoint == ".." {
		return nil, fmt.Errorf("installer: entrypoint %q must be a plain file name", installer.entrypoint)
	}
	if installer.shell == "" {
		installer.shell = DefaultShell
	}
	if installer.timeout <= 0 {
		installer.timeout = DefaultTimeout
	}
	if installer.stdout == nil {
		installer.stdout = os.Stdout
	}
	if installer.stderr == nil {
		installer.stderr = os.Stderr
	}
	return installer, nil
}

// Install verifies, extracts and runs the package archive named by
// request. Errors match the pkgerror sentinels: ErrVerification,
// ErrExtraction, ErrMissingEntrypoint, ErrSubprocess (as
// *pkgerror.SubprocessError) and ErrTimeout.
func (i *Installer) Install(ctx context.Context, request Request) (Session, error) {
	session := Session{ID: request.SessionID, Package: request.Package}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	logger := i.logger.With("package", request.Package, "session", session.ID)

	var err error
	if request.WorkingDirectory, err = filepath.Abs(request.WorkingDirectory); err != nil {
		return session, fmt.Errorf("resolving working directory: %w: %w", pkgerror.ErrExtraction, err)
	}
	if request.ArchivePath, err = filepath.Abs(request.ArchivePath); err != nil {
		return session, fmt.Errorf("resolving archive path: %w: %w", pkgerror.ErrVerification, err)
	}

	sum, verified, err := i.verify(request, logger)
	if err != nil {
		return session, err
	}
	session.ArchiveDigest = sum
	session.Verified = verified

	if err := os.MkdirAll(request.WorkingDirectory, 0o755); err != nil {
		return session, fmt.Errorf("creating working directory %s: %w: %w", request.WorkingDirectory, pkgerror.ErrExtraction, err)
	}
	root, err := os.MkdirTemp(request.WorkingDirectory, "root-")
	if err != nil {
		return session, fmt.Errorf("creating extraction directory: %w: %w", pkgerror.ErrExtraction, err)
	}
	session.ExtractedRoot = root

	if err := i.extractor.Extract(ctx, request.ArchivePath, root); err != nil {
		if !errors.Is(err, pkgerror.ErrExtraction) {
			err = fmt.Errorf("%w: %w", pkgerror.ErrExtraction, err)
		}
		return session, fmt.Errorf("extracting %s: %w", request.ArchivePath, err)
	}
	logger.Debug("archive extracted", "root", root)

	if err := i.checkEntrypoint(root); err != nil {
		return session, err
	}

	runCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	started := time.Now()
	err = i.runScoped(runCtx, request, &session)
	session.Duration = time.Since(started)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			if removeErr := os.RemoveAll(root); removeErr != nil {
				logger.Warn("removing extraction directory after timeout", "root", root, "error", removeErr)
			}
			return session, fmt.Errorf("%s exceeded %v: %w", i.entrypoint, i.timeout, pkgerror.ErrTimeout)
		}
		return session, err
	}

	logger.Info("install script finished", "duration", session.Duration)
	return session, nil
}

// verify applies the digest gate. It always returns the archive's
// digest so the caller can record it.
func (i *Installer) verify(request Request, logger *slog.Logger) (digest.Digest, bool, error) {
	algorithm := digest.SHA256
	if !request.ExpectedDigest.IsZero() {
		algorithm = request.ExpectedDigest.Algorithm
	} else if i.requireDigest {
		return digest.Digest{}, false, fmt.Errorf("no pinned digest for %q and digests are required: %w", request.Package, pkgerror.ErrVerification)
	}

	sum, err := digest.File(algorithm, request.ArchivePath)
	if err != nil {
		return digest.Digest{}, false, fmt.Errorf("hashing staged archive: %w: %w", pkgerror.ErrVerification, err)
	}

	if request.ExpectedDigest.IsZero() {
		logger.Info("installing without a pinned digest (trust on first use)", "digest", sum.String())
		return sum, false, nil
	}
	if !sum.Equal(request.ExpectedDigest) {
		return sum, false, fmt.Errorf("archive digest %s does not match pinned %s: %w", sum, request.ExpectedDigest, pkgerror.ErrVerification)
	}
	logger.Debug("archive digest verified", "digest", sum.String())
	return sum, true, nil
}

func (i *Installer) checkEntrypoint(root string) error {
	info, err := os.Lstat(filepath.Join(root, i.entrypoint))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s not found at archive root: %w", i.entrypoint, pkgerror.ErrMissingEntrypoint)
		}
		return fmt.Errorf("checking %s: %w: %w", i.entrypoint, pkgerror.ErrMissingEntrypoint, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s at archive root is not a regular file: %w", i.entrypoint, pkgerror.ErrMissingEntrypoint)
	}
	return nil
}

// runScoped changes into the extraction root, runs the script, and
// restores the previous working directory, all under
// workingDirectoryMu.
func (i *Installer) runScoped(ctx context.Context, request Request, session *Session) (err error) {
	workingDirectoryMu.Lock()
	defer workingDirectoryMu.Unlock()

	before, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("reading working directory: %w", err)
	}
	session.WorkingDirectoryBefore = before

	if err := os.Chdir(session.ExtractedRoot); err != nil {
		return fmt.Errorf("entering %s: %w", session.ExtractedRoot, err)
	}
	defer func() {
		if restoreErr := os.Chdir(before); restoreErr != nil {
			err = errors.Join(err, fmt.Errorf("restoring working directory %s: %w", before, restoreErr))
		}
	}()

	return i.runner.Run(ctx, Command{
		Dir:  session.ExtractedRoot,
		Args: []string{i.shell, i.entrypoint},
		Env: append(os.Environ(),
			"SODIUM_PACKAGE="+request.Package,
			"SODIUM_SESSION="+session.ID,
			"SODIUM_ROOT="+session.ExtractedRoot,
		),
		Stdout: i.stdout,
		Stderr: i.stderr,
	})
}
