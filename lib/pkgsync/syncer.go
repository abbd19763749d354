// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package pkgsync

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/warp-linux/sodium/lib/clock"
	"github.com/warp-linux/sodium/lib/digest"
	"github.com/warp-linux/sodium/lib/fetch"
	"github.com/warp-linux/sodium/lib/installdb"
	"github.com/warp-linux/sodium/lib/installer"
	"github.com/warp-linux/sodium/lib/pkgerror"
)

// stagingFileName is the archive's name inside a session directory.
const stagingFileName = "package.archive"

// Fetcher is the part of *fetch.Fetcher the syncer uses.
type Fetcher interface {
	Fetch(ctx context.Context, source fetch.Source, destination string, overwrite bool) (fetch.Result, error)
}

// Installer is the part of *installer.Installer the syncer uses.
type Installer interface {
	Install(ctx context.Context, request installer.Request) (installer.Session, error)
}

// DigestLookup returns the pinned digest for a package, or the zero
// Digest when it has none.
type DigestLookup func(name string) (digest.Digest, error)

// Config holds configuration for a Syncer.
type Config struct {
	// Fetcher and Installer are required.
	Fetcher   Fetcher
	Installer Installer

	// BaseURL and Suffix build remote URLs: BaseURL + name + Suffix.
	BaseURL string
	Suffix  string

	// WorkDirectory holds session directories. Required.
	WorkDirectory string

	// StateDirectory holds lock files and, unless Records is set, the
	// install database. Required.
	StateDirectory string

	// Records receives install records. Defaults to an installdb
	// store under StateDirectory/installed.
	Records *installdb.Store

	// Digests supplies pinned digests. Nil means no pins.
	Digests DigestLookup

	// Parallelism bounds SyncAll. Defaults to 1.
	Parallelism int

	// KeepArtifacts retains session directories after success.
	KeepArtifacts bool

	// CleanupOnFailure removes session directories after failure.
	CleanupOnFailure bool

	// Clock stamps records and measures syncs. Defaults to clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Mode selects how a Request's Target is interpreted.
type Mode int

const (
	// Remote treats Target as a package name resolved against the
	// repository URL.
	Remote Mode = iota
	// Local treats Target as the path of an archive on disk.
	Local
)

func (m Mode) String() string {
	if m == Local {
		return "local"
	}
	return "remote"
}

// Request asks for one package to be synced.
type Request struct {
	Target string
	Mode   Mode

	// Force allows the fetch to overwrite an existing staging file.
	Force bool
}

// Package is a resolved request.
type Package struct {
	Name        string
	Source      fetch.Source
	StagingPath string
}

// Report describes one sync.
type Report struct {
	Request Request
	Package Package

	// SessionDirectory holds the staged archive and extracted tree.
	// Retained reports whether it still exists.
	SessionDirectory string
	Retained         bool

	Fetch   fetch.Result
	Install installer.Session

	Duration time.Duration

	// Err is set by SyncAll for failed syncs; Sync returns it instead.
	Err error
}

// Syncer runs syncs. It is safe for concurrent use.
type Syncer struct {
	fetcher          Fetcher
	installer        Installer
	baseURL          string
	suffix           string
	workDirectory    string
	records          *installdb.Store
	digests          DigestLookup
	parallelism      int
	keepArtifacts    bool
	cleanupOnFailure bool
	locks            *lockTable
	clock            clock.Clock
	logger           *slog.Logger
}

// New creates a Syncer and the directories it needs.
func New(config Config) (*Syncer, error) {
	if config.Fetcher == nil || config.Installer == nil {
		return nil, errors.New("pkgsync: Fetcher and Installer are required")
	}
	if config.WorkDirectory == "" || config.StateDirectory == "" {
		return nil, errors.New("pkgsync: WorkDirectory and StateDirectory are required")
	}
	// Paths must stay valid after the chdir into each extraction root.
	var err error
	if config.WorkDirectory, err = filepath.Abs(config.WorkDirectory); err != nil {
		return nil, fmt.Errorf("pkgsync: resolving work directory: %w", err)
	}
	if config.StateDirectory, err = filepath.Abs(config.StateDirectory); err != nil {
		return nil, fmt.Errorf("pkgsync: resolving state directory: %w", err)
	}
	if err := os.MkdirAll(config.WorkDirectory, 0o755); err != nil {
		return nil, fmt.Errorf("pkgsync: creating work directory: %w", err)
	}

	locks, err := newLockTable(filepath.Join(config.StateDirectory, "locks"))
	if err != nil {
		return nil, fmt.Errorf("pkgsync: %w", err)
	}

	records := config.Records
	if records == nil {
		records, err = installdb.Open(filepath.Join(config.StateDirectory, "installed"))
		if err != nil {
			return nil, fmt.Errorf("pkgsync: %w", err)
		}
	}

	syncer := &Syncer{
		fetcher:          config.Fetcher,
		installer:        config.Installer,
		baseURL:          config.BaseURL,
		suffix:           config.Suffix,
		workDirectory:    config.WorkDirectory,
		records:          records,
		digests:          config.Digests,
		parallelism:      max(config.Parallelism, 1),
		keepArtifacts:    config.KeepArtifacts,
		cleanupOnFailure: config.CleanupOnFailure,
		locks:            locks,
		clock:            config.Clock,
		logger:           config.Logger,
	}
	if syncer.digests == nil {
		syncer.digests = func(string) (digest.Digest, error) { return digest.Digest{}, nil }
	}
	if syncer.clock == nil {
		syncer.clock = clock.Real()
	}
	if syncer.logger == nil {
		syncer.logger = slog.Default()
	}
	return syncer, nil
}

// Resolve validates request and maps it to a Package without touching
// the network. The StagingPath is left empty.
func (s *Syncer) Resolve(request Request) (Package, error) {
	switch request.Mode {
	case Remote:
		if err := ValidateName(request.Target); err != nil {
			return Package{}, err
		}
		return Package{
			Name:   request.Target,
			Source: fetch.RemoteSource(s.baseURL + request.Target + s.suffix),
		}, nil

	case Local:
		absolute, err := filepath.Abs(request.Target)
		if err != nil {
			return Package{}, fmt.Errorf("resolving %s: %w", request.Target, err)
		}
		info, err := os.Stat(absolute)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return Package{}, fmt.Errorf("%s: %w", request.Target, pkgerror.ErrNotFound)
			}
			return Package{}, fmt.Errorf("%s: %w: %w", request.Target, pkgerror.ErrNotFound, err)
		}
		if !info.Mode().IsRegular() {
			return Package{}, fmt.Errorf("%s is not a regular file: %w", request.Target, pkgerror.ErrNotFound)
		}
		name, err := NameFromArchive(request.Target)
		if err != nil {
			return Package{}, err
		}
		return Package{Name: name, Source: fetch.LocalSource(absolute)}, nil

	default:
		return Package{}, fmt.Errorf("unknown sync mode %d", int(request.Mode))
	}
}

// Sync fetches, installs and records one package.
func (s *Syncer) Sync(ctx context.Context, request Request) (Report, error) {
	started := s.clock.Now()
	report, err := s.sync(ctx, request, started)
	report.Duration = s.clock.Now().Sub(started)
	return report, err
}

func (s *Syncer) sync(ctx context.Context, request Request, started time.Time) (Report, error) {
	report := Report{Request: request}

	pkg, err := s.Resolve(request)
	if err != nil {
		return report, &pkgerror.SyncError{Package: request.Target, Step: pkgerror.StepResolve, Err: err}
	}
	report.Package = pkg
	logger := s.logger.With("package", pkg.Name, "source", pkg.Source.String())

	lock, err := s.locks.tryAcquire(pkg.Name)
	if err != nil {
		return report, &pkgerror.SyncError{Package: pkg.Name, Step: pkgerror.StepLock, Err: err}
	}
	defer lock.release()

	pin, err := s.digests(pkg.Name)
	if err != nil {
		return report, &pkgerror.SyncError{Package: pkg.Name, Step: pkgerror.StepVerify, Err: fmt.Errorf("%w: %w", pkgerror.ErrVerification, err)}
	}

	sessionID := uuid.NewString()
	report.SessionDirectory = filepath.Join(s.workDirectory, pkg.Name+"-"+sessionID)
	if err := os.MkdirAll(report.SessionDirectory, 0o755); err != nil {
		return report, &pkgerror.SyncError{Package: pkg.Name, Step: pkgerror.StepFetch, Err: fmt.Errorf("creating session directory: %w: %w", pkgerror.ErrTransfer, err)}
	}
	pkg.StagingPath = filepath.Join(report.SessionDirectory, stagingFileName)
	report.Package = pkg
	report.Retained = true

	step, err := s.run(ctx, pkg, request, sessionID, pin, &report, logger)
	s.finishSession(&report, err, logger)
	if err != nil {
		logger.Error("sync failed", "step", string(step), "error", err, "session_directory", sessionDirectoryIfRetained(report))
		return report, &pkgerror.SyncError{Package: pkg.Name, Step: step, Err: err}
	}

	logger.Info("package installed",
		"bytes", report.Fetch.BytesWritten,
		"verified", report.Install.Verified,
		"duration", s.clock.Now().Sub(started),
	)
	return report, nil
}

// run performs fetch, install and record, returning the step that
// failed.
func (s *Syncer) run(ctx context.Context, pkg Package, request Request, sessionID string, pin digest.Digest, report *Report, logger *slog.Logger) (pkgerror.Step, error) {
	logger.Debug("fetching", "staging", pkg.StagingPath)
	result, err := s.fetcher.Fetch(ctx, pkg.Source, pkg.StagingPath, request.Force)
	report.Fetch = result
	if err != nil {
		return pkgerror.StepFetch, err
	}

	session, err := s.installer.Install(ctx, installer.Request{
		Package:          pkg.Name,
		ArchivePath:      pkg.StagingPath,
		WorkingDirectory: report.SessionDirectory,
		ExpectedDigest:   pin,
		SessionID:        sessionID,
	})
	report.Install = session
	if err != nil {
		return installStep(err), err
	}

	if err := s.records.Put(installdb.Record{
		Name:         pkg.Name,
		Source:       pkg.Source.String(),
		Digest:       session.ArchiveDigest,
		Verified:     session.Verified,
		ArchiveBytes: result.BytesWritten,
		InstalledAt:  s.clock.Now().UTC(),
		SessionID:    sessionID,
	}); err != nil {
		return pkgerror.StepRecord, err
	}
	return "", nil
}

// installStep attributes an installer error to the pipeline stage it
// came from.
func installStep(err error) pkgerror.Step {
	switch {
	case errors.Is(err, pkgerror.ErrVerification):
		return pkgerror.StepVerify
	case errors.Is(err, pkgerror.ErrExtraction), errors.Is(err, pkgerror.ErrMissingEntrypoint):
		return pkgerror.StepExtract
	default:
		return pkgerror.StepInstall
	}
}

// finishSession applies the retention policy to the session directory.
func (s *Syncer) finishSession(report *Report, err error, logger *slog.Logger) {
	remove := false
	switch {
	case err == nil:
		remove = !s.keepArtifacts
	case errors.Is(err, pkgerror.ErrTimeout):
		remove = true
	default:
		remove = s.cleanupOnFailure
	}
	if !remove {
		return
	}
	if removeErr := os.RemoveAll(report.SessionDirectory); removeErr != nil {
		logger.Warn("removing session directory", "path", report.SessionDirectory, "error", removeErr)
		return
	}
	report.Retained = false
}

func sessionDirectoryIfRetained(report Report) string {
	if report.Retained {
		return report.SessionDirectory
	}
	return ""
}

// SyncAll runs requests with at most Config.Parallelism in flight and
// returns one Report per request, in order. Failures are reported in
// Report.Err and do not stop the other syncs. The returned error joins
// every failure.
func (s *Syncer) SyncAll(ctx context.Context, requests []Request) ([]Report, error) {
	reports := make([]Report, len(requests))

	var group errgroup.Group
	group.SetLimit(s.parallelism)
	for index, request := range requests {
		group.Go(func() error {
			report, err := s.Sync(ctx, request)
			report.Err = err
			reports[index] = report
			return nil
		})
	}
	group.Wait()

	var errs []error
	for _, report := range reports {
		if report.Err != nil {
			errs = append(errs, report.Err)
		}
	}
	return reports, errors.Join(errs...)
}

// Get downloads rawURL to destination without installing it. An empty
// destination means the URL's last path element in the current
// directory.
func (s *Syncer) Get(ctx context.Context, rawURL, destination string, force bool) (fetch.Result, string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fetch.Result{}, "", &pkgerror.SyncError{Step: pkgerror.StepResolve, Err: fmt.Errorf("%q is not an http(s) URL: %w", rawURL, pkgerror.ErrInvalidName)}
	}
	if destination == "" {
		base := path.Base(parsed.Path)
		if base == "/" || base == "." || base == "" {
			return fetch.Result{}, "", &pkgerror.SyncError{Step: pkgerror.StepResolve, Err: fmt.Errorf("cannot derive a file name from %q; give a destination: %w", rawURL, pkgerror.ErrInvalidName)}
		}
		destination = base
	}

	result, err := s.fetcher.Fetch(ctx, fetch.RemoteSource(rawURL), destination, force)
	if err != nil {
		return result, destination, &pkgerror.SyncError{Step: pkgerror.StepFetch, Err: err}
	}
	s.logger.Info("downloaded", "url", rawURL, "destination", destination, "bytes", result.BytesWritten)
	return result, destination, nil
}

// Installed returns the install records, sorted by name.
func (s *Syncer) Installed() ([]installdb.Record, error) {
	return s.records.List()
}
