// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package pkgsync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/warp-linux/sodium/lib/digest"
	"github.com/warp-linux/sodium/lib/fetch"
	"github.com/warp-linux/sodium/lib/installer"
	"github.com/warp-linux/sodium/lib/pkgerror"
	"github.com/warp-linux/sodium/lib/testutil"
)

// repository serves archives at /<name>.tar.gz and counts requests.
type repository struct {
	server   *httptest.Server
	requests atomic.Int32

	mu       sync.Mutex
	archives map[string][]byte
}

func newRepository(t *testing.T) *repository {
	t.Helper()
	repo := &repository{archives: make(map[string][]byte)}
	repo.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		repo.requests.Add(1)
		name, ok := strings.CutSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".tar.gz")
		repo.mu.Lock()
		archive, found := repo.archives[name]
		repo.mu.Unlock()
		if !ok || !found {
			http.NotFound(w, r)
			return
		}
		w.Write(archive)
	}))
	t.Cleanup(repo.server.Close)
	return repo
}

func (r *repository) add(name string, archive []byte) {
	r.mu.Lock()
	r.archives[name] = archive
	r.mu.Unlock()
}

type options struct {
	installer        Installer
	digests          DigestLookup
	keepArtifacts    bool
	cleanupOnFailure bool
	parallelism      int
}

type fixture struct {
	repo   *repository
	syncer *Syncer
	work   string
	state  string
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T, opts options) *fixture {
	t.Helper()

	root := t.TempDir()
	f := &fixture{
		repo:  newRepository(t),
		work:  filepath.Join(root, "work"),
		state: filepath.Join(root, "state"),
	}

	install := opts.installer
	if install == nil {
		realInstaller, err := installer.New(installer.Config{
			Stdout: io.Discard,
			Stderr: io.Discard,
			Logger: quietLogger(),
		})
		if err != nil {
			t.Fatal(err)
		}
		install = realInstaller
	}

	syncer, err := New(Config{
		Fetcher:          fetch.New(fetch.Config{Logger: quietLogger()}),
		Installer:        install,
		BaseURL:          f.repo.server.URL + "/",
		Suffix:           ".tar.gz",
		WorkDirectory:    f.work,
		StateDirectory:   f.state,
		Digests:          opts.digests,
		Parallelism:      opts.parallelism,
		KeepArtifacts:    opts.keepArtifacts,
		CleanupOnFailure: opts.cleanupOnFailure,
		Logger:           quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	f.syncer = syncer
	return f
}

func (f *fixture) sessionDirectories(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.work)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func requireStep(t *testing.T, err error, step pkgerror.Step, sentinel error) {
	t.Helper()
	var syncError *pkgerror.SyncError
	if !errors.As(err, &syncError) {
		t.Fatalf("error = %v, want *pkgerror.SyncError", err)
	}
	if syncError.Step != step {
		t.Errorf("Step = %s, want %s (error: %v)", syncError.Step, step, err)
	}
	if !errors.Is(err, sentinel) {
		t.Errorf("error = %v, want %v", err, sentinel)
	}
}

// TestSyncRemoteEndToEnd observes the process working directory, so
// it does not run in parallel.
func TestSyncRemoteEndToEnd(t *testing.T) {
	f := newFixture(t, options{})
	marker := filepath.Join(t.TempDir(), "installed")
	f.repo.add("hello", testutil.InstallablePackage(t, marker))

	before, _ := os.Getwd()
	report, err := f.syncer.Sync(context.Background(), Request{Target: "hello", Mode: Remote})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if after, _ := os.Getwd(); after != before {
		t.Errorf("working directory changed to %s", after)
	}

	if _, err := os.Stat(marker); err != nil {
		t.Errorf("install script did not run: %v", err)
	}
	if report.Package.Source.Location != f.repo.server.URL+"/hello.tar.gz" {
		t.Errorf("Source = %v", report.Package.Source)
	}
	if report.Fetch.BytesWritten == 0 || report.Fetch.Attempts != 1 {
		t.Errorf("Fetch = %+v", report.Fetch)
	}
	if report.Retained {
		t.Error("session directory retained after success")
	}
	if sessions := f.sessionDirectories(t); len(sessions) != 0 {
		t.Errorf("work directory not cleaned: %v", sessions)
	}

	records, err := f.syncer.Installed()
	if err != nil {
		t.Fatalf("Installed: %v", err)
	}
	if len(records) != 1 || records[0].Name != "hello" || records[0].Digest.IsZero() {
		t.Fatalf("records = %+v", records)
	}
	if records[0].SessionID != report.Install.ID {
		t.Errorf("record session %q, install session %q", records[0].SessionID, report.Install.ID)
	}
}

func TestSyncInvalidNameMakesNoRequest(t *testing.T) {
	t.Parallel()

	f := newFixture(t, options{})
	for _, name := range []string{"", "../../etc", "a b", ".hidden", "x?y=z"} {
		_, err := f.syncer.Sync(context.Background(), Request{Target: name, Mode: Remote})
		requireStep(t, err, pkgerror.StepResolve, pkgerror.ErrInvalidName)
	}
	if got := f.repo.requests.Load(); got != 0 {
		t.Errorf("server saw %d requests for invalid names", got)
	}
	if sessions := f.sessionDirectories(t); len(sessions) != 0 {
		t.Errorf("session directories created: %v", sessions)
	}
}

func TestSyncRemoteMissingPackage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, options{})
	report, err := f.syncer.Sync(context.Background(), Request{Target: "absent", Mode: Remote})
	requireStep(t, err, pkgerror.StepFetch, pkgerror.ErrTransfer)
	if !report.Retained {
		t.Error("session directory removed after failure without cleanup_on_failure")
	}
	if _, statErr := os.Stat(report.SessionDirectory); statErr != nil {
		t.Errorf("session directory %s missing: %v", report.SessionDirectory, statErr)
	}
}

func TestSyncCleanupOnFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, options{cleanupOnFailure: true})
	f.repo.add("broken", testutil.GzipArchive(t, testutil.InstallScript("exit 3")))

	report, err := f.syncer.Sync(context.Background(), Request{Target: "broken", Mode: Remote})
	requireStep(t, err, pkgerror.StepInstall, pkgerror.ErrSubprocess)
	if report.Retained {
		t.Error("Retained after cleanup")
	}
	if sessions := f.sessionDirectories(t); len(sessions) != 0 {
		t.Errorf("work directory not cleaned: %v", sessions)
	}
	if records, _ := f.syncer.Installed(); len(records) != 0 {
		t.Errorf("failed install recorded: %+v", records)
	}
}

func TestSyncKeepArtifacts(t *testing.T) {
	t.Parallel()

	f := newFixture(t, options{keepArtifacts: true})
	f.repo.add("kept", testutil.GzipArchive(t, testutil.InstallScript("true")))

	report, err := f.syncer.Sync(context.Background(), Request{Target: "kept", Mode: Remote})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if !report.Retained {
		t.Error("Retained = false with KeepArtifacts")
	}
	if _, err := os.Stat(report.Package.StagingPath); err != nil {
		t.Errorf("staged archive missing: %v", err)
	}
	if filepath.Dir(report.Package.StagingPath) != report.SessionDirectory {
		t.Errorf("staging %s outside session %s", report.Package.StagingPath, report.SessionDirectory)
	}
	if !strings.HasPrefix(filepath.Base(report.SessionDirectory), "kept-") {
		t.Errorf("session directory %s not named after the package", report.SessionDirectory)
	}
}

func TestSyncStagingIsUniquePerInvocation(t *testing.T) {
	t.Parallel()

	f := newFixture(t, options{keepArtifacts: true})
	f.repo.add("twice", testutil.GzipArchive(t, testutil.InstallScript("true")))

	first, err := f.syncer.Sync(context.Background(), Request{Target: "twice", Mode: Remote})
	if err != nil {
		t.Fatal(err)
	}
	second, err := f.syncer.Sync(context.Background(), Request{Target: "twice", Mode: Remote})
	if err != nil {
		t.Fatalf("second Sync: %v", err)
	}
	if first.Package.StagingPath == second.Package.StagingPath {
		t.Error("two syncs shared a staging path")
	}
}

func TestSyncLocal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, options{})
	marker := filepath.Join(t.TempDir(), "marker")
	archive := testutil.WriteFile(t, t.TempDir(), "local-tool.tar.gz", testutil.InstallablePackage(t, marker))

	report, err := f.syncer.Sync(context.Background(), Request{Target: archive, Mode: Local})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if report.Package.Name != "local-tool" || report.Package.Source.Kind != fetch.Local {
		t.Errorf("Package = %+v", report.Package)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("install script did not run: %v", err)
	}
	if f.repo.requests.Load() != 0 {
		t.Error("local sync made a network request")
	}
}

// TestSyncRelativeDirectories changes the process working directory,
// so it cannot run in parallel.
func TestSyncRelativeDirectories(t *testing.T) {
	base := t.TempDir()
	t.Chdir(base)
	marker := filepath.Join(t.TempDir(), "installed")
	testutil.WriteFile(t, base, "relative-tool.tar.gz", testutil.InstallablePackage(t, marker))

	realInstaller, err := installer.New(installer.Config{Stdout: io.Discard, Stderr: io.Discard, Logger: quietLogger()})
	if err != nil {
		t.Fatal(err)
	}
	syncer, err := New(Config{
		Fetcher:        fetch.New(fetch.Config{Logger: quietLogger()}),
		Installer:      realInstaller,
		WorkDirectory:  "work",
		StateDirectory: "state",
		KeepArtifacts:  true,
		Logger:         quietLogger(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	report, err := syncer.Sync(context.Background(), Request{Target: "relative-tool.tar.gz", Mode: Local})
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Errorf("install script did not run: %v", err)
	}
	for _, path := range []string{report.SessionDirectory, report.Install.ExtractedRoot, report.Package.Source.Location} {
		if !filepath.IsAbs(path) {
			t.Errorf("%q is not absolute", path)
		}
	}
	if _, err := os.Stat(filepath.Join(base, "state", "installed", "relative-tool.cbor")); err != nil {
		t.Errorf("install record not written under the state directory: %v", err)
	}
}

func TestSyncLocalMissing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, options{})
	directory := t.TempDir()

	_, err := f.syncer.Sync(context.Background(), Request{Target: filepath.Join(directory, "absent.tar.gz"), Mode: Local})
	requireStep(t, err, pkgerror.StepResolve, pkgerror.ErrNotFound)

	_, err = f.syncer.Sync(context.Background(), Request{Target: directory, Mode: Local})
	requireStep(t, err, pkgerror.StepResolve, pkgerror.ErrNotFound)
}

func TestSyncPinnedDigest(t *testing.T) {
	t.Parallel()

	archive := testutil.GzipArchive(t, testutil.InstallScript("true"))
	good, _ := digest.Reader(digest.SHA256, bytes.NewReader(archive))
	bad, _ := digest.Reader(digest.SHA256, strings.NewReader("tampered"))
	pins := map[string]digest.Digest{"good": good, "bad": bad}

	f := newFixture(t, options{digests: func(name string) (digest.Digest, error) {
		return pins[name], nil
	}})
	f.repo.add("good", archive)
	f.repo.add("bad", archive)

	report, err := f.syncer.Sync(context.Background(), Request{Target: "good", Mode: Remote})
	if err != nil {
		t.Fatalf("Sync(good): %v", err)
	}
	if !report.Install.Verified {
		t.Error("pinned install not marked verified")
	}

	_, err = f.syncer.Sync(context.Background(), Request{Target: "bad", Mode: Remote})
	requireStep(t, err, pkgerror.StepVerify, pkgerror.ErrVerification)
}

func TestSyncMissingEntrypointStep(t *testing.T) {
	t.Parallel()

	f := newFixture(t, options{})
	f.repo.add("noscript", testutil.GzipArchive(t, testutil.Entry{Name: "README", Body: "x"}))

	_, err := f.syncer.Sync(context.Background(), Request{Target: "noscript", Mode: Remote})
	requireStep(t, err, pkgerror.StepExtract, pkgerror.ErrMissingEntrypoint)
}

// blockingInstaller holds every install until released.
type blockingInstaller struct {
	entered chan string
	release chan struct{}
}

func (b *blockingInstaller) Install(ctx context.Context, request installer.Request) (installer.Session, error) {
	b.entered <- request.Package
	<-b.release
	return installer.Session{ID: request.SessionID, Package: request.Package}, nil
}

func TestSyncConcurrentSamePackageIsLocked(t *testing.T) {
	t.Parallel()

	blocking := &blockingInstaller{entered: make(chan string, 1), release: make(chan struct{})}
	f := newFixture(t, options{installer: blocking})
	f.repo.add("busy", testutil.GzipArchive(t, testutil.InstallScript("true")))

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.syncer.Sync(context.Background(), Request{Target: "busy", Mode: Remote})
		firstDone <- err
	}()
	testutil.RequireReceive(t, blocking.entered, 10*time.Second, "first sync reaching install")

	_, err := f.syncer.Sync(context.Background(), Request{Target: "busy", Mode: Remote})
	requireStep(t, err, pkgerror.StepLock, pkgerror.ErrLocked)

	close(blocking.release)
	if err := testutil.RequireReceive(t, firstDone, 10*time.Second, "first sync finishing"); err != nil {
		t.Fatalf("first Sync: %v", err)
	}

	// The lock is released once the first sync completes.
	if _, err := f.syncer.Sync(context.Background(), Request{Target: "busy", Mode: Remote}); err != nil {
		t.Errorf("Sync after release: %v", err)
	}
	testutil.RequireReceive(t, blocking.entered, 10*time.Second, "third sync reaching install")
}

func TestSyncLockedByAnotherProcess(t *testing.T) {
	t.Parallel()

	f := newFixture(t, options{})
	f.repo.add("shared", testutil.GzipArchive(t, testutil.InstallScript("true")))

	// An independent open file description stands in for another
	// sodium process holding the lock.
	lockPath := filepath.Join(f.state, "locks", "shared.lock")
	holder, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		t.Fatal(err)
	}
	defer holder.Close()
	if err := unix.Flock(int(holder.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		t.Fatalf("Flock: %v", err)
	}

	_, err = f.syncer.Sync(context.Background(), Request{Target: "shared", Mode: Remote})
	requireStep(t, err, pkgerror.StepLock, pkgerror.ErrLocked)
	if f.repo.requests.Load() != 0 {
		t.Error("locked sync made a network request")
	}

	unix.Flock(int(holder.Fd()), unix.LOCK_UN)
	if _, err := f.syncer.Sync(context.Background(), Request{Target: "shared", Mode: Remote}); err != nil {
		t.Errorf("Sync after unlock: %v", err)
	}
}

func TestSyncAll(t *testing.T) {
	t.Parallel()

	f := newFixture(t, options{parallelism: 2})
	directory := t.TempDir()
	names := []string{"alpha", "beta", "gamma", "delta"}
	for _, name := range names {
		f.repo.add(name, testutil.GzipArchive(t, testutil.InstallScript("touch '"+filepath.Join(directory, name)+"'")))
	}

	requests := []Request{}
	for _, name := range names {
		requests = append(requests, Request{Target: name, Mode: Remote})
	}
	requests = append(requests, Request{Target: "../bad", Mode: Remote})

	reports, err := f.syncer.SyncAll(context.Background(), requests)
	if !errors.Is(err, pkgerror.ErrInvalidName) {
		t.Errorf("SyncAll error = %v, want the invalid name reported", err)
	}
	if len(reports) != len(requests) {
		t.Fatalf("got %d reports for %d requests", len(reports), len(requests))
	}
	for index, name := range names {
		if reports[index].Err != nil {
			t.Errorf("%s: %v", name, reports[index].Err)
		}
		if reports[index].Package.Name != name {
			t.Errorf("report %d is for %q, want %q", index, reports[index].Package.Name, name)
		}
		if _, statErr := os.Stat(filepath.Join(directory, name)); statErr != nil {
			t.Errorf("%s install script did not run", name)
		}
	}
	if reports[len(reports)-1].Err == nil {
		t.Error("invalid request reported success")
	}

	records, _ := f.syncer.Installed()
	if len(records) != len(names) {
		t.Errorf("%d records, want %d", len(records), len(names))
	}
}

func TestGet(t *testing.T) {
	t.Parallel()

	f := newFixture(t, options{})
	archive := []byte("raw download")
	f.repo.add("tool", archive)
	destination := filepath.Join(t.TempDir(), "tool.tar.gz")

	result, written, err := f.syncer.Get(context.Background(), f.repo.server.URL+"/tool.tar.gz", destination, false)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if written != destination || result.BytesWritten != int64(len(archive)) {
		t.Errorf("Get wrote %d bytes to %s", result.BytesWritten, written)
	}

	_, _, err = f.syncer.Get(context.Background(), f.repo.server.URL+"/tool.tar.gz", destination, false)
	requireStep(t, err, pkgerror.StepFetch, pkgerror.ErrAlreadyExists)

	if _, _, err := f.syncer.Get(context.Background(), f.repo.server.URL+"/tool.tar.gz", destination, true); err != nil {
		t.Errorf("Get with force: %v", err)
	}

	_, _, err = f.syncer.Get(context.Background(), "file:///etc/passwd", destination, true)
	requireStep(t, err, pkgerror.StepResolve, pkgerror.ErrInvalidName)

	if records, _ := f.syncer.Installed(); len(records) != 0 {
		t.Error("Get recorded an install")
	}
}
