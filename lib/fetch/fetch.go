// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/warp-linux/sodium/lib/clock"
	"github.com/warp-linux/sodium/lib/netutil"
	"github.com/warp-linux/sodium/lib/pkgerror"
	"github.com/warp-linux/sodium/lib/version"
)

const (
	// DefaultTimeout bounds a whole fetch, retries included.
	DefaultTimeout = 10 * time.Minute

	// DefaultInitialBackoff is the wait before the first retry.
	DefaultInitialBackoff = 500 * time.Millisecond

	// DefaultMaxBackoff caps the exponential backoff.
	DefaultMaxBackoff = 30 * time.Second
)

// Config holds configuration for a Fetcher. The zero value is usable.
type Config struct {
	// HTTPClient performs remote GETs. Defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Timeout bounds each Fetch call. Defaults to DefaultTimeout.
	Timeout time.Duration

	// Retries is the number of additional attempts after a transfer
	// failure. Zero disables retrying.
	Retries int

	// InitialBackoff and MaxBackoff shape the delay between attempts:
	// the delay doubles after every failure, up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// UserAgent is sent on remote requests. Defaults to
	// "sodium/<version>".
	UserAgent string

	// Clock times backoff waits and measures durations. Defaults to
	// clock.Real().
	Clock clock.Clock

	// Logger is used for structured logging. Defaults to slog.Default().
	Logger *slog.Logger
}

// Result reports one completed fetch.
type Result struct {
	// BytesWritten is the size of the staged file.
	BytesWritten int64

	// Attempts counts transfer attempts, including the successful one.
	Attempts int

	// Duration is the wall time from the start of the fetch to the
	// end of the last attempt.
	Duration time.Duration

	Source Source
}

// Fetcher retrieves sources into staging files. It is safe for
// concurrent use; concurrent fetches must use distinct destinations.
type Fetcher struct {
	httpClient     *http.Client
	timeout        time.Duration
	retries        int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	userAgent      string
	clock          clock.Clock
	logger         *slog.Logger
}

// New creates a Fetcher, filling defaults for unset Config fields.
func New(config Config) *Fetcher {
	fetcher := &Fetcher{
		httpClient:     config.HTTPClient,
		timeout:        config.Timeout,
		retries:        max(config.Retries, 0),
		initialBackoff: config.InitialBackoff,
		maxBackoff:     config.MaxBackoff,
		userAgent:      config.UserAgent,
		clock:          config.Clock,
		logger:         config.Logger,
	}
	if fetcher.httpClient == nil {
		fetcher.httpClient = http.DefaultClient
	}
	if fetcher.timeout <= 0 {
		fetcher.timeout = DefaultTimeout
	}
	if fetcher.initialBackoff <= 0 {
		fetcher.initialBackoff = DefaultInitialBackoff
	}
	if fetcher.maxBackoff <= 0 {
		fetcher.maxBackoff = DefaultMaxBackoff
	}
	if fetcher.maxBackoff < fetcher.initialBackoff {
		fetcher.maxBackoff = fetcher.initialBackoff
	}
	if fetcher.userAgent == "" {
		fetcher.userAgent = "sodium/" + version.Short()
	}
	if fetcher.clock == nil {
		fetcher.clock = clock.Real()
	}
	if fetcher.logger == nil {
		fetcher.logger = slog.Default()
	}
	return fetcher
}

// Fetch copies source into destination.
//
// With overwrite false an existing destination fails with
// pkgerror.ErrAlreadyExists before any network call. A missing local
// source fails with pkgerror.ErrNotFound. Network and disk failures
// wrap pkgerror.ErrTransfer and leave the partial file behind.
// Exceeding the configured timeout wraps pkgerror.ErrTimeout.
func (f *Fetcher) Fetch(ctx context.Context, source Source, destination string, overwrite bool) (Result, error) {
	result := Result{Source: source}
	start := f.clock.Now()

	if source.Kind == Local {
		if err := checkLocalSource(source.Location); err != nil {
			return result, err
		}
	}

	file, err := openDestination(destination, overwrite)
	if err != nil {
		return result, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	logger := f.logger.With("source", source.String(), "destination", destination)
	for {
		result.Attempts++
		written, attemptErr := f.attempt(ctx, source, file)
		result.BytesWritten = written
		result.Duration = f.clock.Now().Sub(start)
		if attemptErr == nil {
			break
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			file.Close()
			return result, f.contextError(source, ctxErr, attemptErr)
		}
		if !errors.Is(attemptErr, pkgerror.ErrTransfer) || result.Attempts > f.retries {
			file.Close()
			return result, attemptErr
		}

		delay := f.backoff(result.Attempts)
		logger.Warn("transfer failed, retrying",
			"attempt", result.Attempts,
			"delay", delay,
			"error", attemptErr,
		)
		select {
		case <-f.clock.After(delay):
		case <-ctx.Done():
			file.Close()
			return result, f.contextError(source, ctx.Err(), attemptErr)
		}

		if err := rewind(file); err != nil {
			file.Close()
			return result, fmt.Errorf("resetting %s for retry: %w: %w", destination, pkgerror.ErrTransfer, err)
		}
	}

	if err := file.Close(); err != nil {
		return result, fmt.Errorf("closing %s: %w: %w", destination, pkgerror.ErrTransfer, err)
	}

	logger.Debug("fetch complete",
		"bytes", result.BytesWritten,
		"attempts", result.Attempts,
		"duration", result.Duration,
	)
	return result, nil
}

// attempt performs one transfer into file, which is positioned at
// offset zero and empty.
func (f *Fetcher) attempt(ctx context.Context, source Source, file *os.File) (int64, error) {
	switch source.Kind {
	case Remote:
		return f.download(ctx, source.Location, file)
	case Local:
		return copyLocal(ctx, source.Location, file)
	default:
		return 0, fmt.Errorf("fetch: unknown source kind %v", source.Kind)
	}
}

func (f *Fetcher) download(ctx context.Context, url string, file *os.File) (int64, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("fetch: creating request for %q: %w", url, err)
	}
	request.Header.Set("User-Agent", f.userAgent)

	response, err := f.httpClient.Do(request)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w: %w", url, pkgerror.ErrTransfer, err)
	}
	defer response.Body.Close()

	if !netutil.IsSuccess(response.StatusCode) {
		detail := netutil.ErrorBody(response.Body)
		if detail != "" {
			detail = ": " + detail
		}
		return 0, fmt.Errorf("GET %s: %s%s: %w", url, netutil.StatusText(response.StatusCode), detail, pkgerror.ErrTransfer)
	}

	written, err := io.Copy(file, response.Body)
	if err != nil {
		return written, fmt.Errorf("GET %s: after %d bytes: %w: %w", url, written, pkgerror.ErrTransfer, err)
	}
	return written, nil
}

func copyLocal(ctx context.Context, path string, file *os.File) (int64, error) {
	source, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%s: %w", path, pkgerror.ErrNotFound)
		}
		return 0, fmt.Errorf("opening %s: %w: %w", path, pkgerror.ErrTransfer, err)
	}
	defer source.Close()

	written, err := io.Copy(file, &contextReader{ctx: ctx, reader: source})
	if err != nil {
		return written, fmt.Errorf("copying %s: after %d bytes: %w: %w", path, written, pkgerror.ErrTransfer, err)
	}
	return written, nil
}

// checkLocalSource requires path to name an existing regular file.
func checkLocalSource(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", path, pkgerror.ErrNotFound)
		}
		return fmt.Errorf("stat %s: %w: %w", path, pkgerror.ErrTransfer, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file: %w", path, pkgerror.ErrNotFound)
	}
	return nil
}

// openDestination creates the staging file. Without overwrite the
// create is exclusive, so a collision is detected atomically and
// before anything is written.
func openDestination(path string, overwrite bool) (*os.File, error) {
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%s: %w", path, pkgerror.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("creating %s: %w: %w", path, pkgerror.ErrTransfer, err)
	}
	return file, nil
}

func rewind(file *os.File) error {
	if err := file.Truncate(0); err != nil {
		return err
	}
	_, err := file.Seek(0, io.SeekStart)
	return err
}

// backoff returns the delay after the given failed attempt (1-based).
func (f *Fetcher) backoff(attempt int) time.Duration {
	delay := f.initialBackoff
	for range attempt - 1 {
		delay *= 2
		if delay >= f.maxBackoff {
			return f.maxBackoff
		}
	}
	return delay
}

// contextError maps the fetch context ending into the taxonomy. Only
// the deadline is a timeout; cancellation by the caller passes
// through as context.Canceled.
func (f *Fetcher) contextError(source Source, ctxErr, cause error) error {
	if errors.Is(ctxErr, context.DeadlineExceeded) {
		return fmt.Errorf("fetching %s: exceeded %v: %w (last error: %v)", source.Location, f.timeout, pkgerror.ErrTimeout, cause)
	}
	return fmt.Errorf("fetching %s: %w", source.Location, ctxErr)
}

// contextReader stops a local copy once its context ends.
type contextReader struct {
	ctx    context.Context
	reader io.Reader
}

func (r *contextReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.reader.Read(p)
}
