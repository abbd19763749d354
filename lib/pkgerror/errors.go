// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package pkgerror

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidName rejects a package name before any URL or path is
	// built from it.
	ErrInvalidName = errors.New("invalid package name")

	// ErrNotFound reports a local source archive that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists reports a destination collision when overwrite
	// was not requested. Nothing has been written when it is returned.
	ErrAlreadyExists = errors.New("already exists")

	// ErrTransfer covers network and disk failures during a fetch.
	ErrTransfer = errors.New("transfer failed")

	// ErrFormat reports a malformed block header or truncated payload
	// in the ZV container format.
	ErrFormat = errors.New("malformed container")

	// ErrExtraction reports a staged archive that could not be unpacked.
	ErrExtraction = errors.New("extraction failed")

	// ErrMissingEntrypoint reports an extracted archive without the
	// install script at its root.
	ErrMissingEntrypoint = errors.New("missing install entrypoint")

	// ErrSubprocess reports an install script that exited nonzero.
	ErrSubprocess = errors.New("install script failed")

	// ErrTimeout reports a fetch or install that exceeded its deadline.
	ErrTimeout = errors.New("timed out")

	// ErrVerification reports a staged archive whose digest does not
	// match the pinned value, or a missing pin when pins are required.
	ErrVerification = errors.New("verification failed")

	// ErrLocked reports that another sync holds the package lock.
	ErrLocked = errors.New("package is locked by another sync")
)

// SubprocessError carries the exit status of a failed install script.
type SubprocessError struct {
	// ExitCode is the script's exit status. -1 when the process was
	// terminated by a signal.
	ExitCode int

	// Stderr is the tail of the script's standard error, trimmed.
	Stderr string
}

func (e *SubprocessError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: exit code %d: %s", ErrSubprocess, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s: exit code %d", ErrSubprocess, e.ExitCode)
}

// Is matches ErrSubprocess.
func (e *SubprocessError) Is(target error) bool {
	return target == ErrSubprocess
}

// Step names a pipeline stage in a SyncError.
type Step string

const (
	StepResolve Step = "resolve"
	StepLock    Step = "lock"
	StepFetch   Step = "fetch"
	StepVerify  Step = "verify"
	StepExtract Step = "extract"
	StepInstall Step = "install"
	StepRecord  Step = "record"
)

// SyncError is the error returned for a failed sync. It names the
// package and the stage that failed so the failure can be diagnosed
// without re-running in verbose mode.
type SyncError struct {
	Package string
	Step    Step
	Err     error
}

func (e *SyncError) Error() string {
	var builder strings.Builder
	builder.WriteString("sync")
	if e.Package != "" {
		fmt.Fprintf(&builder, " %q", e.Package)
	}
	fmt.Fprintf(&builder, " failed at %s: %v", e.Step, e.Err)
	return builder.String()
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// Category returns the taxonomy sentinel that err matches, or nil when
// err is not one of the pipeline categories. Used for log attributes
// and summary output.
func Category(err error) error {
	for _, sentinel := range categories {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return nil
}

// categories is ordered most specific first: a timeout during a
// transfer is reported as a timeout.
var categories = []error{
	ErrTimeout,
	ErrLocked,
	ErrInvalidName,
	ErrNotFound,
	ErrAlreadyExists,
	ErrVerification,
	ErrFormat,
	ErrMissingEntrypoint,
	ErrSubprocess,
	ErrExtraction,
	ErrTransfer,
}
