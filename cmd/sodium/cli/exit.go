// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a nonzero exit without an extra error message:
// the command has already reported the problem (for example a batch
// sync that printed a per-package summary).
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code.
func (e *ExitError) ExitCode() int {
	return e.Code
}
