// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ExitCoder is implemented by errors that carry their own exit code.
// Such errors have already been reported, so [Report] prints nothing
// for them.
type ExitCoder interface {
	ExitCode() int
}

// Hinter is implemented by errors that carry a follow-up line for the
// user, such as where to find usage help.
type Hinter interface {
	Hint() string
}

// Report writes "error: err" to w unless err is an [ExitCoder], and
// returns the exit code for err: 0 for nil, the carried code for an
// ExitCoder, 1 otherwise. A non-empty [Hinter] hint follows the error
// after a blank line.
func Report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	var coder ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	fmt.Fprintf(w, "error: %v\n", err)
	var hinter Hinter
	if errors.As(err, &hinter) {
		if hint := hinter.Hint(); hint != "" {
			fmt.Fprintf(w, "\n%s\n", hint)
		}
	}
	return 1
}

// Fatal reports err on stderr and exits with the code [Report]
// chooses. Use it in main() for errors from run().
func Fatal(err error) {
	os.Exit(Report(os.Stderr, err))
}
