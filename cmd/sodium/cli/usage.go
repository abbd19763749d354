// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// UsageError reports a malformed invocation. [Command.Execute] records
// which command rejected the arguments so the error can point at that
// command's help.
type UsageError struct {
	Message string

	// Command is the full command path, e.g. "sodium sync". Set by
	// Execute when empty.
	Command string
}

// Usagef returns a [UsageError] with a formatted message.
func Usagef(format string, args ...any) error {
	return &UsageError{Message: fmt.Sprintf(format, args...)}
}

func (e *UsageError) Error() string {
	return e.Message
}

// Hint returns the line pointing at the command's help.
func (e *UsageError) Hint() string {
	if e.Command == "" {
		return ""
	}
	return fmt.Sprintf("Run '%s --help' for usage.", e.Command)
}
