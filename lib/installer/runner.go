// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/warp-linux/sodium/lib/pkgerror"
)

// Command is one subprocess invocation. Args[0] is the program; no
// shell parses the list.
type Command struct {
	Dir    string
	Args   []string
	Env    []string
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes install scripts. Implementations return nil on exit
// status zero, a *pkgerror.SubprocessError for a nonzero status, and
// the context's error when ctx ends first.
type Runner interface {
	Run(ctx context.Context, command Command) error
}

// stderrTailSize bounds the stderr excerpt kept for error messages.
const stderrTailSize = 2 << 10

// ExecRunner runs commands with os/exec. The child gets its own
// process group, and cancellation kills the whole group so scripts
// that spawn children cannot outlive the timeout.
type ExecRunner struct {
	// WaitDelay bounds how long Run waits for output pipes to drain
	// after the process is killed. Defaults to five seconds.
	WaitDelay time.Duration
}

// Run implements Runner.
func (r ExecRunner) Run(ctx context.Context, command Command) error {
	if len(command.Args) == 0 {
		return errors.New("installer: empty command")
	}

	cmd := exec.CommandContext(ctx, command.Args[0], command.Args[1:]...)
	cmd.Dir = command.Dir
	cmd.Env = command.Env
	cmd.Stdout = command.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = io.Discard
	}

	tail := &tailBuffer{limit: stderrTailSize}
	if command.Stderr != nil {
		cmd.Stderr = io.MultiWriter(command.Stderr, tail)
	} else {
		cmd.Stderr = tail
	}

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = r.WaitDelay
	if cmd.WaitDelay <= 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var exitError *exec.ExitError
	if errors.As(err, &exitError) {
		return &pkgerror.SubprocessError{ExitCode: exitError.ExitCode(), Stderr: tail.String()}
	}
	var execError *exec.Error
	if errors.As(err, &execError) {
		return &pkgerror.SubprocessError{ExitCode: 127, Stderr: execError.Error()}
	}
	return fmt.Errorf("running %s: %w", command.Args[0], err)
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	data  []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data = append(b.data, p...)
	if overflow := len(b.data) - b.limit; overflow > 0 {
		b.data = append(b.data[:0], b.data[overflow:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.data))
}
