// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Sodium fetches package archives, extracts them into a session
// directory and runs their install scripts.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/warp-linux/sodium/cmd/sodium/commands"
	"github.com/warp-linux/sodium/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return commands.Root(commands.StandardStreams()).Execute(ctx, os.Args[1:])
}
