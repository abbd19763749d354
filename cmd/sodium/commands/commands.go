// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands builds the sodium command tree.
//
// The root command keeps the classic single-dash interface
// ("sodium -s hello", "sodium -g URL") and also carries subcommands
// for batch syncs, listing installed packages and working with ZV
// containers directly.
package commands

import (
	"io"
	"os"

	"github.com/warp-linux/sodium/cmd/sodium/cli"
)

// Streams are the standard streams a command tree reads from and
// writes to. Install scripts inherit Stdout and Stderr.
type Streams struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// StandardStreams returns the process's own streams.
func StandardStreams() Streams {
	return Streams{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}

// Root builds the complete command tree.
func Root(streams Streams) *cli.Command {
	root := rootCommand(streams)
	root.Subcommands = []*cli.Command{
		syncCommand(streams),
		installCommand(streams),
		getCommand(streams),
		listCommand(streams),
		compressCommand(streams),
		uncompressCommand(streams),
		catCommand(streams),
		versionCommand(streams),
	}
	return root
}
