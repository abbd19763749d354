// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/warp-linux/sodium/cmd/sodium/cli"
)

type getParams struct {
	globalParams
	Force  bool   `flag:"force,f" desc:"overwrite an existing destination file"`
	Output string `flag:"output,o" desc:"destination file (default: the URL's file name)"`
}

func getCommand(streams Streams) *cli.Command {
	var params getParams

	return &cli.Command{
		Name:    "get",
		Summary: "Download a URL without installing it",
		Usage:   "sodium get [flags] <url>",
		Examples: []cli.Example{
			{Command: "sodium get -o hello.tar.gz https://github.com/warp-linux/hello.tar.gz"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("get", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return cli.Usagef("get requires exactly one URL")
			}
			rt, err := params.open(streams, false)
			if err != nil {
				return err
			}
			return runGet(ctx, rt, streams, args[0], params.Output, params.Force)
		},
	}
}

func runGet(ctx context.Context, rt *runtime, streams Streams, url, destination string, force bool) error {
	result, destination, err := rt.syncer.Get(ctx, url, destination, force)
	if err != nil {
		return err
	}
	fmt.Fprintf(streams.Stdout, "downloaded %s to %s (%s) in %s\n",
		url, destination, humanize.Bytes(uint64(result.BytesWritten)), result.Duration.Round(time.Millisecond))
	return nil
}
