// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"

	"github.com/spf13/pflag"

	"github.com/warp-linux/sodium/cmd/sodium/cli"
	"github.com/warp-linux/sodium/lib/version"
)

type versionParams struct {
	Verbose bool `flag:"verbose,v" desc:"include toolchain, platform and binary digest"`
}

func versionCommand(streams Streams) *cli.Command {
	var params versionParams

	return &cli.Command{
		Name:    "version",
		Summary: "Print version information",
		Usage:   "sodium version [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("version", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if !params.Verbose {
				fmt.Fprintf(streams.Stdout, "sodium %s\n", version.Info())
				return nil
			}
			fmt.Fprintf(streams.Stdout, "sodium %s\n", version.Full())
			selfDigest, path, err := version.SelfDigest()
			if err != nil {
				return err
			}
			fmt.Fprintf(streams.Stdout, "  Binary: %s\n  Digest: %s\n", path, selfDigest)
			return nil
		},
	}
}
