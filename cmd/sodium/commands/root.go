// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"strings"

	"github.com/spf13/pflag"

	"github.com/warp-linux/sodium/cmd/sodium/cli"
	"github.com/warp-linux/sodium/lib/pkgsync"
)

type rootParams struct {
	globalParams
	Force  bool   `flag:"force,f" desc:"overwrite an existing download or staging file"`
	Keep   bool   `flag:"keep,k" desc:"keep the session directory after a successful install"`
	Sync   string `flag:"sync,s" desc:"fetch and install the named package from the repository"`
	Local  string `flag:"local,l" desc:"install a package archive from disk"`
	Get    string `flag:"get,g" desc:"download a URL without installing it"`
	Output string `flag:"output,o" desc:"destination for --get (default: the URL's file name)"`
}

func rootCommand(streams Streams) *cli.Command {
	var params rootParams

	root := &cli.Command{
		Name: "sodium",
		Description: `sodium: a minimal package manager.

Fetches a package archive from the repository (or from disk), extracts
it into a private session directory and runs its sodium-install.sh.
The process working directory is restored afterwards.`,
		Usage:      "sodium [-fhv] [-s name | -l archive | -g url [-o file]] | sodium <command> [flags]",
		HelpOutput: streams.Stderr,
		Examples: []cli.Example{
			{Description: "Install a package from the repository", Command: "sodium -s hello"},
			{Description: "Install a package archive already on disk", Command: "sodium -l ./hello.tar.gz"},
			{Description: "Download a file without installing it", Command: "sodium -g https://example.com/tool.tar.gz -o tool.tar.gz"},
			{Description: "Sync several packages at once", Command: "sodium sync hello world"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("sodium", &params)
		},
	}

	root.Run = func(ctx context.Context, args []string) error {
		actions := 0
		for _, value := range []string{params.Sync, params.Local, params.Get} {
			if value != "" {
				actions++
			}
		}
		if actions > 1 {
			return cli.Usagef("only one of --sync, --local and --get may be given")
		}
		if len(args) > 0 {
			return cli.Usagef("unexpected argument %q", strings.Join(args, " "))
		}
		if params.Output != "" && params.Get == "" {
			return cli.Usagef("--output only applies to --get")
		}
		if actions == 0 {
			root.PrintHelp(streams.Stderr)
			return &cli.ExitError{Code: 1}
		}

		rt, err := params.open(streams, params.Keep)
		if err != nil {
			return err
		}

		switch {
		case params.Get != "":
			return runGet(ctx, rt, streams, params.Get, params.Output, params.Force)
		case params.Local != "":
			return runSyncs(ctx, rt, streams, []string{params.Local}, pkgsync.Local, params.Force, cli.JSONOutput{})
		default:
			return runSyncs(ctx, rt, streams, []string{params.Sync}, pkgsync.Remote, params.Force, cli.JSONOutput{})
		}
	}

	return root
}
