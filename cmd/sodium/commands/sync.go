// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/warp-linux/sodium/cmd/sodium/cli"
	"github.com/warp-linux/sodium/lib/pkgerror"
	"github.com/warp-linux/sodium/lib/pkgsync"
)

type syncParams struct {
	globalParams
	cli.JSONOutput
	Force bool `flag:"force,f" desc:"overwrite an existing staging file"`
	Keep  bool `flag:"keep,k" desc:"keep session directories after successful installs"`
	Local bool `flag:"local,l" desc:"treat arguments as archive paths instead of package names"`
}

func syncCommand(streams Streams) *cli.Command {
	var params syncParams

	return &cli.Command{
		Name:    "sync",
		Summary: "Fetch and install packages",
		Description: `Fetch and install one or more packages.

Each package is fetched from the repository, extracted into its own
session directory and installed by running its sodium-install.sh.
Fetches run concurrently up to the configured parallelism; install
scripts run one at a time. A failed package does not stop the others.`,
		Usage: "sodium sync [flags] <name>...",
		Examples: []cli.Example{
			{Description: "Install two packages", Command: "sodium sync hello world"},
			{Description: "Install archives from disk and print a JSON summary", Command: "sodium sync --local --json ./hello.tar.gz ./world.tar.zst"},
		},
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("sync", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return cli.Usagef("sync requires at least one package")
			}
			rt, err := params.open(streams, params.Keep)
			if err != nil {
				return err
			}
			mode := pkgsync.Remote
			if params.Local {
				mode = pkgsync.Local
			}
			return runSyncs(ctx, rt, streams, args, mode, params.Force, params.JSONOutput)
		},
	}
}

type installParams struct {
	globalParams
	cli.JSONOutput
	Force bool `flag:"force,f" desc:"overwrite an existing staging file"`
	Keep  bool `flag:"keep,k" desc:"keep session directories after successful installs"`
}

func installCommand(streams Streams) *cli.Command {
	var params installParams

	return &cli.Command{
		Name:    "install",
		Summary: "Install package archives from disk",
		Description: `Install package archives that are already on disk.

The package name is the archive's file name without its archive
suffix: ./hello.tar.gz installs "hello".`,
		Usage: "sodium install [flags] <archive>...",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("install", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) == 0 {
				return cli.Usagef("install requires at least one archive")
			}
			rt, err := params.open(streams, params.Keep)
			if err != nil {
				return err
			}
			return runSyncs(ctx, rt, streams, args, pkgsync.Local, params.Force, params.JSONOutput)
		},
	}
}

// syncResult is the JSON form of a pkgsync.Report.
type syncResult struct {
	Package          string `json:"package"`
	Source           string `json:"source,omitempty"`
	Status           string `json:"status"`
	Step             string `json:"step,omitempty"`
	Category         string `json:"category,omitempty"`
	Error            string `json:"error,omitempty"`
	Bytes            int64  `json:"bytes,omitempty"`
	Attempts         int    `json:"attempts,omitempty"`
	Digest           string `json:"digest,omitempty"`
	Verified         bool   `json:"verified"`
	DurationMillis   int64  `json:"duration_ms"`
	SessionDirectory string `json:"session_directory,omitempty"`
}

// runSyncs syncs targets (deduplicated, in order) and reports each
// result. Failures are printed per package and turn into exit code 1.
func runSyncs(ctx context.Context, rt *runtime, streams Streams, targets []string, mode pkgsync.Mode, force bool, output cli.JSONOutput) error {
	seen := make(map[string]bool, len(targets))
	var requests []pkgsync.Request
	for _, target := range targets {
		if seen[target] {
			continue
		}
		seen[target] = true
		requests = append(requests, pkgsync.Request{Target: target, Mode: mode, Force: force})
	}

	reports, syncErr := rt.syncer.SyncAll(ctx, requests)

	results := make([]syncResult, 0, len(reports))
	for _, report := range reports {
		results = append(results, newSyncResult(report))
	}
	if done, err := output.EmitJSON(streams.Stdout, results); done {
		if err != nil {
			return err
		}
		if syncErr != nil {
			return &cli.ExitError{Code: 1}
		}
		return nil
	}

	failed := 0
	for _, report := range reports {
		if report.Err != nil {
			failed++
			fmt.Fprintf(streams.Stderr, "error: %v\n", report.Err)
			if report.Retained {
				fmt.Fprintf(streams.Stderr, "  session kept for inspection: %s\n", report.SessionDirectory)
			}
			continue
		}
		fmt.Fprintf(streams.Stdout, "installed %s (%s, %s) in %s\n",
			report.Package.Name,
			humanize.Bytes(uint64(report.Fetch.BytesWritten)),
			report.Install.ArchiveDigest,
			report.Duration.Round(time.Millisecond),
		)
		if report.Retained {
			fmt.Fprintf(streams.Stdout, "  session kept at %s\n", report.SessionDirectory)
		}
	}

	if len(reports) > 1 {
		fmt.Fprintf(streams.Stdout, "%d of %d packages installed\n", len(reports)-failed, len(reports))
	}
	if failed > 0 {
		return &cli.ExitError{Code: 1}
	}
	return nil
}

func newSyncResult(report pkgsync.Report) syncResult {
	result := syncResult{
		Package:        report.Package.Name,
		Status:         "installed",
		Bytes:          report.Fetch.BytesWritten,
		Attempts:       report.Fetch.Attempts,
		Verified:       report.Install.Verified,
		DurationMillis: report.Duration.Milliseconds(),
	}
	if result.Package == "" {
		result.Package = report.Request.Target
	}
	if report.Package.Source.Location != "" {
		result.Source = report.Package.Source.String()
	}
	if !report.Install.ArchiveDigest.IsZero() {
		result.Digest = report.Install.ArchiveDigest.String()
	}
	if report.Retained {
		result.SessionDirectory = report.SessionDirectory
	}
	if report.Err != nil {
		result.Status = "failed"
		result.Error = report.Err.Error()
		var syncErr *pkgerror.SyncError
		if errors.As(report.Err, &syncErr) {
			result.Step = string(syncErr.Step)
		}
		if category := pkgerror.Category(report.Err); category != nil {
			result.Category = category.Error()
		}
	}
	return result
}
