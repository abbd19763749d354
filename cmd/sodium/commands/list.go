// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/warp-linux/sodium/cmd/sodium/cli"
)

type listParams struct {
	globalParams
	cli.JSONOutput
}

// installedPackage is the JSON form of an install record.
type installedPackage struct {
	Name        string    `json:"name"`
	Source      string    `json:"source"`
	Digest      string    `json:"digest,omitempty"`
	Verified    bool      `json:"verified"`
	Bytes       int64     `json:"bytes"`
	InstalledAt time.Time `json:"installed_at"`
	SessionID   string    `json:"session_id"`
}

func listCommand(streams Streams) *cli.Command {
	var params listParams

	return &cli.Command{
		Name:    "list",
		Summary: "List installed packages",
		Usage:   "sodium list [flags]",
		Flags: func() *pflag.FlagSet {
			return cli.FlagsFromParams("list", &params)
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return cli.Usagef("list takes no arguments")
			}
			rt, err := params.open(streams, false)
			if err != nil {
				return err
			}
			records, err := rt.syncer.Installed()
			if err != nil {
				return err
			}

			packages := make([]installedPackage, 0, len(records))
			for _, record := range records {
				entry := installedPackage{
					Name:        record.Name,
					Source:      record.Source,
					Verified:    record.Verified,
					Bytes:       record.ArchiveBytes,
					InstalledAt: record.InstalledAt,
					SessionID:   record.SessionID,
				}
				if !record.Digest.IsZero() {
					entry.Digest = record.Digest.String()
				}
				packages = append(packages, entry)
			}
			if done, err := params.EmitJSON(streams.Stdout, packages); done {
				return err
			}

			if len(packages) == 0 {
				fmt.Fprintln(streams.Stdout, "no packages installed")
				return nil
			}
			writer := tabwriter.NewWriter(streams.Stdout, 2, 0, 3, ' ', 0)
			fmt.Fprintln(writer, "NAME\tSIZE\tDIGEST\tINSTALLED\tSOURCE")
			for _, entry := range packages {
				digest := entry.Digest
				if len(digest) > 19 {
					digest = digest[:19] + "…"
				}
				if entry.Verified {
					digest += " (pinned)"
				}
				fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\n",
					entry.Name,
					humanize.Bytes(uint64(entry.Bytes)),
					digest,
					humanize.Time(entry.InstalledAt),
					entry.Source,
				)
			}
			return writer.Flush()
		},
	}
}
