// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"log/slog"

	"github.com/warp-linux/sodium/cmd/sodium/cli"
	"github.com/warp-linux/sodium/lib/config"
	"github.com/warp-linux/sodium/lib/fetch"
	"github.com/warp-linux/sodium/lib/installer"
	"github.com/warp-linux/sodium/lib/pkgsync"
)

// globalParams are accepted by every command that touches the
// repository or the local state.
type globalParams struct {
	Config  string `flag:"config" desc:"configuration file (default: $SODIUM_CONFIG, then built-in defaults)"`
	Verbose bool   `flag:"verbose,v" desc:"log every pipeline step"`
}

// runtime is the wired pipeline for one invocation.
type runtime struct {
	config *config.Config
	syncer *pkgsync.Syncer
	logger *slog.Logger
}

// open loads configuration and builds the fetch, install and sync
// components from it. keep forces install.keep_artifacts on.
func (g globalParams) open(streams Streams, keep bool) (*runtime, error) {
	logger := cli.NewLogger(streams.Stderr, g.Verbose)

	cfg, err := config.Load(g.Config)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		source := cfg.Source()
		if source == "" {
			source = "built-in defaults"
		}
		return nil, fmt.Errorf("invalid configuration (%s):\n%w", source, err)
	}
	if keep {
		cfg.Install.KeepArtifacts = true
	}
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}
	logger.Debug("configuration loaded",
		"source", cfg.Source(),
		"repository", cfg.Repository.BaseURL,
		"work", cfg.Paths.Work,
		"state", cfg.Paths.State,
	)

	fetcher := fetch.New(fetch.Config{
		Timeout:        cfg.FetchTimeout(),
		Retries:        cfg.Fetch.Retries,
		InitialBackoff: cfg.FetchInitialBackoff(),
		MaxBackoff:     cfg.FetchMaxBackoff(),
		Logger:         logger,
	})

	packageInstaller, err := installer.New(installer.Config{
		Entrypoint:    cfg.Install.Entrypoint,
		Shell:         cfg.Install.Shell,
		Timeout:       cfg.InstallTimeout(),
		RequireDigest: cfg.Install.RequireDigest,
		Stdout:        streams.Stdout,
		Stderr:        streams.Stderr,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	syncer, err := pkgsync.New(pkgsync.Config{
		Fetcher:          fetcher,
		Installer:        packageInstaller,
		BaseURL:          cfg.Repository.BaseURL,
		Suffix:           cfg.Repository.Suffix,
		WorkDirectory:    cfg.Paths.Work,
		StateDirectory:   cfg.Paths.State,
		Digests:          cfg.PinnedDigest,
		Parallelism:      cfg.Parallelism,
		KeepArtifacts:    cfg.Install.KeepArtifacts,
		CleanupOnFailure: cfg.Install.CleanupOnFailure,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}

	return &runtime{config: cfg, syncer: syncer, logger: logger}, nil
}
