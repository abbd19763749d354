// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warp-linux/sodium/lib/digest"
)

// EnvironmentVariable names the config file when --config is absent.
const EnvironmentVariable = "SODIUM_CONFIG"

// Config is the root of sodium.yaml.
type Config struct {
	Repository RepositoryConfig `yaml:"repository"`
	Paths      PathsConfig      `yaml:"paths"`
	Fetch      FetchConfig      `yaml:"fetch"`
	Install    InstallConfig    `yaml:"install"`

	// Parallelism bounds concurrent fetches in batch syncs.
	Parallelism int `yaml:"parallelism"`

	// Digests pins package archives: package name to
	// "<algorithm>:<hex>".
	Digests map[string]string `yaml:"digests"`

	// source is the file the config was loaded from, empty for
	// defaults.
	source string
}

// RepositoryConfig maps package names to archive URLs:
// BaseURL + name + Suffix.
type RepositoryConfig struct {
	BaseURL string `yaml:"base_url"`
	Suffix  string `yaml:"suffix"`
}

// PathsConfig holds the directories sodium writes to.
type PathsConfig struct {
	// Root is the base directory. ${SODIUM_ROOT} in the other paths
	// expands to it.
	Root string `yaml:"root"`

	// Work holds per-sync session directories (staged archive and
	// extracted tree).
	Work string `yaml:"work"`

	// State holds package locks and the install database.
	State string `yaml:"state"`
}

// FetchConfig controls archive downloads.
type FetchConfig struct {
	Timeout        string `yaml:"timeout"`
	Retries        int    `yaml:"retries"`
	InitialBackoff string `yaml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff"`
}

// InstallConfig controls extraction and the install script.
type InstallConfig struct {
	Entrypoint string `yaml:"entrypoint"`
	Shell      string `yaml:"shell"`
	Timeout    string `yaml:"timeout"`

	// RequireDigest refuses packages without an entry in Digests.
	RequireDigest bool `yaml:"require_digest"`

	// KeepArtifacts retains session directories after successful
	// syncs.
	KeepArtifacts bool `yaml:"keep_artifacts"`

	// CleanupOnFailure removes session directories after failed
	// syncs. By default they are left for inspection.
	CleanupOnFailure bool `yaml:"cleanup_on_failure"`
}

// Default returns the built-in configuration.
func Default() *Config {
	homeDirectory, _ := os.UserHomeDir()

	return &Config{
		Repository: RepositoryConfig{
			BaseURL: "https://github.com/warp-linux/",
			Suffix:  ".tar.gz",
		},
		Paths: PathsConfig{
			Root:  filepath.Join(homeDirectory, ".cache", "sodium"),
			Work:  "${SODIUM_ROOT}/work",
			State: "${SODIUM_ROOT}/state",
		},
		Fetch: FetchConfig{
			Timeout:        "10m",
			Retries:        2,
			InitialBackoff: "500ms",
			MaxBackoff:     "30s",
		},
		Install: InstallConfig{
			Entrypoint: "sodium-install.sh",
			Shell:      "/bin/sh",
			Timeout:    "30m",
		},
		Parallelism: 4,
	}
}

// Load resolves the config file from path, then SODIUM_CONFIG, and
// loads it. With neither set it returns the expanded defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvironmentVariable)
	}
	if path == "" {
		config := Default()
		config.expandVariables()
		return config, nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path, layered over Default.
func LoadFile(path string) (*Config, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	config.source = path

	config.expandVariables()
	return config, nil
}

// Source returns the file the configuration was loaded from, or ""
// for built-in defaults.
func (c *Config) Source() string { return c.source }

// expandVariables expands ${VAR} and ${VAR:-default} in path fields.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}
	c.Paths.Root = expandVars(c.Paths.Root, vars)
	vars["SODIUM_ROOT"] = c.Paths.Root

	c.Paths.Work = expandVars(c.Paths.Work, vars)
	c.Paths.State = expandVars(c.Paths.State, vars)
	c.Install.Shell = expandVars(c.Install.Shell, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		name, fallback := parts[1], parts[2]

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return fallback
	})
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if c.Repository.BaseURL == "" {
		errs = append(errs, errors.New("repository.base_url is required"))
	} else if !strings.HasPrefix(c.Repository.BaseURL, "https://") && !strings.HasPrefix(c.Repository.BaseURL, "http://") {
		errs = append(errs, fmt.Errorf("repository.base_url must be an http(s) URL, got %q", c.Repository.BaseURL))
	}

	for field, value := range map[string]string{
		"paths.root":  c.Paths.Root,
		"paths.work":  c.Paths.Work,
		"paths.state": c.Paths.State,
	} {
		if value == "" {
			errs = append(errs, fmt.Errorf("%s is required", field))
		} else if strings.Contains(value, "${") {
			errs = append(errs, fmt.Errorf("%s has an unexpanded variable: %s", field, value))
		}
	}

	for field, value := range map[string]string{
		"fetch.timeout":         c.Fetch.Timeout,
		"fetch.initial_backoff": c.Fetch.InitialBackoff,
		"fetch.max_backoff":     c.Fetch.MaxBackoff,
		"install.timeout":       c.Install.Timeout,
	} {
		if _, err := parseDuration(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
		}
	}

	if c.Fetch.Retries < 0 {
		errs = append(errs, fmt.Errorf("fetch.retries must not be negative, got %d", c.Fetch.Retries))
	}
	if c.Parallelism < 1 {
		errs = append(errs, fmt.Errorf("parallelism must be at least 1, got %d", c.Parallelism))
	}
	if c.Install.Entrypoint == "" || c.Install.Entrypoint != filepath.Base(c.Install.Entrypoint) {
		errs = append(errs, fmt.Errorf("install.entrypoint must be a plain file name, got %q", c.Install.Entrypoint))
	}
	if c.Install.Shell == "" {
		errs = append(errs, errors.New("install.shell is required"))
	}

	for _, name := range sortedKeys(c.Digests) {
		if _, err := digest.Parse(c.Digests[name]); err != nil {
			errs = append(errs, fmt.Errorf("digests.%s: %w", name, err))
		}
	}

	// Map iteration above is unordered; sort for stable output.
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errors.Join(errs...)
}

// PackageURL returns the archive URL for a validated package name.
func (c *Config) PackageURL(name string) string {
	return c.Repository.BaseURL + name + c.Repository.Suffix
}

// PinnedDigest returns the pinned digest for name, or the zero Digest
// when none is configured.
func (c *Config) PinnedDigest(name string) (digest.Digest, error) {
	text, ok := c.Digests[name]
	if !ok {
		return digest.Digest{}, nil
	}
	return digest.Parse(text)
}

// FetchTimeout returns fetch.timeout as a duration.
func (c *Config) FetchTimeout() time.Duration { return durationOrZero(c.Fetch.Timeout) }

// FetchInitialBackoff returns fetch.initial_backoff as a duration.
func (c *Config) FetchInitialBackoff() time.Duration { return durationOrZero(c.Fetch.InitialBackoff) }

// FetchMaxBackoff returns fetch.max_backoff as a duration.
func (c *Config) FetchMaxBackoff() time.Duration { return durationOrZero(c.Fetch.MaxBackoff) }

// InstallTimeout returns install.timeout as a duration.
func (c *Config) InstallTimeout() time.Duration { return durationOrZero(c.Install.Timeout) }

// EnsurePaths creates the configured directories.
func (c *Config) EnsurePaths() error {
	for _, path := range []string{c.Paths.Root, c.Paths.Work, c.Paths.State} {
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", path, err)
		}
	}
	return nil
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, errors.New("duration is required")
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if duration <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", value)
	}
	return duration, nil
}

// durationOrZero returns the parsed duration, or zero for an invalid
// value, which components treat as "use the default". Validate
// reports invalid values.
func durationOrZero(value string) time.Duration {
	duration, _ := parseDuration(value)
	return duration
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
