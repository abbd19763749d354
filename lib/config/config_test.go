// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/warp-linux/sodium/lib/digest"
)

const pinnedHex = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sodium.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaultIsValid(t *testing.T) {
	t.Setenv(EnvironmentVariable, "")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if config.Source() != "" {
		t.Errorf("Source() = %q for defaults", config.Source())
	}
	if got := config.PackageURL("hello"); got != "https://github.com/warp-linux/hello.tar.gz" {
		t.Errorf("PackageURL = %q", got)
	}
	if config.Paths.Work != filepath.Join(config.Paths.Root, "work") {
		t.Errorf("Paths.Work = %q not under root %q", config.Paths.Work, config.Paths.Root)
	}
	if config.FetchTimeout() != 10*time.Minute || config.InstallTimeout() != 30*time.Minute {
		t.Errorf("timeouts = %v, %v", config.FetchTimeout(), config.InstallTimeout())
	}
}

func TestLoadFile(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	path := writeConfig(t, `
repository:
  base_url: https://mirror.example/pkgs/
  suffix: .tar.zst
paths:
  root: ${HOME}/sodium
fetch:
  timeout: 90s
  retries: 5
install:
  require_digest: true
parallelism: 8
digests:
  hello: sha256:`+pinnedHex+`
`)

	config, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if err := config.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	if config.Paths.Root != "/home/tester/sodium" {
		t.Errorf("Paths.Root = %q", config.Paths.Root)
	}
	if config.Paths.State != "/home/tester/sodium/state" {
		t.Errorf("Paths.State = %q, want derived from root", config.Paths.State)
	}
	if config.PackageURL("hello") != "https://mirror.example/pkgs/hello.tar.zst" {
		t.Errorf("PackageURL = %q", config.PackageURL("hello"))
	}
	if config.FetchTimeout() != 90*time.Second || config.Fetch.Retries != 5 {
		t.Errorf("fetch = %+v", config.Fetch)
	}
	if config.FetchInitialBackoff() != 500*time.Millisecond {
		t.Errorf("unset initial_backoff lost its default: %v", config.FetchInitialBackoff())
	}
	if !config.Install.RequireDigest || config.Install.Shell != "/bin/sh" {
		t.Errorf("install = %+v", config.Install)
	}
	if config.Parallelism != 8 || config.Source() != path {
		t.Errorf("parallelism = %d, source = %q", config.Parallelism, config.Source())
	}

	pin, err := config.PinnedDigest("hello")
	if err != nil {
		t.Fatalf("PinnedDigest: %v", err)
	}
	if pin.Algorithm != digest.SHA256 || !strings.HasSuffix(pin.String(), pinnedHex) {
		t.Errorf("PinnedDigest = %v", pin)
	}
	if unpinned, err := config.PinnedDigest("other"); err != nil || !unpinned.IsZero() {
		t.Errorf("PinnedDigest(other) = %v, %v", unpinned, err)
	}
}

func TestLoadUsesEnvironmentVariable(t *testing.T) {
	path := writeConfig(t, "parallelism: 2\n")
	t.Setenv(EnvironmentVariable, path)

	config, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if config.Parallelism != 2 {
		t.Errorf("Parallelism = %d, want 2 from %s", config.Parallelism, EnvironmentVariable)
	}

	explicit := writeConfig(t, "parallelism: 3\n")
	config, err = Load(explicit)
	if err != nil {
		t.Fatal(err)
	}
	if config.Parallelism != 3 {
		t.Errorf("explicit path did not win over %s", EnvironmentVariable)
	}
}

func TestLoadFileErrors(t *testing.T) {
	t.Parallel()

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("LoadFile accepted a missing file")
	}
	if _, err := LoadFile(writeConfig(t, "parallelism: [\n")); err == nil {
		t.Error("LoadFile accepted malformed YAML")
	}
	if _, err := LoadFile(writeConfig(t, "paralelism: 4\n")); err == nil {
		t.Error("LoadFile accepted an unknown field")
	}
	if _, err := LoadFile(writeConfig(t, "")); err != nil {
		t.Errorf("LoadFile rejected an empty file: %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()

	config := Default()
	config.expandVariables()
	config.Repository.BaseURL = "ftp://old.example/"
	config.Fetch.Timeout = "soon"
	config.Fetch.Retries = -1
	config.Install.Timeout = "-5s"
	config.Install.Entrypoint = "scripts/install.sh"
	config.Parallelism = 0
	config.Digests = map[string]string{"bad": "md5:abcd"}

	err := config.Validate()
	if err == nil {
		t.Fatal("Validate accepted an invalid config")
	}
	for _, want := range []string{
		"repository.base_url",
		"fetch.timeout",
		"fetch.retries",
		"install.timeout",
		"install.entrypoint",
		"parallelism",
		"digests.bad",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate error lacks %q:\n%v", want, err)
		}
	}
}

func TestExpandVars(t *testing.T) {
	t.Setenv("SODIUM_TEST_SET", "from-env")

	vars := map[string]string{"SODIUM_ROOT": "/srv/sodium"}
	tests := []struct {
		input string
		want  string
	}{
		{"${SODIUM_ROOT}/work", "/srv/sodium/work"},
		{"${SODIUM_TEST_SET}/x", "from-env/x"},
		{"${SODIUM_TEST_UNSET:-/fallback}", "/fallback"},
		{"/plain/path", "/plain/path"},
	}
	for _, test := range tests {
		if got := expandVars(test.input, vars); got != test.want {
			t.Errorf("expandVars(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestEnsurePaths(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "root")
	config := Default()
	config.Paths = PathsConfig{Root: root, Work: filepath.Join(root, "w"), State: filepath.Join(root, "s")}
	if err := config.EnsurePaths(); err != nil {
		t.Fatalf("EnsurePaths: %v", err)
	}
	for _, path := range []string{config.Paths.Work, config.Paths.State} {
		if info, err := os.Stat(path); err != nil || !info.IsDir() {
			t.Errorf("%s not created: %v", path, err)
		}
	}
}
