// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/warp-linux/sodium/lib/digest"
)

// These variables are set via -ldflags at build time, for example:
//
//	go build -ldflags "-X github.com/warp-linux/sodium/lib/version.GitCommit=$(git rev-parse --short HEAD)"
var (
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

const developmentVersion = "0.1.0-dev"

// Short returns the version number.
func Short() string {
	if Version != developmentVersion {
		return Version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if module := info.Main.Version; module != "" && module != "(devel)" {
			return module
		}
	}
	return Version
}

// Info returns "0.1.0-dev (abc1234, 2026-...)" for --version output.
func Info() string {
	dirty := ""
	if GitDirty == "true" {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Short(), GitCommit, dirty, BuildTime)
}

// Full returns Info plus the Go toolchain and platform.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// SelfDigest returns the SHA-256 digest and path of the running
// executable.
func SelfDigest() (digest.Digest, string, error) {
	executable, err := os.Executable()
	if err != nil {
		return digest.Digest{}, "", fmt.Errorf("resolving own executable path: %w", err)
	}
	sum, err := digest.File(digest.SHA256, executable)
	if err != nil {
		return digest.Digest{}, "", fmt.Errorf("hashing own binary at %s: %w", executable, err)
	}
	return sum, executable, nil
}
