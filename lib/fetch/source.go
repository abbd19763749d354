// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package fetch

import "fmt"

// Kind distinguishes remote from local sources.
type Kind int

const (
	// Remote sources are fetched with an HTTP GET.
	Remote Kind = iota
	// Local sources are copied from the filesystem.
	Local
)

func (k Kind) String() string {
	switch k {
	case Remote:
		return "remote"
	case Local:
		return "local"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Source names where an archive comes from: a URL for Remote, a
// filesystem path for Local.
type Source struct {
	Kind     Kind
	Location string
}

// RemoteSource returns a Source for url.
func RemoteSource(url string) Source {
	return Source{Kind: Remote, Location: url}
}

// LocalSource returns a Source for path.
func LocalSource(path string) Source {
	return Source{Kind: Local, Location: path}
}

func (s Source) String() string {
	return s.Kind.String() + ":" + s.Location
}
