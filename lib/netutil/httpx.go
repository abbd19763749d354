// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O helpers shared by the fetch layer.
//
// Archive bodies are always streamed to disk with io.Copy. The helpers
// here cover the small reads around a download: the body of an error
// response, which is bounded so a misbehaving mirror cannot make an
// error message arbitrarily large, and status classification.
package netutil

import (
	"io"
	"net/http"
	"strconv"
	"strings"
)

// MaxErrorBody bounds how much of an error response is read into a
// diagnostic message.
const MaxErrorBody int64 = 4 << 10

// ErrorBody reads up to MaxErrorBody bytes of an HTTP error response
// and returns them trimmed, with interior whitespace collapsed. Read
// errors are ignored: a partial body is still useful in a message.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxErrorBody))
	return strings.Join(strings.Fields(string(data)), " ")
}

// IsSuccess reports whether status is in the 2xx range.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// StatusText formats status as "404 Not Found", or just the number
// when the code is not one net/http knows.
func StatusText(status int) string {
	if text := http.StatusText(status); text != "" {
		return strconv.Itoa(status) + " " + text
	}
	return strconv.Itoa(status)
}
