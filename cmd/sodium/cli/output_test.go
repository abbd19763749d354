// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestEmitJSON(t *testing.T) {
	t.Parallel()

	var output bytes.Buffer
	disabled := JSONOutput{}
	done, err := disabled.EmitJSON(&output, []string{"a"})
	if done || err != nil || output.Len() != 0 {
		t.Fatalf("disabled EmitJSON = (%v, %v), wrote %q", done, err, output.String())
	}

	enabled := JSONOutput{OutputJSON: true}
	var empty []string
	done, err = enabled.EmitJSON(&output, empty)
	if !done || err != nil {
		t.Fatalf("enabled EmitJSON = (%v, %v)", done, err)
	}
	if strings.TrimSpace(output.String()) != "[]" {
		t.Errorf("nil slice encoded as %q, want []", output.String())
	}

	output.Reset()
	if _, err := enabled.EmitJSON(&output, map[string]int{"packages": 2}); err != nil {
		t.Fatalf("EmitJSON: %v", err)
	}
	var decoded map[string]int
	if err := json.Unmarshal(output.Bytes(), &decoded); err != nil || decoded["packages"] != 2 {
		t.Errorf("decoded = %v (%v)", decoded, err)
	}
}

func TestExitError(t *testing.T) {
	t.Parallel()

	var err error = &ExitError{Code: 3}
	var coder interface{ ExitCode() int }
	if !errors.As(err, &coder) || coder.ExitCode() != 3 {
		t.Fatalf("ExitError does not report code 3")
	}
	if err.Error() != "exit code 3" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestNewLogger(t *testing.T) {
	t.Parallel()

	var text, structured bytes.Buffer
	newLogger(&text, true, false).Debug("hidden")
	newLogger(&text, true, false).Info("visible", "package", "hello")
	newLogger(&structured, false, true).Debug("detail", "package", "hello")

	if strings.Contains(text.String(), "hidden") {
		t.Errorf("debug record written without verbose: %q", text.String())
	}
	if !strings.Contains(text.String(), "package=hello") {
		t.Errorf("text output = %q, want package=hello", text.String())
	}
	var record map[string]any
	if err := json.Unmarshal(structured.Bytes(), &record); err != nil {
		t.Fatalf("JSON output %q: %v", structured.String(), err)
	}
	if record["msg"] != "detail" || record["package"] != "hello" {
		t.Errorf("record = %v", record)
	}
}
