// Copyright 2026 The Sodium Authors
// SPDX-License-Identifier: Apache-2.0

// Package pkgerror defines the failure taxonomy shared by every stage
// of the sync pipeline (resolve, fetch, verify, extract, install).
//
// Each category is a sentinel error. Stages wrap the sentinel with
// context via fmt.Errorf("...: %w") or return one of the typed errors
// below, which match their sentinel through errors.Is. Callers branch
// on the category with errors.Is and extract detail with errors.As:
//
//	var subprocessError *pkgerror.SubprocessError
//	if errors.As(err, &subprocessError) {
//	    logger.Error("install script failed", "exit_code", subprocessError.ExitCode)
//	}
//
// This package depends on no other sodium packages.
package pkgerror
