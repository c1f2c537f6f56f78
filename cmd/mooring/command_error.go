// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/AleutianAI/mooring/cmd/mooring/internal/infra/process"
	"github.com/AleutianAI/mooring/cmd/mooring/internal/util"
	"github.com/AleutianAI/mooring/pkg/ux"
)

// Process exit codes. Every command exits 0 on full success and with
// the code of the failure kind otherwise, so CI and scripts can branch
// on what went wrong rather than parsing output. A run aborted in the
// pull phase exits with the pull failure's code: the abort is the
// consequence, the pull failure is the kind.
const (
	// ExitSuccess: the command did everything it was asked to.
	ExitSuccess = 0

	// ExitGeneric: usage errors and failures with no classified kind.
	ExitGeneric = 1

	// ExitPartialFailure: the run changed the deployment but at least
	// one service did not reach running.
	ExitPartialFailure = 2

	// Pull-phase failures.
	ExitRegistryUnavailable = 10
	ExitAuthRequired        = 11
	ExitImageNotFound       = 12

	// Start-phase failures.
	ExitDependencyNotRunning = 20
	ExitPortConflict         = 21

	// Remote-execution failures.
	ExitHostUnreachable = 30
	ExitAuthFailed      = 31
	ExitCommandFailed   = 32

	// ExitLeaseHeld: an overlapping run held the deployment lease and
	// did not yield within the configured wait.
	ExitLeaseHeld = 40
)

// exitCodeFor maps an error chain onto its process exit code.
//
// # Description
//
// Walks the chain with errors.Is against the sentinel of each failure
// kind, most specific first: a partial-failure aggregate that wraps a
// specific kind reports the kind, and only an aggregate with no
// specific cause in its chain reports ExitPartialFailure. nil maps to
// ExitSuccess.
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	known := []struct {
		sentinel error
		code     int
	}{
		{process.ErrLeaseHeld, ExitLeaseHeld},
		{ErrRegistryUnavailable, ExitRegistryUnavailable},
		{ErrAuthRequired, ExitAuthRequired},
		{ErrImageNotFound, ExitImageNotFound},
		{ErrDependencyNotRunning, ExitDependencyNotRunning},
		{ErrPortConflict, ExitPortConflict},
		{ErrHostUnreachable, ExitHostUnreachable},
		{ErrAuthFailed, ExitAuthFailed},
		{ErrCommandFailed, ExitCommandFailed},
		{ErrReconcilePartial, ExitPartialFailure},
	}
	for _, k := range known {
		if errors.Is(err, k.sentinel) {
			return k.code
		}
	}
	return ExitGeneric
}

// exitOnError reports err to the operator and terminates the process
// with the error's exit code. A no-op for nil. Remote command stderr
// captured in the chain is surfaced so the operator sees what the far
// side actually printed.
func exitOnError(err error) {
	if err == nil {
		return
	}

	ux.Error(err.Error())
	if stderr := util.ExtractStderr(err); stderr != "" {
		fmt.Fprintln(os.Stderr, stderr)
	}
	os.Exit(exitCodeFor(err))
}
