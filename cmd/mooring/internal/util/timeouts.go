// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package util

import "time"

// =============================================================================
// Constants
// =============================================================================

// Timeout constants define minimum and default values for deployment
// operations.
//
// These constants prevent accidental infinite hangs by ensuring all
// operations have a reasonable timeout even if misconfigured.
const (
	// MinPullTimeout is the absolute minimum for an image pull.
	// Pulls of large images are slow but must still terminate.
	MinPullTimeout = 30 * time.Second

	// MinStopTimeout is the absolute minimum grace period for a
	// container stop before the engine kills the process.
	MinStopTimeout = 1 * time.Second

	// MinProbeTimeout is the absolute minimum for TCP and HTTP
	// reachability probes.
	MinProbeTimeout = 500 * time.Millisecond

	// MinConnectTimeout is the absolute minimum for establishing an
	// SSH session to a remote target.
	MinConnectTimeout = 1 * time.Second

	// DefaultPullTimeout is the standard timeout for a single image pull.
	DefaultPullTimeout = 10 * time.Minute

	// DefaultStopTimeout is the standard container stop grace period.
	DefaultStopTimeout = 10 * time.Second

	// DefaultProbeTimeout is the standard timeout for status probes.
	DefaultProbeTimeout = 5 * time.Second

	// DefaultConnectTimeout is the standard timeout for SSH connection
	// establishment.
	DefaultConnectTimeout = 10 * time.Second
)

// =============================================================================
// Utility Functions
// =============================================================================

// EnforceMinTimeout returns at least the minimum timeout.
//
// # Description
//
// Ensures a timeout is never below the specified minimum. If the requested
// timeout is zero, negative, or below the minimum, returns the minimum
// instead. This prevents misconfiguration from causing infinite hangs.
//
// # Inputs
//
//   - requested: The timeout value requested by the caller
//   - minimum: The absolute minimum acceptable timeout
//
// # Outputs
//
//   - time.Duration: The requested timeout if valid, otherwise the minimum
//
// # Example
//
//	timeout := util.EnforceMinTimeout(cfg.StopTimeout(), util.MinStopTimeout)
func EnforceMinTimeout(requested, minimum time.Duration) time.Duration {
	if requested <= 0 || requested < minimum {
		return minimum
	}
	return requested
}

// EnforceDefaultTimeout returns the default if the requested is zero or
// negative.
//
// # Description
//
// Unlike EnforceMinTimeout, this only applies the default when the value
// is explicitly zero or negative. Useful when you want to allow any
// positive value but provide a sensible default.
//
// # Inputs
//
//   - requested: The timeout value requested by the caller
//   - defaultVal: The default timeout to use if requested is invalid
//
// # Outputs
//
//   - time.Duration: The requested timeout if positive, otherwise the default
func EnforceDefaultTimeout(requested, defaultVal time.Duration) time.Duration {
	if requested <= 0 {
		return defaultVal
	}
	return requested
}
