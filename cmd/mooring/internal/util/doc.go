// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package util provides foundational utilities for the mooring CLI.
//
// This package contains low-level utilities that have no dependencies on
// other internal packages. All utilities depend only on the Go standard
// library, making this a leaf package in the dependency graph.
//
// # Overview
//
// The util package provides five categories of utilities:
//
//   - Timeout Management: Enforce minimum and default timeouts for engine,
//     probe, and remote operations
//   - Environment Variables: Typed container environment assembly with
//     validation and secret redaction
//   - Command Errors: Rich error wrapping for remote command failures
//   - Ring Buffer: Thread-safe circular buffer for bounded log collection
//   - Goroutine Safety: Panic recovery for background goroutines
//
// # Thread Safety
//
// All types in this package are safe for concurrent use from multiple
// goroutines unless their documentation explicitly states otherwise.
// Specifically:
//
//   - [RingBuffer] is fully thread-safe (protected by mutex)
//   - [EnvVars] is NOT thread-safe (do not modify concurrently)
//
// # Key Types
//
// Timeout utilities:
//
//	timeout := util.EnforceMinTimeout(cfg.PullTimeout(), util.MinPullTimeout)
//
// Environment variables:
//
//	envs, err := util.FromMap(svc.Env, nil)
//	envs.Add("POSTGRES_PASSWORD", secret, true)
//	logger.Debug("creating container", "env", envs.RedactedSlice())
//
// Command errors:
//
//	err := util.NewCommandError("nginx -t", 1, stderr, originalErr)
//	if cmdErr, ok := err.(*util.CommandError); ok {
//	    fmt.Println(cmdErr.Stderr)
//	}
//
// Ring buffer:
//
//	tail := util.NewRingBuffer[string](200)
//	tail.Push(logLine)
//	lines := tail.Drain()
//
// Safe goroutines:
//
//	util.SafeGo(func() {
//	    watchLoop()
//	}, func(r util.SafeGoResult) {
//	    log.Printf("Panic recovered: %v\n%s", r.PanicValue, r.Stack)
//	})
//
// # Security Considerations
//
//   - [EnvVar] supports sensitivity marking so registry and database
//     credentials never reach logs
//   - [CommandError] captures stderr without exposing it to end users
//   - [SafeGoResult] captures full stack traces for debugging
package util
