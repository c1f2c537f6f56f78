// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"
)

// ErrLeaseHeld is the sentinel for a lease held by another run.
var ErrLeaseHeld = errors.New("deployment lease held by another run")

// RunLeaser defines the interface for reconciliation run mutual exclusion.
//
// # Description
//
// RunLeaser serializes overlapping reconciliation runs. Two deployments
// triggered in quick succession (for example two CI pushes) must not
// interleave their stop/start phases; the second run waits for the
// first to finish or fails with ErrLeaseHeld.
//
// # Thread Safety
//
// Implementations must be safe for use from a single goroutine. The
// lease provides inter-process synchronization, not intra-process.
type RunLeaser interface {
	// Acquire attempts to take the lease without waiting.
	Acquire() error

	// AcquireWithin retries acquisition until wait elapses or ctx is
	// cancelled, then returns the last acquisition error.
	AcquireWithin(ctx context.Context, wait time.Duration) error

	// Release gives the lease up if held. Safe to call multiple times
	// or if the lease was never acquired.
	Release() error

	// IsHeld reports whether this instance currently holds the lease.
	IsHeld() bool

	// Holder returns the recorded metadata of the current holder, or
	// a zero LeaseInfo when none is readable.
	Holder() LeaseInfo
}

// LeaseInfo is the metadata a holder records alongside the lease.
type LeaseInfo struct {
	PID        int       `json:"pid"`
	RunID      string    `json:"run_id,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the holder's declared lifetime has passed.
func (l LeaseInfo) Expired(now time.Time) bool {
	return !l.ExpiresAt.IsZero() && now.After(l.ExpiresAt)
}

// LeaseConfig configures run lease behavior.
type LeaseConfig struct {
	// Dir is the directory for lease files. Default: system temp directory.
	Dir string

	// Name is the base name for lease files. Default: "mooring".
	Name string

	// TTL is the holder's declared maximum run duration, recorded as
	// the expiry in the lease metadata. Default: 30 minutes.
	TTL time.Duration

	// RunID identifies the run in holder metadata and error messages.
	RunID string
}

// DefaultLeaseConfig returns sensible defaults.
func DefaultLeaseConfig() LeaseConfig {
	return LeaseConfig{
		Dir:  os.TempDir(),
		Name: "mooring",
		TTL:  30 * time.Minute,
	}
}

// RunLease implements RunLeaser using file-based locking.
//
// # Description
//
// Uses flock(2) for advisory locking plus a JSON metadata file naming
// the holder. This serializes mutating runs:
//
//   - Run A: `mooring reconcile` (stopping the stack)
//   - Run B: `mooring reconcile` (must wait, not interleave starts)
//
// # How It Works
//
//  1. Creates a lock file at {Dir}/{Name}.lock
//  2. Attempts exclusive flock on the file
//  3. Writes holder metadata (PID, run ID, expiry) to {Dir}/{Name}.lease
//  4. On release, removes the metadata and releases the flock
//
// A holder that crashes loses its flock automatically (the kernel
// releases it when the process exits), so the next run acquires without
// operator intervention; only the stale metadata file is overwritten.
// The expiry is advisory: a live holder past its expiry still holds the
// flock, and waiters report it as likely hung rather than seizing it.
//
// # Thread Safety
//
// RunLease is NOT safe for concurrent use from multiple goroutines.
// Use from a single goroutine (typically the reconciler).
//
// # Limitations
//
//   - Advisory lock only, processes that do not check are not blocked
//   - NFS and some network filesystems do not support flock properly
type RunLease struct {
	config    LeaseConfig
	lockPath  string
	leasePath string
	lockFile  *os.File
	held      bool
}

// NewRunLease creates a run lease. Does not acquire it.
func NewRunLease(config LeaseConfig) *RunLease {
	if config.Dir == "" {
		config.Dir = os.TempDir()
	}
	if config.Name == "" {
		config.Name = "mooring"
	}
	if config.TTL <= 0 {
		config.TTL = 30 * time.Minute
	}

	return &RunLease{
		config:    config,
		lockPath:  filepath.Join(config.Dir, config.Name+".lock"),
		leasePath: filepath.Join(config.Dir, config.Name+".lease"),
	}
}

// Acquire attempts to take the lease without waiting.
//
// # Description
//
// Uses a non-blocking flock. If another run holds the lease, returns a
// *LeaseHeldError carrying the holder's recorded PID, run ID, and
// whether its declared expiry has passed.
//
// # Error Conditions
//
//   - Another run holds the lease (ErrLeaseHeld via LeaseHeldError)
//   - Cannot create the lock file (permission denied, disk full)
//   - Cannot acquire flock (system error)
func (r *RunLease) Acquire() error {
	if r.held {
		return nil // Already held
	}

	f, err := os.OpenFile(r.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create lease file %s: %w", r.lockPath, err)
	}

	err = syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB)
	if err != nil {
		f.Close()

		if err == syscall.EWOULDBLOCK {
			holder := r.Holder()
			return &LeaseHeldError{
				HolderPID: holder.PID,
				RunID:     holder.RunID,
				Expired:   holder.Expired(time.Now()),
				LeasePath: r.leasePath,
			}
		}

		return fmt.Errorf("failed to acquire lease: %w", err)
	}

	r.lockFile = f
	r.held = true

	if err := r.writeLeaseInfo(); err != nil {
		// Non-fatal, the flock is what excludes other runs
		return nil
	}

	return nil
}

// AcquireWithin retries acquisition until wait elapses or ctx is cancelled.
//
// # Description
//
// Polls Acquire every 500ms so a run triggered while another is
// finishing serializes behind it instead of failing outright. Returns
// the last *LeaseHeldError when the wait is exhausted.
func (r *RunLease) AcquireWithin(ctx context.Context, wait time.Duration) error {
	deadline := time.Now().Add(wait)

	var lastErr error
	for {
		lastErr = r.Acquire()
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, ErrLeaseHeld) {
			return lastErr
		}
		if time.Now().After(deadline) {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// Release gives the lease up if held.
//
// # Description
//
// Removes the metadata file and releases the flock. Safe to call
// multiple times or if the lease was never acquired. The lock file
// itself is left in place for subsequent acquires.
func (r *RunLease) Release() error {
	if !r.held || r.lockFile == nil {
		return nil
	}

	os.Remove(r.leasePath)

	err := syscall.Flock(int(r.lockFile.Fd()), syscall.LOCK_UN)

	r.lockFile.Close()
	r.lockFile = nil
	r.held = false

	if err != nil {
		return fmt.Errorf("failed to release lease: %w", err)
	}

	return nil
}

// IsHeld reports whether this instance currently holds the lease.
// Checks local state only.
func (r *RunLease) IsHeld() bool {
	return r.held
}

// Holder reads the recorded holder metadata. Returns a zero LeaseInfo
// when the metadata file is missing or unreadable.
func (r *RunLease) Holder() LeaseInfo {
	data, err := os.ReadFile(r.leasePath)
	if err != nil {
		return LeaseInfo{}
	}

	var info LeaseInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return LeaseInfo{}
	}
	return info
}

// LeasePath returns the path to the holder metadata file.
func (r *RunLease) LeasePath() string {
	return r.leasePath
}

// LockPath returns the path to the flock target file.
func (r *RunLease) LockPath() string {
	return r.lockPath
}

func (r *RunLease) writeLeaseInfo() error {
	now := time.Now().UTC()
	info := LeaseInfo{
		PID:        os.Getpid(),
		RunID:      r.config.RunID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(r.config.TTL),
	}

	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return os.WriteFile(r.leasePath, data, 0o644)
}

// LeaseHeldError reports a lease held by another run.
type LeaseHeldError struct {
	HolderPID int
	RunID     string
	Expired   bool
	LeasePath string
}

// Error implements the error interface.
func (e *LeaseHeldError) Error() string {
	switch {
	case e.HolderPID > 0 && e.Expired:
		return fmt.Sprintf("another reconciliation is running (PID %d) and is past its expiry; it may be hung", e.HolderPID)
	case e.HolderPID > 0:
		return fmt.Sprintf("another reconciliation is running (PID %d)", e.HolderPID)
	default:
		return fmt.Sprintf("another reconciliation is running (check %s)", e.LeasePath)
	}
}

// Unwrap returns the sentinel error.
func (e *LeaseHeldError) Unwrap() error {
	return ErrLeaseHeld
}

// Compile-time interface satisfaction check
var _ RunLeaser = (*RunLease)(nil)
