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

import (
	"errors"
	"fmt"
	"testing"
)

// =============================================================================
// CommandError.Error() Tests
// =============================================================================

// TestCommandError_Error verifies message formats.
func TestCommandError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CommandError
		want string
	}{
		{
			name: "with stderr",
			err:  &CommandError{Command: "nginx -t", ExitCode: 1, Stderr: "unexpected end of file"},
			want: "nginx -t (exit 1): unexpected end of file",
		},
		{
			name: "with wrapped error only",
			err:  &CommandError{Command: "systemctl reload nginx", ExitCode: 1, Wrapped: errors.New("session closed")},
			want: "systemctl reload nginx (exit 1): session closed",
		},
		{
			name: "bare exit code",
			err:  &CommandError{Command: "true", ExitCode: 0},
			want: "true (exit 0)",
		},
		{
			name: "stderr wins over wrapped",
			err:  &CommandError{Command: "ls", ExitCode: 2, Stderr: "not found", Wrapped: errors.New("other")},
			want: "ls (exit 2): not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

// =============================================================================
// Unwrap Tests
// =============================================================================

// TestCommandError_Unwrap verifies errors.Is works through the chain.
func TestCommandError_Unwrap(t *testing.T) {
	original := errors.New("connection refused")
	cmdErr := NewCommandError("nginx -t", -1, "", original)

	if !errors.Is(cmdErr, original) {
		t.Error("errors.Is() should find the wrapped error")
	}

	bare := NewCommandError("true", 0, "", nil)
	if bare.Unwrap() != nil {
		t.Error("Unwrap() should return nil when nothing is wrapped")
	}
}

// TestCommandError_As verifies errors.As extraction from a wrapped chain.
func TestCommandError_As(t *testing.T) {
	cmdErr := NewCommandError("nginx -s reload", 1, "invalid pid", nil)
	wrapped := fmt.Errorf("proxy apply failed: %w", cmdErr)

	var extracted *CommandError
	if !errors.As(wrapped, &extracted) {
		t.Fatal("errors.As() should extract *CommandError")
	}
	if extracted.Stderr != "invalid pid" {
		t.Errorf("extracted Stderr = %q, want %q", extracted.Stderr, "invalid pid")
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

// TestNewCommandError verifies stderr trimming.
func TestNewCommandError(t *testing.T) {
	err := NewCommandError("nginx -t", 1, "  failed \n", nil)

	if err.Stderr != "failed" {
		t.Errorf("Stderr = %q, want trimmed %q", err.Stderr, "failed")
	}
	if !err.HasStderr() {
		t.Error("HasStderr() should be true")
	}

	empty := NewCommandError("true", 0, "   \n", nil)
	if empty.HasStderr() {
		t.Error("HasStderr() should be false for whitespace-only stderr")
	}
}

// =============================================================================
// ExtractStderr Tests
// =============================================================================

// TestExtractStderr verifies stderr extraction through error chains.
func TestExtractStderr(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil error", nil, ""},
		{"plain error", errors.New("boom"), ""},
		{
			"direct command error",
			NewCommandError("nginx -t", 1, "syntax error", nil),
			"syntax error",
		},
		{
			"wrapped command error",
			fmt.Errorf("reload failed: %w", NewCommandError("nginx -s reload", 1, "no pid", nil)),
			"no pid",
		},
		{
			"command error without stderr",
			NewCommandError("true", 1, "", errors.New("inner")),
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractStderr(tt.err); got != tt.want {
				t.Errorf("ExtractStderr() = %q, want %q", got, tt.want)
			}
		})
	}
}
