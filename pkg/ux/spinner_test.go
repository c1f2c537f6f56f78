// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"errors"
	"strings"
	"testing"
)

// =============================================================================
// NewSpinner Tests
// =============================================================================

func TestNewSpinner_ReturnsNonNil(t *testing.T) {
	spin := NewSpinner("Pulling images...")
	if spin == nil {
		t.Fatal("NewSpinner returned nil")
	}
}

func TestNewSpinner_SetsMessage(t *testing.T) {
	spin := NewSpinner("Stopping services")
	if spin.message != "Stopping services" {
		t.Errorf("expected message 'Stopping services', got %q", spin.message)
	}
}

func TestNewSpinner_DefaultsToDotsType(t *testing.T) {
	spin := NewSpinner("Pulling images...")
	if spin.spinType != SpinnerDots {
		t.Errorf("expected SpinnerDots, got %v", spin.spinType)
	}
}

func TestNewSpinner_InitializesChannels(t *testing.T) {
	spin := NewSpinner("Pulling images...")
	if spin.stop == nil {
		t.Error("stop channel should be initialized")
	}
	if spin.done == nil {
		t.Error("done channel should be initialized")
	}
}

// =============================================================================
// WithType Tests
// =============================================================================

func TestSpinner_WithType_Wave(t *testing.T) {
	spin := NewSpinner("Pulling images...").WithType(SpinnerWave)
	if spin.spinType != SpinnerWave {
		t.Errorf("expected SpinnerWave, got %v", spin.spinType)
	}
}

func TestSpinner_WithType_Anchor(t *testing.T) {
	spin := NewSpinner("Pulling images...").WithType(SpinnerAnchor)
	if spin.spinType != SpinnerAnchor {
		t.Errorf("expected SpinnerAnchor, got %v", spin.spinType)
	}
}

func TestSpinner_WithType_Compass(t *testing.T) {
	spin := NewSpinner("Pulling images...").WithType(SpinnerCompass)
	if spin.spinType != SpinnerCompass {
		t.Errorf("expected SpinnerCompass, got %v", spin.spinType)
	}
}

func TestSpinner_WithType_Chaining(t *testing.T) {
	spin := NewSpinner("Pulling images...").WithType(SpinnerWave)
	if spin == nil {
		t.Error("WithType should return the spinner for chaining")
	}
}

// =============================================================================
// Start/Stop Tests (Machine Mode)
// =============================================================================

func TestSpinner_Start_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	spin := NewSpinner("Reconciling...")
	output := captureStdout(func() {
		spin.Start()
	})

	if output != "PROGRESS: Reconciling...\n" {
		t.Errorf("expected 'PROGRESS: Reconciling...', got %q", output)
	}
}

func TestSpinner_Stop_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	spin := NewSpinner("Reconciling...")
	spin.Start()
	spin.Stop() // Should not panic or hang
}

func TestSpinner_Start_AlreadyRunning(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	spin := NewSpinner("Reconciling...")
	spin.Start()
	spin.Start() // Second start is a no-op
	spin.Stop()
}

func TestSpinner_Stop_NotRunning(t *testing.T) {
	spin := NewSpinner("Reconciling...")
	spin.Stop() // Stop without start should not panic
}

func TestSpinner_UpdateMessage(t *testing.T) {
	spin := NewSpinner("Pulling db")
	spin.UpdateMessage("Pulling backend")
	if spin.message != "Pulling backend" {
		t.Errorf("expected updated message, got %q", spin.message)
	}
}

// =============================================================================
// StopWith* Tests
// =============================================================================

func TestSpinner_StopWithSuccess(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	spin := NewSpinner("Pulling images")
	spin.Start()

	output := captureStdout(func() {
		spin.StopWithSuccess("All images pulled")
	})

	if !strings.Contains(output, "OK: All images pulled") {
		t.Errorf("expected success message, got %q", output)
	}
}

func TestSpinner_StopWithError(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	spin := NewSpinner("Pulling images")
	spin.Start()

	output := captureStderr(func() {
		spin.StopWithError("Pull failed for backend")
	})

	if !strings.Contains(output, "ERROR: Pull failed for backend") {
		t.Errorf("expected error message, got %q", output)
	}
}

// =============================================================================
// WithSpinner Tests
// =============================================================================

func TestWithSpinner_Success(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	called := false
	err := WithSpinner("Probing host", func() error {
		called = true
		return nil
	})

	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !called {
		t.Error("wrapped function was not called")
	}
}

func TestWithSpinner_Error(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	wantErr := errors.New("host unreachable")
	err := WithSpinner("Probing host", func() error {
		return wantErr
	})

	if !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped error returned, got %v", err)
	}
}

// =============================================================================
// ProgressSpinner Tests
// =============================================================================

func TestNewProgressSpinner(t *testing.T) {
	spin := NewProgressSpinner("Pulling images", 3)
	if spin.total != 3 {
		t.Errorf("expected total 3, got %d", spin.total)
	}
	if spin.current != 0 {
		t.Errorf("expected current 0, got %d", spin.current)
	}
	if spin.base != "Pulling images" {
		t.Errorf("expected base message preserved, got %q", spin.base)
	}
}

func TestProgressSpinner_Increment(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	spin := NewProgressSpinner("Pulling images", 3)
	spin.Increment()
	spin.Increment()

	if spin.current != 2 {
		t.Errorf("expected current 2, got %d", spin.current)
	}
	// The counter suffix must not stack on repeated increments.
	if spin.message != "Pulling images [2/3]" {
		t.Errorf("expected 'Pulling images [2/3]', got %q", spin.message)
	}
}
