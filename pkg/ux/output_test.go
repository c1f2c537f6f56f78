// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"bytes"
	"io"
	"os"
	"strings"
	"testing"
)

// Helper to capture stdout
func captureStdout(f func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	f()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// Helper to capture stderr
func captureStderr(f func()) string {
	old := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w

	f()

	w.Close()
	os.Stderr = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String()
}

// =============================================================================
// Icon.Render Tests
// =============================================================================

func TestIcon_Render_Success(t *testing.T) {
	result := IconSuccess.Render()
	if result == "" {
		t.Error("expected non-empty result for IconSuccess")
	}
}

func TestIcon_Render_Warning(t *testing.T) {
	result := IconWarning.Render()
	if result == "" {
		t.Error("expected non-empty result for IconWarning")
	}
}

func TestIcon_Render_Error(t *testing.T) {
	result := IconError.Render()
	if result == "" {
		t.Error("expected non-empty result for IconError")
	}
}

func TestIcon_Render_Pending(t *testing.T) {
	result := IconPending.Render()
	if result == "" {
		t.Error("expected non-empty result for IconPending")
	}
}

func TestIcon_Render_Default(t *testing.T) {
	// Test icons that don't have specific styling
	icons := []Icon{IconArrow, IconBullet, IconAnchor, IconShip, IconWave}
	for _, icon := range icons {
		result := icon.Render()
		if result != string(icon) {
			t.Errorf("expected %q for %q, got %q", string(icon), icon, result)
		}
	}
}

// =============================================================================
// Title Tests
// =============================================================================

func TestTitle_MachineMode(t *testing.T) {
	// Save and restore personality
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Title("Test Title")
	})

	// In machine mode, Title should output nothing
	if output != "" {
		t.Errorf("expected no output in machine mode, got %q", output)
	}
}

func TestTitle_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Title("Test Title")
	})

	if output == "" {
		t.Error("expected styled output in full mode")
	}
}

// =============================================================================
// Success Tests
// =============================================================================

func TestSuccess_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Success("Stack reconciled")
	})

	if output != "OK: Stack reconciled\n" {
		t.Errorf("expected 'OK: Stack reconciled', got %q", output)
	}
}

func TestSuccess_MinimalMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMinimal)

	output := captureStdout(func() {
		Success("Stack reconciled")
	})

	if !strings.Contains(output, "Stack reconciled") {
		t.Errorf("expected message in output, got %q", output)
	}
}

func TestSuccess_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Success("Stack reconciled")
	})

	if !strings.Contains(output, "Stack reconciled") {
		t.Errorf("expected message in output, got %q", output)
	}
}

// =============================================================================
// Warning Tests
// =============================================================================

func TestWarning_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		Warning("Orphan container removed")
	})

	if output != "WARN: Orphan container removed\n" {
		t.Errorf("expected 'WARN: Orphan container removed', got %q", output)
	}
}

func TestWarning_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Warning("Orphan container removed")
	})

	if !strings.Contains(output, "Orphan container removed") {
		t.Errorf("expected message in output, got %q", output)
	}
}

// =============================================================================
// Error Tests
// =============================================================================

func TestError_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		Error("Pull failed")
	})

	if output != "ERROR: Pull failed\n" {
		t.Errorf("expected 'ERROR: Pull failed', got %q", output)
	}
}

func TestError_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Error("Pull failed")
	})

	if !strings.Contains(output, "Pull failed") {
		t.Errorf("expected message in output, got %q", output)
	}
}

// =============================================================================
// Info / Muted Tests
// =============================================================================

func TestInfo_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Info("Pulling 3 images")
	})

	if output != "Pulling 3 images\n" {
		t.Errorf("expected plain message, got %q", output)
	}
}

func TestMuted_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Muted("hint text")
	})

	if output != "" {
		t.Errorf("expected no output in machine mode, got %q", output)
	}
}

// =============================================================================
// Box Tests
// =============================================================================

func TestBox_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Box("Deployment", "3 services")
	})

	if output != "Deployment: 3 services\n" {
		t.Errorf("expected plain 'title: content' line, got %q", output)
	}
}

func TestBox_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Box("Deployment", "3 services")
	})

	if !strings.Contains(output, "Deployment") {
		t.Errorf("expected title in output, got %q", output)
	}
	if !strings.Contains(output, "3 services") {
		t.Errorf("expected content in output, got %q", output)
	}
}

func TestWarningBox_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStderr(func() {
		WarningBox("Partial Failure", "backend failed to start")
	})

	if output != "WARN Partial Failure: backend failed to start\n" {
		t.Errorf("unexpected machine-mode output: %q", output)
	}
}

// =============================================================================
// ServiceStatus Tests
// =============================================================================

func TestServiceStatus_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		ServiceStatus("backend", IconSuccess, "recreated")
	})

	if output != "✓\tbackend\trecreated\n" {
		t.Errorf("expected tab-separated line, got %q", output)
	}
}

func TestServiceStatus_MinimalMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMinimal)

	output := captureStdout(func() {
		ServiceStatus("backend", IconSuccess, "recreated")
	})

	if !strings.Contains(output, "backend") {
		t.Errorf("expected service name in output, got %q", output)
	}
	if strings.Contains(output, "recreated") {
		t.Errorf("minimal mode should omit detail, got %q", output)
	}
}

func TestServiceStatus_FullMode_WithDetail(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		ServiceStatus("db", IconPending, "unchanged")
	})

	if !strings.Contains(output, "db") {
		t.Errorf("expected service name in output, got %q", output)
	}
	if !strings.Contains(output, "unchanged") {
		t.Errorf("expected detail in output, got %q", output)
	}
}

func TestServiceStatus_FullMode_NoDetail(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		ServiceStatus("frontend", IconSuccess, "")
	})

	if !strings.Contains(output, "frontend") {
		t.Errorf("expected service name in output, got %q", output)
	}
	if strings.Contains(output, "()") {
		t.Errorf("empty detail should not render parens, got %q", output)
	}
}

// =============================================================================
// Summary Tests
// =============================================================================

func TestSummary_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Summary(2, 1, 3, 0)
	})

	if output != "SUMMARY: pulled=2 recreated=1 unchanged=3 failed=0\n" {
		t.Errorf("unexpected machine-mode summary: %q", output)
	}
}

func TestSummary_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityFull)

	output := captureStdout(func() {
		Summary(2, 1, 3, 1)
	})

	for _, word := range []string{"pulled", "recreated", "unchanged", "failed"} {
		if !strings.Contains(output, word) {
			t.Errorf("expected %q in summary, got %q", word, output)
		}
	}
}

// =============================================================================
// Tip Tests
// =============================================================================

func TestTip_MachineMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonalityLevel(PersonalityMachine)

	output := captureStdout(func() {
		Tip("run 'mooring status' to inspect the stack")
	})

	if output != "" {
		t.Errorf("expected no tip in machine mode, got %q", output)
	}
}

func TestTip_Disabled(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonality(Personality{Level: PersonalityFull, ShowTips: false})

	output := captureStdout(func() {
		Tip("run 'mooring status' to inspect the stack")
	})

	if output != "" {
		t.Errorf("expected no tip with ShowTips off, got %q", output)
	}
}

func TestTip_FullMode(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonality(Personality{Level: PersonalityFull, ShowTips: true, NauticalMode: true})

	output := captureStdout(func() {
		Tip("run 'mooring status' to inspect the stack")
	})

	if !strings.Contains(output, "mooring status") {
		t.Errorf("expected tip text in output, got %q", output)
	}
	if !strings.Contains(output, string(IconWave)) {
		t.Errorf("expected nautical prefix in full mode, got %q", output)
	}
}

// =============================================================================
// Flourish Tests
// =============================================================================

func TestFlourish_FullNautical(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	SetPersonality(Personality{Level: PersonalityFull, NauticalMode: true})

	got := Flourish(IconAnchor, "Reconciling stack")
	if got != string(IconAnchor)+" Reconciling stack" {
		t.Errorf("expected anchor prefix, got %q", got)
	}
}

func TestFlourish_PassThrough(t *testing.T) {
	orig := GetPersonality()
	defer SetPersonality(orig)

	tests := []struct {
		name string
		p    Personality
	}{
		{"standard level", Personality{Level: PersonalityStandard, NauticalMode: true}},
		{"nautical off", Personality{Level: PersonalityFull, NauticalMode: false}},
		{"machine", Personality{Level: PersonalityMachine, NauticalMode: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetPersonality(tt.p)
			if got := Flourish(IconShip, "text"); got != "text" {
				t.Errorf("expected plain text, got %q", got)
			}
		})
	}
}
