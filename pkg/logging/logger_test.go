// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package logging

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// =============================================================================
// Level Tests
// =============================================================================

func TestLevel_String(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(99), "UNKNOWN"},
		{Level(-1), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got := tt.level.String()
			if got != tt.want {
				t.Errorf("Level.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_toSlogLevel(t *testing.T) {
	tests := []struct {
		level Level
		want  slog.Level
	}{
		{LevelDebug, slog.LevelDebug},
		{LevelInfo, slog.LevelInfo},
		{LevelWarn, slog.LevelWarn},
		{LevelError, slog.LevelError},
		{Level(99), slog.LevelInfo}, // Unknown defaults to Info
		{Level(-1), slog.LevelInfo}, // Unknown defaults to Info
	}

	for _, tt := range tests {
		t.Run(tt.level.String(), func(t *testing.T) {
			got := tt.level.toSlogLevel()
			if got != tt.want {
				t.Errorf("Level.toSlogLevel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestLevel_Constants(t *testing.T) {
	// Verify ordering: Debug < Info < Warn < Error
	if LevelDebug >= LevelInfo {
		t.Error("LevelDebug should be < LevelInfo")
	}
	if LevelInfo >= LevelWarn {
		t.Error("LevelInfo should be < LevelWarn")
	}
	if LevelWarn >= LevelError {
		t.Error("LevelWarn should be < LevelError")
	}
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNew_DefaultConfig(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.slog == nil {
		t.Error("logger.slog is nil")
	}
}

func TestNew_WithService(t *testing.T) {
	logger := New(Config{
		Service: "deployer",
		Quiet:   true,
	})
	defer logger.Close()

	if logger.config.Service != "deployer" {
		t.Errorf("Service = %v, want deployer", logger.config.Service)
	}
}

func TestNew_WithLogDir(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "test",
		Quiet:   true,
	})
	defer logger.Close()

	if logger.file == nil {
		t.Fatal("logger.file is nil when LogDir is set")
	}

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read log dir: %v", err)
	}
	if len(files) == 0 {
		t.Error("No log file created in LogDir")
	}
}

func TestNew_WithLogDir_NoService(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir: tmpDir,
		Quiet:  true,
	})
	defer logger.Close()

	files, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("Failed to read log dir: %v", err)
	}

	found := false
	for _, f := range files {
		if strings.HasPrefix(f.Name(), "mooring_") {
			found = true
			break
		}
	}
	if !found {
		t.Error("Expected log file with 'mooring_' prefix")
	}
}

func TestNew_WithLogDir_InvalidPath(t *testing.T) {
	logger := New(Config{
		LogDir: string([]byte{0}) + "/cannot/exist",
		Quiet:  true,
	})
	defer logger.Close()

	// Logger stays usable, just without file output.
	if logger.file != nil {
		t.Error("logger.file should be nil for an unusable path")
	}
	logger.Info("still works")
}

func TestDefault(t *testing.T) {
	logger := Default()
	defer logger.Close()

	if logger.config.Level != LevelInfo {
		t.Errorf("Default level = %v, want LevelInfo", logger.config.Level)
	}
	if logger.config.Service != "mooring" {
		t.Errorf("Default service = %v, want mooring", logger.config.Service)
	}
}

// =============================================================================
// Output Tests
// =============================================================================

func TestLogger_FileOutput(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		LogDir:  tmpDir,
		Service: "reconcile",
		Quiet:   true,
	})

	logger.Info("pull complete", "image", "registry.example.com/app/backend:v3")
	logger.Error("start failed", "service", "frontend")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	files, err := os.ReadDir(tmpDir)
	if err != nil || len(files) == 0 {
		t.Fatalf("Expected a log file, err=%v", err)
	}
	data, err := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "pull complete") {
		t.Errorf("File log missing info entry: %q", content)
	}
	if !strings.Contains(content, "start failed") {
		t.Errorf("File log missing error entry: %q", content)
	}
	if !strings.Contains(content, `"service":"reconcile"`) {
		t.Errorf("File log missing service attribute: %q", content)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tmpDir := t.TempDir()
	logger := New(Config{
		Level:  LevelWarn,
		LogDir: tmpDir,
		Quiet:  true,
	})

	logger.Debug("dropped debug")
	logger.Info("dropped info")
	logger.Warn("kept warn")

	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	files, _ := os.ReadDir(tmpDir)
	if len(files) == 0 {
		t.Fatal("Expected a log file")
	}
	data, _ := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))

	content := string(data)
	if strings.Contains(content, "dropped") {
		t.Errorf("Filtered entries leaked to file: %q", content)
	}
	if !strings.Contains(content, "kept warn") {
		t.Errorf("Warn entry missing from file: %q", content)
	}
}

func TestLogger_With(t *testing.T) {
	tmpDir := t.TempDir()
	parent := New(Config{LogDir: tmpDir, Quiet: true})
	child := parent.With("run_id", "abc-123")

	child.Info("child entry")
	parent.Info("parent entry")

	if err := parent.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	files, _ := os.ReadDir(tmpDir)
	if len(files) == 0 {
		t.Fatal("Expected a log file")
	}
	data, _ := os.ReadFile(filepath.Join(tmpDir, files[0].Name()))

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 log lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "abc-123") {
		t.Errorf("Child entry missing inherited attribute: %q", lines[0])
	}
	if strings.Contains(lines[1], "abc-123") {
		t.Errorf("Parent entry should not carry child attribute: %q", lines[1])
	}
}

func TestLogger_Slog(t *testing.T) {
	logger := New(Config{Quiet: true})
	defer logger.Close()

	if logger.Slog() == nil {
		t.Error("Slog() returned nil")
	}
}

// =============================================================================
// Exporter Tests
// =============================================================================

func TestLogger_ExporterReceivesEntries(t *testing.T) {
	exporter := NewBufferedExporter()
	logger := New(Config{
		Exporter: exporter,
		Service:  "cli",
		Quiet:    true,
	})

	logger.Info("reconcile finished", "status", "Success")

	// Export runs on a goroutine; wait briefly for delivery.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(exporter.Entries()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	logger.Close()

	entries := exporter.Entries()
	if len(entries) != 1 {
		t.Fatalf("Expected 1 exported entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.Message != "reconcile finished" {
		t.Errorf("Message = %q, want 'reconcile finished'", entry.Message)
	}
	if entry.Service != "cli" {
		t.Errorf("Service = %q, want cli", entry.Service)
	}
	if entry.Level != LevelInfo {
		t.Errorf("Level = %v, want LevelInfo", entry.Level)
	}
	if entry.Attrs["status"] != "Success" {
		t.Errorf("Attrs = %v, want status=Success", entry.Attrs)
	}
}

func TestWriterExporter(t *testing.T) {
	var buf bytes.Buffer
	var mu sync.Mutex
	exporter := NewWriterExporter(&syncWriter{w: &buf, mu: &mu})

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     LevelWarn,
		Message:   "orphan removed",
		Attrs:     map[string]any{"name": "legacy-cache"},
	}
	if err := exporter.Export(context.Background(), entry); err != nil {
		t.Fatalf("Export() error: %v", err)
	}

	mu.Lock()
	out := buf.String()
	mu.Unlock()

	if !strings.Contains(out, "orphan removed") {
		t.Errorf("Output missing message: %q", out)
	}
	if !strings.Contains(out, "WARN") {
		t.Errorf("Output missing level: %q", out)
	}
}

func TestNopExporter(t *testing.T) {
	exporter := &NopExporter{}

	if err := exporter.Export(context.Background(), LogEntry{}); err != nil {
		t.Errorf("Export() error: %v", err)
	}
	if err := exporter.Flush(context.Background()); err != nil {
		t.Errorf("Flush() error: %v", err)
	}
	if err := exporter.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

// syncWriter guards a bytes.Buffer against the exporter goroutine.
type syncWriter struct {
	w  *bytes.Buffer
	mu *sync.Mutex
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// =============================================================================
// Helper Tests
// =============================================================================

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("No home directory available")
	}

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"tilde prefix", "~/.mooring/logs", filepath.Join(home, ".mooring/logs")},
		{"absolute", "/var/log/mooring", "/var/log/mooring"},
		{"relative", "logs", "logs"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := expandPath(tt.in)
			if got != tt.want {
				t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestArgsToMap(t *testing.T) {
	tests := []struct {
		name string
		args []any
		want map[string]any
	}{
		{
			name: "pairs",
			args: []any{"service", "db", "attempt", 2},
			want: map[string]any{"service": "db", "attempt": 2},
		},
		{
			name: "odd trailing key dropped",
			args: []any{"service", "db", "dangling"},
			want: map[string]any{"service": "db"},
		},
		{
			name: "non-string key skipped",
			args: []any{42, "x", "ok", true},
			want: map[string]any{"ok": true},
		},
		{
			name: "empty",
			args: nil,
			want: map[string]any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := argsToMap(tt.args)
			if len(got) != len(tt.want) {
				t.Fatalf("argsToMap() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("argsToMap()[%q] = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}
