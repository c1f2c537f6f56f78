// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestCreateDefault verifies default config creation.
func TestCreateDefault(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, ".mooring", "mooring.yaml")

	err := createDefault(configPath)
	if err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}

	// Verify the file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	// Read and verify the config
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	var cfg MooringConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	// Verify some defaults
	if cfg.Stack.File != "mooring.yaml" {
		t.Errorf("Stack.File = %q, want %q", cfg.Stack.File, "mooring.yaml")
	}
	if cfg.Engine.PullTimeoutSeconds != 600 {
		t.Errorf("Engine.PullTimeoutSeconds = %d, want %d", cfg.Engine.PullTimeoutSeconds, 600)
	}
}

// TestCreateDefault_DirectoryCreation verifies directory is created.
func TestCreateDefault_DirectoryCreation(t *testing.T) {
	tempDir := t.TempDir()

	// Use a nested path
	configPath := filepath.Join(tempDir, "deep", "nested", "path", "mooring.yaml")

	err := createDefault(configPath)
	if err != nil {
		t.Fatalf("createDefault() failed with nested path: %v", err)
	}

	// Verify the directories were created
	dirPath := filepath.Dir(configPath)
	if _, err := os.Stat(dirPath); os.IsNotExist(err) {
		t.Fatal("nested directories were not created")
	}
}

// TestLoadFrom verifies explicit-path loading with partial overrides.
func TestLoadFrom(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "mooring.yaml")

	content := `
engine:
  pull_timeout_seconds: 120
remote:
  port: 2222
`
	if err := os.WriteFile(configPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}

	// Overridden values
	if cfg.Engine.PullTimeoutSeconds != 120 {
		t.Errorf("Engine.PullTimeoutSeconds = %d, want %d", cfg.Engine.PullTimeoutSeconds, 120)
	}
	if cfg.Remote.Port != 2222 {
		t.Errorf("Remote.Port = %d, want %d", cfg.Remote.Port, 2222)
	}

	// Untouched values keep their defaults
	if cfg.Stack.File != "mooring.yaml" {
		t.Errorf("Stack.File = %q, want default %q", cfg.Stack.File, "mooring.yaml")
	}
	if cfg.Engine.StopTimeoutSeconds != 10 {
		t.Errorf("Engine.StopTimeoutSeconds = %d, want default %d", cfg.Engine.StopTimeoutSeconds, 10)
	}
}

// TestLoadFrom_MissingFile verifies a clear error for a missing path.
func TestLoadFrom_MissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err == nil {
		t.Fatal("LoadFrom() should fail for a missing file")
	}
}

// TestLoadFrom_Malformed verifies a parse error surfaces.
func TestLoadFrom_Malformed(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "mooring.yaml")

	if err := os.WriteFile(configPath, []byte("engine: [not: a: mapping"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFrom(configPath)
	if err == nil {
		t.Fatal("LoadFrom() should fail for malformed YAML")
	}
}

// TestConfigPath verifies the config lives under the home directory.
func TestConfigPath(t *testing.T) {
	path, err := ConfigPath()
	if err != nil {
		t.Fatalf("ConfigPath() failed: %v", err)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}

	want := filepath.Join(home, ".mooring", "mooring.yaml")
	if path != want {
		t.Errorf("ConfigPath() = %q, want %q", path, want)
	}
}
