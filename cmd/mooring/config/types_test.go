// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package config contains unit tests for configuration types.

# Testing Strategy

These tests verify:
  - Default values are correctly applied
  - Duration helpers fall back to defaults for zero and negative input
  - Archive stays disabled until a bucket is configured
*/
package config

import (
	"strings"
	"testing"
	"time"
)

// -----------------------------------------------------------------------------
// Duration Helper Tests
// -----------------------------------------------------------------------------

// TestEngineConfig_PullTimeout verifies default fallback.
func TestEngineConfig_PullTimeout(t *testing.T) {
	tests := []struct {
		name     string
		config   EngineConfig
		expected time.Duration
	}{
		{
			name:     "returns configured value",
			config:   EngineConfig{PullTimeoutSeconds: 120},
			expected: 2 * time.Minute,
		},
		{
			name:     "returns default when zero",
			config:   EngineConfig{},
			expected: 10 * time.Minute,
		},
		{
			name:     "returns default when negative",
			config:   EngineConfig{PullTimeoutSeconds: -5},
			expected: 10 * time.Minute,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.PullTimeout(); got != tt.expected {
				t.Errorf("PullTimeout() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestEngineConfig_StopTimeout verifies default fallback.
func TestEngineConfig_StopTimeout(t *testing.T) {
	tests := []struct {
		name     string
		config   EngineConfig
		expected time.Duration
	}{
		{
			name:     "returns configured value",
			config:   EngineConfig{StopTimeoutSeconds: 30},
			expected: 30 * time.Second,
		},
		{
			name:     "returns default when zero",
			config:   EngineConfig{},
			expected: 10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.StopTimeout(); got != tt.expected {
				t.Errorf("StopTimeout() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// TestRemoteConfig_ConnectTimeout verifies default fallback.
func TestRemoteConfig_ConnectTimeout(t *testing.T) {
	tests := []struct {
		name     string
		config   RemoteConfig
		expected time.Duration
	}{
		{
			name:     "returns configured value",
			config:   RemoteConfig{ConnectTimeoutSeconds: 3},
			expected: 3 * time.Second,
		},
		{
			name:     "returns default when zero",
			config:   RemoteConfig{},
			expected: 10 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.ConnectTimeout(); got != tt.expected {
				t.Errorf("ConnectTimeout() = %v, want %v", got, tt.expected)
			}
		})
	}
}

// -----------------------------------------------------------------------------
// DefaultConfig Tests
// -----------------------------------------------------------------------------

// TestDefaultConfig_EngineDefaults verifies engine configuration.
func TestDefaultConfig_EngineDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Engine.Host != "" {
		t.Errorf("Engine.Host = %q, want empty (platform default)", cfg.Engine.Host)
	}

	if cfg.Engine.PullTimeoutSeconds != 600 {
		t.Errorf("Engine.PullTimeoutSeconds = %d, want %d", cfg.Engine.PullTimeoutSeconds, 600)
	}

	if cfg.Engine.StopTimeoutSeconds != 10 {
		t.Errorf("Engine.StopTimeoutSeconds = %d, want %d", cfg.Engine.StopTimeoutSeconds, 10)
	}
}

// TestDefaultConfig_StackDefaults verifies stack file defaults.
func TestDefaultConfig_StackDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Stack.File != "mooring.yaml" {
		t.Errorf("Stack.File = %q, want %q", cfg.Stack.File, "mooring.yaml")
	}

	if cfg.Stack.LabelNamespace != "ai.aleutian.mooring" {
		t.Errorf("Stack.LabelNamespace = %q, want %q", cfg.Stack.LabelNamespace, "ai.aleutian.mooring")
	}
}

// TestDefaultConfig_HistoryDefaults verifies run record retention.
func TestDefaultConfig_HistoryDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.History.Dir == "" {
		t.Error("History.Dir should not be empty")
	}

	if !strings.Contains(cfg.History.Dir, ".mooring") {
		t.Errorf("History.Dir = %q, want a path under .mooring", cfg.History.Dir)
	}

	if cfg.History.MaxRuns != 200 {
		t.Errorf("History.MaxRuns = %d, want %d", cfg.History.MaxRuns, 200)
	}
}

// TestDefaultConfig_ArchiveDisabled verifies archival starts disabled.
func TestDefaultConfig_ArchiveDisabled(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Archive.Bucket != "" {
		t.Errorf("Archive.Bucket = %q, want empty (disabled)", cfg.Archive.Bucket)
	}
}

// TestDefaultConfig_ProxyDefaults verifies proxy render defaults.
func TestDefaultConfig_ProxyDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Proxy.Output != "proxy.conf" {
		t.Errorf("Proxy.Output = %q, want %q", cfg.Proxy.Output, "proxy.conf")
	}

	if cfg.Proxy.ListenPort != 80 {
		t.Errorf("Proxy.ListenPort = %d, want %d", cfg.Proxy.ListenPort, 80)
	}
}

// TestDefaultConfig_RemoteDefaults verifies SSH defaults.
func TestDefaultConfig_RemoteDefaults(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Remote.Port != 22 {
		t.Errorf("Remote.Port = %d, want %d", cfg.Remote.Port, 22)
	}

	if cfg.Remote.ConnectTimeoutSeconds != 10 {
		t.Errorf("Remote.ConnectTimeoutSeconds = %d, want %d", cfg.Remote.ConnectTimeoutSeconds, 10)
	}
}
