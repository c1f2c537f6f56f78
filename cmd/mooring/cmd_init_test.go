// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"testing"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
)

// The scaffold must stay valid against the loader it is fed to.
func TestStackScaffold_ParsesAndValidates(t *testing.T) {
	spec, err := config.ParseStack([]byte(stackScaffold))
	if err != nil {
		t.Fatalf("ParseStack(scaffold) error: %v", err)
	}

	if spec.Name != "shop" {
		t.Errorf("scaffold stack name = %q, want %q", spec.Name, "shop")
	}
	if got := len(spec.Services); got != 3 {
		t.Errorf("scaffold has %d services, want 3", got)
	}
	if got := len(spec.Volumes); got != 1 {
		t.Errorf("scaffold has %d volumes, want 1", got)
	}
	if got := len(spec.Routes); got != 2 {
		t.Errorf("scaffold has %d routes, want 2", got)
	}
	for _, name := range []string{"db", "backend", "frontend"} {
		if !spec.HasService(name) {
			t.Errorf("scaffold is missing service %q", name)
		}
	}
}

func TestSanitizeStackName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"shop", "shop"},
		{"My App", "my-app"},
		{"API_v2", "api_v2"},
		{"--edge--", "edge"},
		{"...", "stack"},
		{"", "stack"},
		{"9lives", "9lives"},
	}
	for _, tt := range tests {
		if got := sanitizeStackName(tt.in); got != tt.want {
			t.Errorf("sanitizeStackName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
