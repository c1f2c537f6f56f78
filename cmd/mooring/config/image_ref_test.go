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
	"testing"
)

func TestParseImageRef(t *testing.T) {
	tests := []struct {
		image     string
		registry  string
		repo      string
		tag       string
		digest    string
		wantError bool
	}{
		{
			image:    "nginx",
			registry: "docker.io",
			repo:     "library/nginx",
			tag:      "latest",
		},
		{
			image:    "nginx:1.21",
			registry: "docker.io",
			repo:     "library/nginx",
			tag:      "1.21",
		},
		{
			image:    "myuser/myrepo:v1.0",
			registry: "docker.io",
			repo:     "myuser/myrepo",
			tag:      "v1.0",
		},
		{
			image:    "ghcr.io/owner/repo:v2.0.0",
			registry: "ghcr.io",
			repo:     "owner/repo",
			tag:      "v2.0.0",
		},
		{
			image:    "localhost:5000/myimage:dev",
			registry: "localhost:5000",
			repo:     "myimage",
			tag:      "dev",
		},
		{
			image:    "nginx@sha256:abc123def456abc123def456abc123def456abc123def456abc123def456abcd",
			registry: "docker.io",
			repo:     "library/nginx",
			digest:   "sha256:abc123def456abc123def456abc123def456abc123def456abc123def456abcd",
		},
		{
			image:     "",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.image, func(t *testing.T) {
			ref, err := ParseImageRef(tt.image)

			if tt.wantError {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}

			if err != nil {
				t.Fatalf("ParseImageRef failed: %v", err)
			}

			if ref.Registry != tt.registry {
				t.Errorf("Registry = %q, want %q", ref.Registry, tt.registry)
			}
			if ref.Repository != tt.repo {
				t.Errorf("Repository = %q, want %q", ref.Repository, tt.repo)
			}
			if ref.Tag != tt.tag {
				t.Errorf("Tag = %q, want %q", ref.Tag, tt.tag)
			}
			if ref.Digest != tt.digest {
				t.Errorf("Digest = %q, want %q", ref.Digest, tt.digest)
			}
		})
	}
}

func TestParseImageRef_InvalidDigest(t *testing.T) {
	tests := []struct {
		name  string
		image string
	}{
		{
			name:  "wrong length",
			image: "nginx@sha256:abc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseImageRef(tt.image); err == nil {
				t.Error("Expected error for invalid digest")
			}
		})
	}
}

func TestImageRef_String(t *testing.T) {
	tests := []struct {
		ref      ImageRef
		expected string
	}{
		{
			ref:      ImageRef{Registry: "docker.io", Repository: "library/nginx", Tag: "latest"},
			expected: "docker.io/library/nginx:latest",
		},
		{
			ref:      ImageRef{Repository: "nginx", Tag: "1.21"},
			expected: "nginx:1.21",
		},
		{
			ref:      ImageRef{Registry: "ghcr.io", Repository: "owner/repo", Digest: "sha256:abc123"},
			expected: "ghcr.io/owner/repo@sha256:abc123",
		},
	}

	for _, tt := range tests {
		got := tt.ref.String()
		if got != tt.expected {
			t.Errorf("String() = %q, want %q", got, tt.expected)
		}
	}
}

func TestImageRef_IsPinned(t *testing.T) {
	tests := []struct {
		image    string
		expected bool
	}{
		{"nginx:latest", false},
		{"nginx:1.21", false},
		{"nginx", false},
		{"nginx@sha256:abc123def456abc123def456abc123def456abc123def456abc123def456abcd", true},
		{"ghcr.io/owner/repo:v1.0.0@sha256:abc123def456abc123def456abc123def456abc123def456abc123def456abcd", true},
	}

	for _, tt := range tests {
		t.Run(tt.image, func(t *testing.T) {
			ref, err := ParseImageRef(tt.image)
			if err != nil {
				t.Fatalf("ParseImageRef failed: %v", err)
			}
			if got := ref.IsPinned(); got != tt.expected {
				t.Errorf("IsPinned() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestImageRef_WithDigest(t *testing.T) {
	ref, err := ParseImageRef("ghcr.io/acme/backend:v1.2.0")
	if err != nil {
		t.Fatalf("ParseImageRef failed: %v", err)
	}

	digest := "sha256:abc123def456abc123def456abc123def456abc123def456abc123def456abcd"
	pinned := ref.WithDigest(digest)

	if pinned.Digest != digest {
		t.Errorf("Digest = %q, want %q", pinned.Digest, digest)
	}
	if ref.Digest != "" {
		t.Error("WithDigest should not mutate the receiver")
	}
	if pinned.Tag != "v1.2.0" {
		t.Errorf("Tag = %q, want preserved %q", pinned.Tag, "v1.2.0")
	}
}

func TestIsMutableTag(t *testing.T) {
	tests := []struct {
		tag      string
		expected bool
	}{
		{"latest", true},
		{"stable", true},
		{"dev", true},
		{"", true}, // implicit latest
		{"1.21.0", false},
		{"v1.21.0", false},
		{"2024-06-01", false},
	}

	for _, tt := range tests {
		got := IsMutableTag(tt.tag)
		if got != tt.expected {
			t.Errorf("IsMutableTag(%q) = %v, want %v", tt.tag, got, tt.expected)
		}
	}
}

func TestIsSemVer(t *testing.T) {
	tests := []struct {
		tag      string
		expected bool
	}{
		{"1.0.0", true},
		{"v1.0.0", true},
		{"1.21.3", true},
		{"v2.0.0-alpha", true},
		{"v2.0.0-beta.1", true},
		{"latest", false},
		{"stable", false},
		{"1.0", false}, // Not full semver
		{"v1", false},  // Not full semver
		{"dev", false},
	}

	for _, tt := range tests {
		got := IsSemVer(tt.tag)
		if got != tt.expected {
			t.Errorf("IsSemVer(%q) = %v, want %v", tt.tag, got, tt.expected)
		}
	}
}
