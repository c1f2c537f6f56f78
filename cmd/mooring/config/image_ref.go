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
	"fmt"
	"regexp"
	"strings"
)

// ImageRef is a parsed container image reference.
type ImageRef struct {
	Registry   string // e.g. "docker.io", "ghcr.io", "localhost:5000"
	Repository string // e.g. "library/postgres", "acme/backend"
	Tag        string // e.g. "16.3", "latest"; empty when digest-only
	Digest     string // e.g. "sha256:abc..."; empty when not pinned
}

// ParseImageRef splits an image reference into registry, repository,
// tag, and digest components. Bare names default to docker.io/library,
// a first segment containing "." or ":" is treated as a registry host,
// and a trailing @sha256:... digest is split off before the tag.
func ParseImageRef(image string) (ImageRef, error) {
	if image == "" {
		return ImageRef{}, fmt.Errorf("empty image reference")
	}

	ref := ImageRef{}
	remaining := image

	if idx := strings.Index(remaining, "@sha256:"); idx != -1 {
		ref.Digest = remaining[idx+1:]
		remaining = remaining[:idx]
	}

	if idx := strings.LastIndex(remaining, ":"); idx != -1 {
		possibleTag := remaining[idx+1:]
		// A ":" inside the registry host (port) has a "/" after it.
		if !strings.Contains(possibleTag, "/") {
			ref.Tag = possibleTag
			remaining = remaining[:idx]
		}
	}

	if ref.Tag == "" && ref.Digest == "" {
		ref.Tag = "latest"
	}

	parts := strings.SplitN(remaining, "/", 2)
	if len(parts) == 2 && (strings.Contains(parts[0], ".") || strings.Contains(parts[0], ":")) {
		ref.Registry = parts[0]
		ref.Repository = parts[1]
	} else {
		ref.Registry = "docker.io"
		ref.Repository = remaining
		if !strings.Contains(remaining, "/") {
			ref.Repository = "library/" + remaining
		}
	}

	if ref.Digest != "" && !isValidDigest(ref.Digest) {
		return ImageRef{}, fmt.Errorf("invalid digest %q: expected sha256: prefix and 64 hex characters", ref.Digest)
	}

	return ref, nil
}

// String reconstructs the full reference.
func (r ImageRef) String() string {
	var sb strings.Builder
	if r.Registry != "" {
		sb.WriteString(r.Registry)
		sb.WriteString("/")
	}
	sb.WriteString(r.Repository)
	if r.Tag != "" {
		sb.WriteString(":")
		sb.WriteString(r.Tag)
	}
	if r.Digest != "" {
		sb.WriteString("@")
		sb.WriteString(r.Digest)
	}
	return sb.String()
}

// IsPinned reports whether the reference carries a content digest.
func (r ImageRef) IsPinned() bool {
	return r.Digest != ""
}

// WithDigest returns a copy of the reference pinned to the given digest.
func (r ImageRef) WithDigest(digest string) ImageRef {
	pinned := r
	pinned.Digest = digest
	return pinned
}

func isValidDigest(digest string) bool {
	// "sha256:" plus 64 hex characters
	return strings.HasPrefix(digest, "sha256:") && len(digest) == 71
}

var mutableTags = map[string]bool{
	"latest":  true,
	"main":    true,
	"master":  true,
	"dev":     true,
	"develop": true,
	"staging": true,
	"edge":    true,
	"nightly": true,
	"stable":  true,
}

// IsMutableTag reports whether a tag is conventionally re-pointed at
// new content. Semantic versions are treated as immutable.
func IsMutableTag(tag string) bool {
	if tag == "" {
		return true
	}
	return mutableTags[strings.ToLower(tag)]
}

var semVerPattern = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)

// IsSemVer reports whether a tag looks like a full semantic version.
func IsSemVer(tag string) bool {
	return semVerPattern.MatchString(tag)
}
