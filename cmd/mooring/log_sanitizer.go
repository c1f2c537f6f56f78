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
Package main provides LogSanitizer for credential redaction.

Secrets are kept out of logs at the source: the SecretsManager never
logs values and the engine auth header is never echoed. The sanitizer
covers the remaining path, text that arrives from OUTSIDE the program
and may embed credential material anyway. SSH dial errors carry the
deploy host, remote stderr can echo environment assignments, and a
misconfigured service might print a private key. Everything written to
the operator or to a log from such foreign text goes through Sanitize
first.

# Redaction Rules

  - Literal values registered at run start (the deploy host) are
    replaced wherever they appear.
  - Assignments of MOORING_* variables keep the name, lose the value.
  - PEM private key blocks are collapsed to a single placeholder.
  - Generic credential assignments (password=, token:, bearer ...)
    lose the value.
*/
package main

import (
	"regexp"
	"sort"
	"strings"
	"sync"
)

// RedactedPlaceholder replaces secret material in sanitized text.
const RedactedPlaceholder = "[REDACTED]"

// redactedKeyPlaceholder replaces whole private key blocks.
const redactedKeyPlaceholder = "[REDACTED PRIVATE KEY]"

// minLiteralLength is the shortest literal the sanitizer will register.
// Shorter values would redact unrelated text.
const minLiteralLength = 4

// -----------------------------------------------------------------------------
// Sanitizer
// -----------------------------------------------------------------------------

// redactionRule pairs a pattern with its replacement text.
type redactionRule struct {
	pattern     *regexp.Regexp
	replacement string
}

// LogSanitizer redacts credential material from text before it reaches
// a log or the terminal.
//
// # Thread Safety
//
// Safe for concurrent use. Patterns are compiled once at construction;
// literal registration takes a write lock.
type LogSanitizer struct {
	rules    []redactionRule
	literals []string
	mu       sync.RWMutex
}

// NewLogSanitizer creates a sanitizer with the built-in redaction
// rules and no registered literals.
func NewLogSanitizer() *LogSanitizer {
	return &LogSanitizer{rules: buildRedactionRules()}
}

// buildRedactionRules compiles the rule set once.
func buildRedactionRules() []redactionRule {
	keepName := "${1}" + RedactedPlaceholder
	return []redactionRule{
		// MOORING_* assignments: keep the variable name, drop the value.
		{regexp.MustCompile(`(MOORING_[A-Z_]+\s*=\s*)\S+`), keepName},
		// PEM blocks, including ones cut off mid-stream.
		{regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?(-----END [A-Z ]*PRIVATE KEY-----|$)`), redactedKeyPlaceholder},
		// Engine auth headers quoted in errors or verbose HTTP dumps.
		{regexp.MustCompile(`(?i)(x-registry-auth["':=\s]+)[A-Za-z0-9+/_=-]{8,}`), keepName},
		// Generic credential assignments.
		{regexp.MustCompile(`(?i)((?:password|passwd|token|passphrase|secret|api[_-]?key)["']?\s*[:=]\s*["']?)[^\s"',;&]+`), keepName},
		{regexp.MustCompile(`(?i)(authorization["':=\s]+(?:bearer|basic)\s+)\S+`), keepName},
	}
}

// RegisterSecret registers a literal value for redaction wherever it
// appears. Empty and very short values are ignored.
func (s *LogSanitizer) RegisterSecret(value string) {
	if len(value) < minLiteralLength {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.literals {
		if existing == value {
			return
		}
	}
	s.literals = append(s.literals, value)
	// Longest first, so overlapping literals redact cleanly.
	sort.Slice(s.literals, func(i, j int) bool {
		return len(s.literals[i]) > len(s.literals[j])
	})
}

// Sanitize returns text with all credential material redacted.
func (s *LogSanitizer) Sanitize(text string) string {
	if text == "" {
		return text
	}

	s.mu.RLock()
	for _, literal := range s.literals {
		text = strings.ReplaceAll(text, literal, RedactedPlaceholder)
	}
	s.mu.RUnlock()

	for _, rule := range s.rules {
		text = rule.pattern.ReplaceAllString(text, rule.replacement)
	}
	return text
}

// SanitizeError is a convenience wrapper for error text. Returns the
// empty string for a nil error.
func (s *LogSanitizer) SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return s.Sanitize(err.Error())
}

// ContainsSecret reports whether text holds material the sanitizer
// would redact. Useful for assertions without performing redaction.
func (s *LogSanitizer) ContainsSecret(text string) bool {
	if text == "" {
		return false
	}

	s.mu.RLock()
	for _, literal := range s.literals {
		if strings.Contains(text, literal) {
			s.mu.RUnlock()
			return true
		}
	}
	s.mu.RUnlock()

	for _, rule := range s.rules {
		if rule.pattern.MatchString(text) {
			return true
		}
	}
	return false
}
