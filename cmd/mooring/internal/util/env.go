// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package util

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// =============================================================================
// Package-level Variables
// =============================================================================

// envVarKeyPattern validates environment variable key names.
// Keys must:
//   - Start with a letter or underscore
//   - Contain only alphanumeric characters and underscores
//   - Not be empty
//
// This follows POSIX naming conventions and prevents shell metacharacter
// injection when values are passed to container engines or remote shells.
var envVarKeyPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ErrInvalidEnvVarKey is returned when an environment variable key is invalid.
var ErrInvalidEnvVarKey = fmt.Errorf("invalid environment variable key")

// =============================================================================
// EnvVar Type
// =============================================================================

// EnvVar represents a single container environment variable.
//
// # Description
//
// A typed representation of an environment variable with validation
// and sensitivity marking for secure logging. Keys are validated
// against POSIX naming conventions. Service environments declared in
// a stack file and injected secrets both flow through this type so
// credentials are redacted uniformly.
//
// # Thread Safety
//
// EnvVar is safe for concurrent reads. Do not modify after creation.
//
// # Example
//
//	ev := EnvVar{Key: "POSTGRES_PASSWORD", Value: "s3cret", Sensitive: true}
//	fmt.Println(ev.Redacted()) // POSTGRES_PASSWORD=[REDACTED]
//
// # Limitations
//
//   - Value is not validated (can be empty or contain any characters)
//   - Key validation only happens when Validate() is called explicitly
type EnvVar struct {
	// Key is the environment variable name.
	// Must match pattern: ^[a-zA-Z_][a-zA-Z0-9_]*$
	Key string

	// Value is the environment variable value.
	// May be empty string (valid in POSIX).
	Value string

	// Sensitive indicates this value should be redacted in logs.
	Sensitive bool
}

// String returns the KEY=VALUE format used by container engines.
func (e EnvVar) String() string {
	return fmt.Sprintf("%s=%s", e.Key, e.Value)
}

// Redacted returns KEY=[REDACTED] for sensitive vars, otherwise String().
func (e EnvVar) Redacted() string {
	if e.Sensitive {
		return fmt.Sprintf("%s=[REDACTED]", e.Key)
	}
	return e.String()
}

// Validate checks the key against POSIX naming conventions.
func (e EnvVar) Validate() error {
	if !envVarKeyPattern.MatchString(e.Key) {
		return fmt.Errorf("%w: %q must match pattern [a-zA-Z_][a-zA-Z0-9_]*", ErrInvalidEnvVarKey, e.Key)
	}
	return nil
}

// =============================================================================
// EnvVars Type
// =============================================================================

// EnvVars is a validated, ordered collection of environment variables.
//
// # Description
//
// Provides a typed container for a service's environment with
// validation, merging, and redaction. The collection preserves
// insertion order so the environment passed to container creation is
// identical from run to run, which keeps unchanged services from
// being recreated spuriously.
//
// # Thread Safety
//
// EnvVars is NOT thread-safe. Do not modify concurrently.
// For concurrent access, use external synchronization or Clone().
//
// # Example
//
//	envs, err := FromMap(svc.Env, nil)
//	if err != nil {
//	    return err
//	}
//	envs.Add("REGISTRY_TOKEN", token, true)
//	logger.Debug("service environment", "env", envs.RedactedSlice())
//
// # Limitations
//
//   - Duplicate keys are allowed (last wins in ToMap/Get)
//   - Not thread-safe for concurrent modifications
type EnvVars struct {
	vars []EnvVar
}

// NewEnvVars creates a validated EnvVars collection.
// Returns an error if any key is invalid.
func NewEnvVars(vars ...EnvVar) (*EnvVars, error) {
	for _, v := range vars {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	return &EnvVars{vars: vars}, nil
}

// MustNewEnvVars creates EnvVars or panics. Use only for compile-time
// constants where the keys are known valid.
func MustNewEnvVars(vars ...EnvVar) *EnvVars {
	ev, err := NewEnvVars(vars...)
	if err != nil {
		panic(err)
	}
	return ev
}

// EmptyEnvVars returns an empty EnvVars.
func EmptyEnvVars() *EnvVars {
	return &EnvVars{vars: []EnvVar{}}
}

// =============================================================================
// EnvVars Methods
// =============================================================================

// Add appends a validated environment variable.
//
// # Description
//
// Adds a new environment variable to the collection after validation.
// The variable is appended to the end. If the key is invalid,
// returns an error and does not add the variable.
//
// # Inputs
//
//   - key: Environment variable name
//   - value: Environment variable value
//   - sensitive: Whether to redact in logs
//
// # Outputs
//
//   - error: Non-nil if key is invalid
func (e *EnvVars) Add(key, value string, sensitive bool) error {
	ev := EnvVar{Key: key, Value: value, Sensitive: sensitive}
	if err := ev.Validate(); err != nil {
		return err
	}
	e.vars = append(e.vars, ev)
	return nil
}

// Get returns the value for a key, or empty string if not found.
// If there are duplicate keys, returns the last value (matching shell
// semantics). Returns empty string if the receiver is nil.
func (e *EnvVars) Get(key string) string {
	if e == nil {
		return ""
	}
	for i := len(e.vars) - 1; i >= 0; i-- {
		if e.vars[i].Key == key {
			return e.vars[i].Value
		}
	}
	return ""
}

// Has returns true if the key exists.
func (e *EnvVars) Has(key string) bool {
	if e == nil {
		return false
	}
	for _, v := range e.vars {
		if v.Key == key {
			return true
		}
	}
	return false
}

// Len returns the number of environment variables.
func (e *EnvVars) Len() int {
	if e == nil {
		return 0
	}
	return len(e.vars)
}

// ToSlice converts to []string in KEY=VALUE format, the shape container
// engine APIs and exec.Cmd.Env expect. Returns nil if receiver is nil.
func (e *EnvVars) ToSlice() []string {
	if e == nil {
		return nil
	}
	result := make([]string, len(e.vars))
	for i, v := range e.vars {
		result[i] = v.String()
	}
	return result
}

// ToMap converts to map[string]string. If there are duplicate keys,
// the last value wins. Returns nil if receiver is nil.
func (e *EnvVars) ToMap() map[string]string {
	if e == nil {
		return nil
	}
	result := make(map[string]string, len(e.vars))
	for _, v := range e.vars {
		result[v.Key] = v.Value
	}
	return result
}

// RedactedSlice returns []string with sensitive values masked.
// Safe for logging. Returns nil if receiver is nil.
func (e *EnvVars) RedactedSlice() []string {
	if e == nil {
		return nil
	}
	result := make([]string, len(e.vars))
	for i, v := range e.vars {
		result[i] = v.Redacted()
	}
	return result
}

// Merge combines two EnvVars, with other taking precedence.
//
// # Description
//
// Creates a new EnvVars containing all variables from both collections.
// If the same key exists in both, the value from 'other' is used. The
// receiver's key order is preserved and other's new keys are appended in
// other's order, so merged environments are deterministic. Handles nil
// receivers and nil other gracefully.
//
// # Inputs
//
//   - other: EnvVars to merge (takes precedence)
//
// # Outputs
//
//   - *EnvVars: New merged collection
//
// # Example
//
//	declared := MustNewEnvVars(EnvVar{Key: "POSTGRES_DB", Value: "app"})
//	secrets := MustNewEnvVars(EnvVar{Key: "POSTGRES_PASSWORD", Value: pw, Sensitive: true})
//	merged := declared.Merge(secrets)
func (e *EnvVars) Merge(other *EnvVars) *EnvVars {
	if other == nil {
		if e == nil {
			return EmptyEnvVars()
		}
		return e.Clone()
	}
	if e == nil {
		return other.Clone()
	}

	overrides := make(map[string]EnvVar, len(other.vars))
	for _, v := range other.vars {
		overrides[v.Key] = v
	}

	result := &EnvVars{vars: make([]EnvVar, 0, len(e.vars)+len(other.vars))}
	seen := make(map[string]bool, len(e.vars))
	for _, v := range e.vars {
		if ov, ok := overrides[v.Key]; ok {
			result.vars = append(result.vars, ov)
		} else {
			result.vars = append(result.vars, v)
		}
		seen[v.Key] = true
	}
	for _, v := range other.vars {
		if !seen[v.Key] {
			result.vars = append(result.vars, v)
		}
	}
	return result
}

// Clone returns a deep copy. Returns nil if receiver is nil.
func (e *EnvVars) Clone() *EnvVars {
	if e == nil {
		return nil
	}
	result := &EnvVars{vars: make([]EnvVar, len(e.vars))}
	copy(result.vars, e.vars)
	return result
}

// =============================================================================
// Utility Functions
// =============================================================================

// FromMap creates EnvVars from a map[string]string.
//
// # Description
//
// Converts a service's declared environment map to EnvVars with
// validation. Keys are sorted so the resulting order is stable across
// runs regardless of map iteration order. Keys containing common
// credential patterns (TOKEN, SECRET, KEY, PASSWORD, CREDENTIAL, AUTH)
// are automatically marked as sensitive; additional sensitive keys can
// be specified.
//
// # Inputs
//
//   - m: Map of environment variables (may be nil)
//   - sensitiveKeys: Additional keys that should be marked as sensitive
//
// # Outputs
//
//   - *EnvVars: Validated collection in sorted key order
//   - error: Non-nil if any key is invalid
//
// # Example
//
//	envs, err := FromMap(svc.Env, []string{"PGDATA_SEED"})
func FromMap(m map[string]string, sensitiveKeys []string) (*EnvVars, error) {
	if m == nil {
		return EmptyEnvVars(), nil
	}

	sensitiveSet := make(map[string]bool)
	for _, k := range sensitiveKeys {
		sensitiveSet[k] = true
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	vars := make([]EnvVar, 0, len(m))
	for _, k := range keys {
		vars = append(vars, EnvVar{
			Key:       k,
			Value:     m[k],
			Sensitive: sensitiveSet[k] || isSensitiveKey(k),
		})
	}

	return NewEnvVars(vars...)
}

// isSensitiveKey detects common credential key patterns. Used by FromMap
// to automatically mark sensitive environment variables.
func isSensitiveKey(key string) bool {
	upper := strings.ToUpper(key)
	return strings.Contains(upper, "TOKEN") ||
		strings.Contains(upper, "SECRET") ||
		strings.Contains(upper, "KEY") ||
		strings.Contains(upper, "PASSWORD") ||
		strings.Contains(upper, "CREDENTIAL") ||
		strings.Contains(upper, "AUTH")
}
