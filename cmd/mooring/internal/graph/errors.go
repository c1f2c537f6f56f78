// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for ordering failures.
var (
	ErrCycleDetected = errors.New("dependency cycle detected")
	ErrUnknownNode   = errors.New("unknown node")
	ErrDuplicateNode = errors.New("duplicate node")
)

// CycleError reports a dependency cycle with the offending path.
type CycleError struct {
	// Path lists the cycle in dependency direction, with the first
	// node repeated at the end, e.g. [a b c a].
	Path []string
}

// Error implements the error interface.
func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle: %s", strings.Join(e.Path, " -> "))
}

// Unwrap returns the sentinel error.
func (e *CycleError) Unwrap() error {
	return ErrCycleDetected
}

// UnknownNodeError reports an edge referencing an undeclared node.
type UnknownNodeError struct {
	Node       string
	Dependency string
}

// Error implements the error interface.
func (e *UnknownNodeError) Error() string {
	return fmt.Sprintf("node %q depends on unknown node %q", e.Node, e.Dependency)
}

// Unwrap returns the sentinel error.
func (e *UnknownNodeError) Unwrap() error {
	return ErrUnknownNode
}
