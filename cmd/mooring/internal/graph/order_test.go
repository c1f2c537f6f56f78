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
	"reflect"
	"testing"
)

// TestTopologicalOrder_ThreeTier verifies the canonical db/backend/frontend chain.
func TestTopologicalOrder_ThreeTier(t *testing.T) {
	nodes := []string{"db", "backend", "frontend"}
	deps := map[string][]string{
		"backend":  {"db"},
		"frontend": {"backend"},
	}

	order, err := TopologicalOrder(nodes, deps)
	if err != nil {
		t.Fatalf("TopologicalOrder failed: %v", err)
	}

	want := []string{"db", "backend", "frontend"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

// TestTopologicalOrder_NoEdges verifies declaration order is preserved
// when nothing constrains it.
func TestTopologicalOrder_NoEdges(t *testing.T) {
	nodes := []string{"zeta", "yankee", "xray"}

	order, err := TopologicalOrder(nodes, nil)
	if err != nil {
		t.Fatalf("TopologicalOrder failed: %v", err)
	}

	if !reflect.DeepEqual(order, nodes) {
		t.Errorf("order = %v, want declaration order %v", order, nodes)
	}
}

// TestTopologicalOrder_Diamond verifies a deterministic order for a
// diamond-shaped graph.
func TestTopologicalOrder_Diamond(t *testing.T) {
	nodes := []string{"base", "left", "right", "top"}
	deps := map[string][]string{
		"left":  {"base"},
		"right": {"base"},
		"top":   {"left", "right"},
	}

	order, err := TopologicalOrder(nodes, deps)
	if err != nil {
		t.Fatalf("TopologicalOrder failed: %v", err)
	}

	want := []string{"base", "left", "right", "top"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

// TestTopologicalOrder_Cycle verifies cycle detection and path reporting.
func TestTopologicalOrder_Cycle(t *testing.T) {
	nodes := []string{"a", "b", "c"}
	deps := map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}

	_, err := TopologicalOrder(nodes, deps)
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("error = %v, want ErrCycleDetected", err)
	}

	var cycleErr *CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatal("error should be a *CycleError")
	}
	if len(cycleErr.Path) < 3 {
		t.Errorf("cycle path too short: %v", cycleErr.Path)
	}
	if cycleErr.Path[0] != cycleErr.Path[len(cycleErr.Path)-1] {
		t.Errorf("cycle path should close on itself: %v", cycleErr.Path)
	}
}

// TestTopologicalOrder_SelfLoop verifies a self-dependency is a cycle.
func TestTopologicalOrder_SelfLoop(t *testing.T) {
	nodes := []string{"solo"}
	deps := map[string][]string{"solo": {"solo"}}

	_, err := TopologicalOrder(nodes, deps)
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("error = %v, want ErrCycleDetected", err)
	}
}

// TestTopologicalOrder_UnknownDependency verifies edges must reference
// declared nodes.
func TestTopologicalOrder_UnknownDependency(t *testing.T) {
	nodes := []string{"web"}
	deps := map[string][]string{"web": {"ghost"}}

	_, err := TopologicalOrder(nodes, deps)
	if !errors.Is(err, ErrUnknownNode) {
		t.Fatalf("error = %v, want ErrUnknownNode", err)
	}

	var unknownErr *UnknownNodeError
	if !errors.As(err, &unknownErr) {
		t.Fatal("error should be an *UnknownNodeError")
	}
	if unknownErr.Node != "web" || unknownErr.Dependency != "ghost" {
		t.Errorf("UnknownNodeError = %+v, want Node=web Dependency=ghost", unknownErr)
	}
}

// TestTopologicalOrder_Duplicate verifies repeated nodes are rejected.
func TestTopologicalOrder_Duplicate(t *testing.T) {
	nodes := []string{"db", "db"}

	_, err := TopologicalOrder(nodes, nil)
	if !errors.Is(err, ErrDuplicateNode) {
		t.Fatalf("error = %v, want ErrDuplicateNode", err)
	}
}

// TestReverseOrder verifies stop order is the exact reverse of start order.
func TestReverseOrder(t *testing.T) {
	nodes := []string{"db", "backend", "frontend"}
	deps := map[string][]string{
		"backend":  {"db"},
		"frontend": {"backend"},
	}

	order, err := ReverseOrder(nodes, deps)
	if err != nil {
		t.Fatalf("ReverseOrder failed: %v", err)
	}

	want := []string{"frontend", "backend", "db"}
	if !reflect.DeepEqual(order, want) {
		t.Errorf("order = %v, want %v", order, want)
	}
}

// TestReverseOrder_Cycle verifies cycles surface through ReverseOrder too.
func TestReverseOrder_Cycle(t *testing.T) {
	nodes := []string{"a", "b"}
	deps := map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}

	_, err := ReverseOrder(nodes, deps)
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("error = %v, want ErrCycleDetected", err)
	}
}
