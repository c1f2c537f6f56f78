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

import "fmt"

// TopologicalOrder returns nodes ordered so every node appears after
// all of its dependencies. deps maps a node to the nodes it depends
// on. The result is deterministic for a given input order: ties are
// broken by position in nodes.
//
// Returns a CycleError when the graph has a cycle, an
// UnknownNodeError when an edge references an undeclared node, and
// ErrDuplicateNode when nodes contains a repeat.
func TopologicalOrder(nodes []string, deps map[string][]string) ([]string, error) {
	set := make(map[string]bool, len(nodes))
	for _, n := range nodes {
		if set[n] {
			return nil, fmt.Errorf("%w: %q listed twice", ErrDuplicateNode, n)
		}
		set[n] = true
	}

	indegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		for _, d := range deps[n] {
			if !set[d] {
				return nil, &UnknownNodeError{Node: n, Dependency: d}
			}
			indegree[n]++
			dependents[d] = append(dependents[d], n)
		}
	}

	queue := make([]string, 0, len(nodes))
	for _, n := range nodes {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]string, 0, len(nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		for _, m := range dependents[n] {
			indegree[m]--
			if indegree[m] == 0 {
				queue = append(queue, m)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil, &CycleError{Path: findCycle(nodes, deps)}
	}
	return order, nil
}

// ReverseOrder returns nodes in reverse dependency order, dependents
// before their dependencies. Stop order for a running stack.
func ReverseOrder(nodes []string, deps map[string][]string) ([]string, error) {
	order, err := TopologicalOrder(nodes, deps)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}

// findCycle locates one cycle via DFS and returns its path in
// dependency direction with the first node repeated at the end.
func findCycle(nodes []string, deps map[string][]string) []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(nodes))
	parent := make(map[string]string, len(nodes))
	var cycle []string

	var visit func(n string) bool
	visit = func(n string) bool {
		color[n] = gray
		for _, d := range deps[n] {
			if color[d] == gray {
				// Walk parents back from n to d, then flip so the
				// path reads in dependency direction.
				chain := []string{n}
				for cur := n; cur != d; {
					cur = parent[cur]
					chain = append(chain, cur)
				}
				for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
					chain[i], chain[j] = chain[j], chain[i]
				}
				cycle = append(chain, d)
				return true
			}
			if color[d] == white {
				parent[d] = n
				if visit(d) {
					return true
				}
			}
		}
		color[n] = black
		return false
	}

	for _, n := range nodes {
		if color[n] == white && visit(n) {
			return cycle
		}
	}
	return nil
}
