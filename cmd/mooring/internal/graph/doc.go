// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph orders service dependency graphs for reconciliation.
//
// This package implements deterministic topological ordering with cycle
// detection and path reconstruction, used to validate stack files and to
// derive start order for converted compose files.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────────────┐
//	│                      Dependency Ordering Flow                            │
//	├─────────────────────────────────────────────────────────────────────────┤
//	│                                                                          │
//	│  ┌─────────────┐    ┌─────────────┐    ┌─────────────┐                  │
//	│  │ Declared    │───▶│  Validate   │───▶│   Kahn      │                  │
//	│  │ Services    │    │   Edges     │    │  Ordering   │                  │
//	│  └─────────────┘    └─────────────┘    └─────────────┘                  │
//	│                                               │                          │
//	│                            cycle? ┌───────────┴───────────┐              │
//	│                                   ▼                       ▼              │
//	│                          ┌─────────────┐         ┌─────────────┐        │
//	│                          │ DFS Cycle   │         │ Dependency  │        │
//	│                          │ Path        │         │ Order       │        │
//	│                          └─────────────┘         └─────────────┘        │
//	│                                                                          │
//	└─────────────────────────────────────────────────────────────────────────┘
//
// # Thread Safety
//
// All functions are pure and safe for concurrent use.
package graph
