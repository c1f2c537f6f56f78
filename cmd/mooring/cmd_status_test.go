// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"testing"

	"github.com/AleutianAI/mooring/pkg/ux"
)

func TestStateIcon(t *testing.T) {
	tests := []struct {
		state ServiceState
		want  ux.Icon
	}{
		{StateRunning, ux.IconSuccess},
		{StateFailed, ux.IconError},
		{StateStarting, ux.IconPending},
		{StateStopping, ux.IconPending},
		{StateAbsent, ux.IconPending},
	}
	for _, tt := range tests {
		if got := stateIcon(tt.state); got != tt.want {
			t.Errorf("stateIcon(%q) = %v, want %v", tt.state, got, tt.want)
		}
	}
}

func TestServiceDetail(t *testing.T) {
	tests := []struct {
		name string
		svc  ServiceReport
		want string
	}{
		{
			name: "state only",
			svc:  ServiceReport{Service: "db", State: StateRunning},
			want: "running",
		},
		{
			name: "detail overrides state",
			svc:  ServiceReport{Service: "db", State: StateFailed, Detail: "inspect failed: timeout"},
			want: "inspect failed: timeout",
		},
		{
			name: "ports appended",
			svc: ServiceReport{
				Service: "frontend",
				State:   StateRunning,
				Ports: []PortProbe{
					{HostPort: 80, Open: true},
					{HostPort: 443, Open: false},
				},
			},
			want: "running (ports: 80 open, 443 closed)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := serviceDetail(tt.svc); got != tt.want {
				t.Errorf("serviceDetail() = %q, want %q", got, tt.want)
			}
		})
	}
}
