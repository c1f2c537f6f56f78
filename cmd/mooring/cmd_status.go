// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mooring/cmd/mooring/internal/engine"
	"github.com/AleutianAI/mooring/cmd/mooring/internal/util"
	"github.com/AleutianAI/mooring/pkg/ux"
)

// runStatus reports the observed state of every declared service.
// Exits 2 when the stack is not fully running so scripts can branch
// on reachability without parsing output.
func runStatus(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	machine := statusJSON || ux.GetPersonality().Level == ux.PersonalityMachine

	es, err := buildEngineStack(machine)
	exitOnError(err)
	defer es.Close()

	checker, err := NewStatusChecker(es.supervisor, es.stack, es.labels, util.DefaultProbeTimeout, es.logger)
	exitOnError(err)

	report, err := checker.Report(ctx, StatusOptions{
		ProbePorts: statusProbe,
		HealthURL:  statusHealthURL,
	})
	exitOnError(err)

	if statusJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		exitOnError(enc.Encode(report))
	} else {
		renderReport(report)
	}

	if !report.AllRunning() {
		os.Exit(ExitPartialFailure)
	}
}

func renderReport(report *StackReport) {
	ux.Title(fmt.Sprintf("Stack %q", report.Stack))
	for _, svc := range report.Services {
		ux.ServiceStatus(svc.Service, stateIcon(svc.State), serviceDetail(svc))
	}
	for _, orphan := range report.Orphans {
		ux.Warning(fmt.Sprintf("orphan container %s is not in the declaration; the next reconcile removes it", orphan))
	}
	if h := report.Health; h != nil {
		switch {
		case h.Healthy:
			ux.Success(fmt.Sprintf("health %s: HTTP %d in %dms", h.URL, h.StatusCode, h.LatencyMS))
		case h.StatusCode != 0:
			ux.Warning(fmt.Sprintf("health %s: HTTP %d in %dms", h.URL, h.StatusCode, h.LatencyMS))
		default:
			ux.Warning(fmt.Sprintf("health %s: %s", h.URL, h.Detail))
		}
	}
}

func serviceDetail(svc ServiceReport) string {
	detail := string(svc.State)
	if svc.Detail != "" {
		detail = svc.Detail
	}
	if len(svc.Ports) == 0 {
		return detail
	}
	parts := make([]string, 0, len(svc.Ports))
	for _, p := range svc.Ports {
		state := "open"
		if !p.Open {
			state = "closed"
		}
		parts = append(parts, fmt.Sprintf("%d %s", p.HostPort, state))
	}
	return detail + " (ports: " + strings.Join(parts, ", ") + ")"
}

func stateIcon(state ServiceState) ux.Icon {
	switch state {
	case StateRunning:
		return ux.IconSuccess
	case StateFailed:
		return ux.IconError
	default:
		return ux.IconPending
	}
}

// runLogs streams one stack container's output, demuxed onto the
// matching local streams.
func runLogs(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	service := args[0]

	es, err := buildEngineStack(true)
	exitOnError(err)
	defer es.Close()

	if !es.stack.HasService(service) {
		exitOnError(fmt.Errorf("unknown service %q in stack %q", service, es.stack.Name))
	}

	rc, err := es.eng.ContainerLogs(ctx, ContainerName(es.stack.Name, service), logsFollow, logsTail)
	if engine.IsNotFound(err) {
		exitOnError(fmt.Errorf("no container for service %q; is the stack running?", service))
	}
	exitOnError(err)
	defer rc.Close()

	// A ctrl-C tears the stream down mid-read; that is a clean exit,
	// not an error.
	if err := engine.DemuxLogs(os.Stdout, os.Stderr, rc); err != nil && ctx.Err() == nil {
		exitOnError(err)
	}
}
