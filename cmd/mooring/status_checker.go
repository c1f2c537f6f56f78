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
Package main provides the StatusChecker behind "mooring status".

Reconcile itself never polls for readiness; whether a started service
actually serves traffic is verified by the operator afterwards. The
status checker is that verification step: the supervisor's view of
every declared service, optionally a TCP probe of each public port,
and optionally one HTTP probe of a health endpoint. All services are
probed concurrently, so status stays fast even when a port probe has
to time out.
*/
package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
	"github.com/AleutianAI/mooring/cmd/mooring/internal/util"
	"github.com/AleutianAI/mooring/pkg/logging"
)

// =============================================================================
// Report Types
// =============================================================================

// PortProbe is the result of one public port reachability check.
type PortProbe struct {
	// HostPort is the probed port on the VM.
	HostPort int `json:"host_port"`

	// Open reports whether a TCP connection succeeded.
	Open bool `json:"open"`
}

// ServiceReport is the observed status of one declared service.
type ServiceReport struct {
	// Service is the declared service name.
	Service string `json:"service"`

	// State is the supervisor's view of the service.
	State ServiceState `json:"state"`

	// Detail carries the status error when the state could not be
	// determined.
	Detail string `json:"detail,omitempty"`

	// Ports holds public port probes when probing was requested.
	Ports []PortProbe `json:"ports,omitempty"`
}

// HealthProbe is the result of the optional HTTP health check.
type HealthProbe struct {
	// URL that was probed.
	URL string `json:"url"`

	// Healthy is true for a 2xx response.
	Healthy bool `json:"healthy"`

	// StatusCode is the HTTP status, 0 when no response arrived.
	StatusCode int `json:"status_code,omitempty"`

	// Detail carries the transport error when no response arrived.
	Detail string `json:"detail,omitempty"`

	// LatencyMS is the request round trip in milliseconds.
	LatencyMS int64 `json:"latency_ms"`
}

// StackReport is the full status of one stack at a point in time.
type StackReport struct {
	// Stack is the stack name.
	Stack string `json:"stack"`

	// GeneratedAt is when the report was assembled.
	GeneratedAt time.Time `json:"generated_at"`

	// Services holds one report per declared service, in declaration
	// order.
	Services []ServiceReport `json:"services"`

	// Orphans lists stack-labeled containers no longer declared.
	Orphans []string `json:"orphans,omitempty"`

	// Health holds the HTTP health probe when one was requested.
	Health *HealthProbe `json:"health,omitempty"`
}

// AllRunning reports whether every declared service is running.
func (r *StackReport) AllRunning() bool {
	for _, svc := range r.Services {
		if svc.State != StateRunning {
			return false
		}
	}
	return true
}

// =============================================================================
// Status Checker
// =============================================================================

// StatusOptions selects what the report includes beyond supervisor
// state.
type StatusOptions struct {
	// ProbePorts enables a TCP dial of every public port.
	ProbePorts bool

	// HealthURL, when set, is fetched once and reported stack-wide.
	HealthURL string
}

// StatusChecker assembles StackReports from the supervisor and the
// network.
type StatusChecker struct {
	supervisor   Supervisor
	stack        *config.StackSpec
	labels       StackLabels
	probeTimeout time.Duration
	logger       *logging.Logger

	// dial is the port probe seam.
	dial func(network, addr string, timeout time.Duration) (net.Conn, error)
}

// NewStatusChecker creates a checker for one stack.
func NewStatusChecker(supervisor Supervisor, stack *config.StackSpec, labels StackLabels, probeTimeout time.Duration, logger *logging.Logger) (*StatusChecker, error) {
	if supervisor == nil {
		return nil, fmt.Errorf("%w: Supervisor", ErrNilDependency)
	}
	if stack == nil {
		return nil, fmt.Errorf("%w: StackSpec", ErrNilDependency)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: Logger", ErrNilDependency)
	}
	return &StatusChecker{
		supervisor:   supervisor,
		stack:        stack,
		labels:       labels,
		probeTimeout: util.EnforceMinTimeout(probeTimeout, util.MinProbeTimeout),
		logger:       logger,
		dial:         net.DialTimeout,
	}, nil
}

// Report probes every declared service concurrently and returns the
// assembled report. Individual probe failures land in the report, not
// in the returned error; only a cancelled context fails the call.
func (c *StatusChecker) Report(ctx context.Context, opts StatusOptions) (*StackReport, error) {
	report := &StackReport{
		Stack:       c.stack.Name,
		GeneratedAt: time.Now(),
		Services:    make([]ServiceReport, len(c.stack.Services)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, svc := range c.stack.Services {
		i, svc := i, svc
		g.Go(func() error {
			report.Services[i] = c.serviceReport(gctx, svc, opts)
			return gctx.Err()
		})
	}
	if opts.HealthURL != "" {
		g.Go(func() error {
			report.Health = c.healthReport(gctx, opts.HealthURL)
			return gctx.Err()
		})
	}
	g.Go(func() error {
		report.Orphans = c.orphanNames(gctx)
		return gctx.Err()
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

// serviceReport resolves one service's state and port probes.
func (c *StatusChecker) serviceReport(ctx context.Context, svc config.ServiceSpec, opts StatusOptions) ServiceReport {
	out := ServiceReport{Service: svc.Name}

	state, err := c.supervisor.Status(ctx, svc.Name)
	if err != nil {
		out.State = StateFailed
		out.Detail = err.Error()
		return out
	}
	out.State = state

	if opts.ProbePorts {
		for _, p := range svc.PublicPorts() {
			out.Ports = append(out.Ports, PortProbe{
				HostPort: p.HostPort,
				Open:     c.portOpen(p.HostPort),
			})
		}
	}
	return out
}

// portOpen dials the loopback address of a public port.
func (c *StatusChecker) portOpen(hostPort int) bool {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(hostPort))
	conn, err := c.dial("tcp", addr, c.probeTimeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// healthReport fetches the health URL once.
func (c *StatusChecker) healthReport(ctx context.Context, url string) *HealthProbe {
	probe := &HealthProbe{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		probe.Detail = err.Error()
		return probe
	}

	client := &http.Client{Timeout: c.probeTimeout}
	started := time.Now()
	resp, err := client.Do(req)
	probe.LatencyMS = time.Since(started).Milliseconds()
	if err != nil {
		probe.Detail = err.Error()
		return probe
	}
	defer resp.Body.Close()

	probe.StatusCode = resp.StatusCode
	probe.Healthy = resp.StatusCode >= 200 && resp.StatusCode < 300
	return probe
}

// orphanNames lists stack-labeled containers whose service is no
// longer declared. A failed listing is reported as no orphans; the
// per-service states already surface engine trouble.
func (c *StatusChecker) orphanNames(ctx context.Context) []string {
	containers, err := c.supervisor.List(ctx)
	if err != nil {
		c.logger.Debug("orphan listing failed", "error", err)
		return nil
	}

	var orphans []string
	for _, info := range containers {
		service := info.Labels[c.labels.Service()]
		if service == "" || !c.stack.HasService(service) {
			orphans = append(orphans, info.Name)
		}
	}
	sort.Strings(orphans)
	return orphans
}
