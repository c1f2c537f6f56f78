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
Package main provides the reverse proxy renderer.

The stack file's routes section is a static routing table: path prefix
to service and port, with an optional SPA flag on the root route. The
renderer turns that table into an nginx server block that is baked into
the frontend image at build time. There is no runtime reconfiguration;
changing a route means rebuilding the frontend image, which is exactly
the auditability the static table exists for.

Rendering is deterministic: identical stacks produce byte-identical
output, so the artifact can be checked into the frontend repository
and diffed meaningfully.
*/
package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"text/template"

	"github.com/docker/go-connections/nat"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
	"github.com/AleutianAI/mooring/pkg/logging"
)

// ErrInvalidRoute indicates a routing table that cannot be rendered.
var ErrInvalidRoute = errors.New("invalid proxy route")

// defaultListenPort is used when the proxy config does not set one.
const defaultListenPort = 80

// spaDocumentRoot is where the frontend image keeps its built bundle.
const spaDocumentRoot = "/usr/share/nginx/html"

// nginxTemplateText is the rendered server block. Locations arrive
// pre-sorted, most specific prefix first.
const nginxTemplateText = `# Routing table for stack "{{.Stack}}".
# Generated by mooring render-proxy; the stack file is the source of
# truth. Do not edit by hand.
server {
    listen {{.ListenPort}};
    server_name _;
{{range .Locations}}
    location {{.Prefix}} {
{{- if .SPA}}
        root {{.Root}};
        index index.html;
        try_files $uri $uri/ /index.html;
{{- else}}
        proxy_pass http://{{.Upstream}}:{{.Port}};
        proxy_set_header Host $host;
        proxy_set_header X-Real-IP $remote_addr;
        proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;
        proxy_set_header X-Forwarded-Proto $scheme;
{{- end}}
    }
{{end}}}
`

// =============================================================================
// Renderer
// =============================================================================

// proxyLocation is the template view of one routing rule.
type proxyLocation struct {
	Prefix   string
	SPA      bool
	Root     string
	Upstream string
	Port     int
}

// nginxView is the template view of the whole server block.
type nginxView struct {
	Stack      string
	ListenPort int
	Locations  []proxyLocation
}

// NginxRenderer renders a stack's routing table to an nginx server
// block.
type NginxRenderer struct {
	cfg    config.ProxyConfig
	logger *logging.Logger
}

// NewNginxRenderer creates a renderer using the configured listen port
// and output path.
func NewNginxRenderer(cfg config.ProxyConfig, logger *logging.Logger) (*NginxRenderer, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: Logger", ErrNilDependency)
	}
	return &NginxRenderer{cfg: cfg, logger: logger}, nil
}

// Render validates the routing table and returns the nginx server
// block.
//
// # Description
//
// Routes are emitted most specific prefix first, ties broken
// lexicographically, so output order never depends on declaration
// order. The SPA route serves the image's own document root; every
// other route proxies to its service's container name on the stack
// network, with the originating client identified in forwarded
// headers.
//
// # Error Handling
//
// Returns wrapped ErrInvalidRoute when a route names an undeclared
// service, a port the service does not expose, or when the SPA
// fallback is not the least specific rule in the table.
func (r *NginxRenderer) Render(stack *config.StackSpec) (string, error) {
	if stack == nil {
		return "", fmt.Errorf("%w: no stack", ErrInvalidRoute)
	}
	if len(stack.Routes) == 0 {
		return "", fmt.Errorf("%w: stack %q declares no routes", ErrInvalidRoute, stack.Name)
	}
	if err := validateRoutingTable(stack); err != nil {
		return "", err
	}

	routes := make([]config.RouteSpec, len(stack.Routes))
	copy(routes, stack.Routes)
	sort.SliceStable(routes, func(i, j int) bool {
		if len(routes[i].Prefix) != len(routes[j].Prefix) {
			return len(routes[i].Prefix) > len(routes[j].Prefix)
		}
		return routes[i].Prefix < routes[j].Prefix
	})

	view := nginxView{
		Stack:      stack.Name,
		ListenPort: r.listenPort(),
	}
	for _, route := range routes {
		loc := proxyLocation{Prefix: route.Prefix}
		if route.SPA {
			loc.SPA = true
			loc.Root = spaDocumentRoot
		} else {
			loc.Upstream = ContainerName(stack.Name, route.Service)
			loc.Port = route.Port
		}
		view.Locations = append(view.Locations, loc)
	}

	tmpl, err := template.New("nginx").Parse(nginxTemplateText)
	if err != nil {
		return "", fmt.Errorf("failed to parse proxy template: %w", err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("failed to render proxy config: %w", err)
	}

	r.logger.Debug("rendered proxy config",
		"stack", stack.Name, "routes", len(routes), "listen", view.ListenPort)
	return buf.String(), nil
}

// WriteFile renders the server block and writes it to path, creating
// parent directories as needed.
func (r *NginxRenderer) WriteFile(stack *config.StackSpec, path string) error {
	rendered, err := r.Render(stack)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create output directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(rendered), 0644); err != nil {
		return fmt.Errorf("failed to write proxy config %s: %w", path, err)
	}
	r.logger.Info("proxy config written", "path", path)
	return nil
}

// OutputPath returns the configured artifact path, defaulting next to
// the working directory.
func (r *NginxRenderer) OutputPath() string {
	if r.cfg.Output != "" {
		return r.cfg.Output
	}
	return "nginx.conf"
}

func (r *NginxRenderer) listenPort() int {
	if r.cfg.ListenPort > 0 {
		return r.cfg.ListenPort
	}
	return defaultListenPort
}

// =============================================================================
// Routing Table Validation
// =============================================================================

// validateRoutingTable re-checks route consistency at render time.
// Stack files are validated on load, but a StackSpec assembled in code
// (the compose importer, tests) can reach the renderer without passing
// through LoadStack.
func validateRoutingTable(stack *config.StackSpec) error {
	var spa *config.RouteSpec

	for i, route := range stack.Routes {
		if !strings.HasPrefix(route.Prefix, "/") {
			return fmt.Errorf("%w: prefix %q must start with /", ErrInvalidRoute, route.Prefix)
		}

		svc, ok := stack.Service(route.Service)
		if !ok {
			return fmt.Errorf("%w: %q targets undeclared service %q", ErrInvalidRoute, route.Prefix, route.Service)
		}
		if _, err := nat.NewPort("tcp", strconv.Itoa(route.Port)); err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRoute, route.Prefix, err)
		}
		if !svc.ListensOn(route.Port) {
			return fmt.Errorf("%w: %q targets port %d which service %q does not expose",
				ErrInvalidRoute, route.Prefix, route.Port, route.Service)
		}

		if route.SPA {
			if spa != nil {
				return fmt.Errorf("%w: SPA fallback declared on both %q and %q",
					ErrInvalidRoute, spa.Prefix, route.Prefix)
			}
			spa = &stack.Routes[i]
		}
	}

	if spa != nil {
		// The fallback catches everything no other rule claimed, so its
		// prefix must be under every other rule's prefix.
		for _, route := range stack.Routes {
			if route.Prefix == spa.Prefix {
				continue
			}
			if !strings.HasPrefix(route.Prefix, spa.Prefix) {
				return fmt.Errorf("%w: SPA fallback %q is not the least specific route (%q does not extend it)",
					ErrInvalidRoute, spa.Prefix, route.Prefix)
			}
		}
	}
	return nil
}
