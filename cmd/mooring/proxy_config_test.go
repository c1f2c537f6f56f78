// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
)

func testRenderer(t *testing.T, cfg config.ProxyConfig) *NginxRenderer {
	t.Helper()
	r, err := NewNginxRenderer(cfg, testLogger())
	if err != nil {
		t.Fatalf("NewNginxRenderer: %v", err)
	}
	return r
}

func TestNginxRenderer_Render(t *testing.T) {
	r := testRenderer(t, config.ProxyConfig{})
	stack := testStack(t)

	out, err := r.Render(stack)
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	// The API route proxies to the backend container by its physical
	// name, with the client identity forwarded.
	for _, want := range []string{
		"listen 80;",
		"location /api/ {",
		"proxy_pass http://shop-backend:8000;",
		"proxy_set_header X-Real-IP $remote_addr;",
		"proxy_set_header X-Forwarded-For $proxy_add_x_forwarded_for;",
		"proxy_set_header X-Forwarded-Proto $scheme;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered config missing %q:\n%s", want, out)
		}
	}

	// The SPA route serves the image's own bundle with history-mode
	// fallback, never a proxy_pass.
	spaBlock := out[strings.Index(out, "location / {"):]
	if !strings.Contains(spaBlock, "try_files $uri $uri/ /index.html;") {
		t.Errorf("SPA route missing history fallback:\n%s", out)
	}
	if strings.Contains(spaBlock, "proxy_pass") {
		t.Errorf("SPA route must not proxy:\n%s", out)
	}
}

func TestNginxRenderer_MostSpecificPrefixFirst(t *testing.T) {
	r := testRenderer(t, config.ProxyConfig{})
	out, err := r.Render(testStack(t))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	api := strings.Index(out, "location /api/ {")
	root := strings.Index(out, "location / {")
	if api == -1 || root == -1 {
		t.Fatalf("rendered config missing a location block:\n%s", out)
	}
	if api > root {
		t.Errorf("/api/ must render before the catch-all /:\n%s", out)
	}
}

func TestNginxRenderer_Deterministic(t *testing.T) {
	r := testRenderer(t, config.ProxyConfig{ListenPort: 8443})

	first, err := r.Render(testStack(t))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	second, err := r.Render(testStack(t))
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if first != second {
		t.Error("identical stacks rendered differently")
	}
	if !strings.Contains(first, "listen 8443;") {
		t.Errorf("configured listen port not used:\n%s", first)
	}
}

func TestNginxRenderer_InvalidRoutes(t *testing.T) {
	tests := []struct {
		name   string
		routes []config.RouteSpec
	}{
		{
			name: "undeclared service",
			routes: []config.RouteSpec{
				{Prefix: "/", Service: "ghost", Port: 80},
			},
		},
		{
			name: "port not exposed",
			routes: []config.RouteSpec{
				{Prefix: "/", Service: "backend", Port: 9999},
			},
		},
		{
			name: "two spa fallbacks",
			routes: []config.RouteSpec{
				{Prefix: "/", Service: "frontend", Port: 80, SPA: true},
				{Prefix: "/api/", Service: "backend", Port: 8000, SPA: true},
			},
		},
		{
			name: "spa not least specific",
			routes: []config.RouteSpec{
				{Prefix: "/app/", Service: "frontend", Port: 80, SPA: true},
				{Prefix: "/api/", Service: "backend", Port: 8000},
			},
		},
		{
			name:   "no routes",
			routes: nil,
		},
	}

	r := testRenderer(t, config.ProxyConfig{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stack := testStack(t)
			stack.Routes = tt.routes
			if _, err := r.Render(stack); !errors.Is(err, ErrInvalidRoute) {
				t.Errorf("Render() error = %v, want ErrInvalidRoute", err)
			}
		})
	}
}

func TestNginxRenderer_WriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "nginx.conf")
	r := testRenderer(t, config.ProxyConfig{})

	if err := r.WriteFile(testStack(t), path); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if !strings.Contains(string(data), "proxy_pass http://shop-backend:8000;") {
		t.Errorf("written artifact missing backend route:\n%s", data)
	}
}

func TestNginxRenderer_OutputPath(t *testing.T) {
	if got := testRenderer(t, config.ProxyConfig{}).OutputPath(); got != "nginx.conf" {
		t.Errorf("OutputPath() = %q, want nginx.conf", got)
	}
	if got := testRenderer(t, config.ProxyConfig{Output: "deploy/web.conf"}).OutputPath(); got != "deploy/web.conf" {
		t.Errorf("OutputPath() = %q, want deploy/web.conf", got)
	}
}
