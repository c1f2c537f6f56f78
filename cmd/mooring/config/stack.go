// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/mooring/cmd/mooring/internal/graph"
)

// Restart policies a service may declare.
const (
	RestartNever               = "never"
	RestartOnFailure           = "on-failure"
	RestartAlwaysUnlessStopped = "always-unless-stopped"
)

// Port scopes.
const (
	ScopePublic   = "public"
	ScopeInternal = "internal"
)

// RetentionPersistent is the only volume retention policy. Volumes are
// never implicitly deleted; the constant exists so the stack file can
// state the policy explicitly.
const RetentionPersistent = "persistent"

var (
	// ErrInvalidStack indicates the stack file failed semantic validation.
	ErrInvalidStack = errors.New("invalid stack")

	// ErrInvalidServiceName indicates a name outside the allowed pattern.
	ErrInvalidServiceName = errors.New("invalid service name")

	// ErrUnknownDependency indicates a depends_on entry naming no declared service.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrDuplicateHostPort indicates two services binding the same host port.
	ErrDuplicateHostPort = errors.New("duplicate host port")
)

// serviceNamePattern restricts service, volume, and stack names to
// engine-safe identifiers.
var serviceNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

var stackValidate = validator.New()

// PortSpec declares one port exposure of a service.
type PortSpec struct {
	// HostPort binds the port on the VM. Required for public scope,
	// forbidden for internal scope.
	HostPort int `yaml:"host_port,omitempty" validate:"omitempty,min=1,max=65535"`

	// ContainerPort is the port the service listens on.
	ContainerPort int `yaml:"container_port" validate:"required,min=1,max=65535"`

	// Scope is "public" (bound on the host) or "internal" (container
	// network only). Defaults from HostPort presence.
	Scope string `yaml:"scope,omitempty" validate:"omitempty,oneof=public internal"`
}

// ServiceSpec declares one long-running service of the stack.
type ServiceSpec struct {
	Name          string            `yaml:"name" validate:"required,max=63"`
	Image         string            `yaml:"image" validate:"required"`
	RestartPolicy string            `yaml:"restart,omitempty" validate:"omitempty,oneof=never on-failure always-unless-stopped"`
	Ports         []PortSpec        `yaml:"ports,omitempty" validate:"dive"`
	Env           map[string]string `yaml:"env,omitempty"`
	DependsOn     []string          `yaml:"depends_on,omitempty"`
}

// VolumeSpec declares a named durable volume and its mount.
type VolumeSpec struct {
	Name string `yaml:"name" validate:"required,max=63"`

	// Service names the declared service that mounts this volume.
	Service string `yaml:"service" validate:"required"`

	// Target is the absolute mount path inside the container.
	Target string `yaml:"target" validate:"required"`

	// Retention is "persistent". The field exists so the policy is
	// visible in the file; no other value is accepted.
	Retention string `yaml:"retention,omitempty" validate:"omitempty,oneof=persistent"`
}

// RouteSpec declares one reverse proxy routing rule.
type RouteSpec struct {
	// Prefix is the public path prefix, e.g. "/" or "/api/".
	Prefix string `yaml:"prefix" validate:"required"`

	// Service and Port name the internal upstream.
	Service string `yaml:"service" validate:"required"`
	Port    int    `yaml:"port" validate:"required,min=1,max=65535"`

	// SPA enables history-mode fallback: unmatched paths under the
	// prefix are rewritten to the root document. Only valid on "/".
	SPA bool `yaml:"spa,omitempty"`
}

// StackSpec is the declared target state of one deployable stack:
// its services in dependency-respecting order, its durable volumes,
// and its reverse proxy routing table.
type StackSpec struct {
	Name     string        `yaml:"name" validate:"required,max=63"`
	Services []ServiceSpec `yaml:"services" validate:"required,min=1,dive"`
	Volumes  []VolumeSpec  `yaml:"volumes,omitempty" validate:"dive"`
	Routes   []RouteSpec   `yaml:"routes,omitempty" validate:"dive"`

	// Hash is the sha256 of the raw stack file bytes, set by LoadStack.
	// Two runs against byte-identical files carry the same hash, which
	// is what the idempotence checks in run history compare.
	Hash string `yaml:"-"`
}

// LoadStack reads, parses, defaults, and validates a stack file.
//
// # Description
//
// The returned StackSpec is read-only for the remainder of the run.
// The raw file bytes are hashed (sha256) before parsing so that two
// byte-identical files always produce the same Hash regardless of
// YAML formatting concerns.
//
// # Error Handling
//
// Returns wrapped ErrInvalidStack (or a more specific sentinel) for
// semantic violations, and parse errors for malformed YAML. Unknown
// YAML fields are rejected to catch typos in operator files.
func LoadStack(path string) (*StackSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read stack file %s: %w", path, err)
	}
	spec, err := ParseStack(data)
	if err != nil {
		return nil, fmt.Errorf("stack file %s: %w", path, err)
	}
	return spec, nil
}

// ParseStack parses and validates stack file content.
func ParseStack(data []byte) (*StackSpec, error) {
	var spec StackSpec
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: file is empty", ErrInvalidStack)
		}
		return nil, fmt.Errorf("failed to parse stack file: %w", err)
	}

	spec.applyDefaults()
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	spec.Hash = hex.EncodeToString(sum[:])
	return &spec, nil
}

// applyDefaults fills omitted fields with their documented defaults.
func (s *StackSpec) applyDefaults() {
	for i := range s.Services {
		svc := &s.Services[i]
		if svc.RestartPolicy == "" {
			svc.RestartPolicy = RestartAlwaysUnlessStopped
		}
		for j := range svc.Ports {
			p := &svc.Ports[j]
			if p.Scope == "" {
				if p.HostPort > 0 {
					p.Scope = ScopePublic
				} else {
					p.Scope = ScopeInternal
				}
			}
		}
	}
	for i := range s.Volumes {
		if s.Volumes[i].Retention == "" {
			s.Volumes[i].Retention = RetentionPersistent
		}
	}
	if len(s.Routes) == 0 {
		s.Routes = defaultRoutes(s)
	}
}

// defaultRoutes builds the conventional three-tier routing table when
// the stack declares services named "frontend" and "backend": "/" is
// served by the frontend with SPA fallback and "/api/" proxies to the
// backend. Stacks with other service names must declare routes
// explicitly.
func defaultRoutes(s *StackSpec) []RouteSpec {
	frontend, okF := s.Service("frontend")
	backend, okB := s.Service("backend")
	if !okF || !okB || len(frontend.Ports) == 0 || len(backend.Ports) == 0 {
		return nil
	}
	return []RouteSpec{
		{Prefix: "/", Service: frontend.Name, Port: frontend.Ports[0].ContainerPort, SPA: true},
		{Prefix: "/api/", Service: backend.Name, Port: backend.Ports[0].ContainerPort},
	}
}

// Validate checks the stack against all semantic rules: name patterns,
// unique names, parseable images, dependency existence and acyclicity,
// dependency-respecting declaration order, host port exclusivity,
// volume mount sanity, and route consistency.
func (s *StackSpec) Validate() error {
	if err := stackValidate.Struct(s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidStack, err)
	}

	if !serviceNamePattern.MatchString(s.Name) {
		return fmt.Errorf("%w: stack name %q must match %s", ErrInvalidServiceName, s.Name, serviceNamePattern)
	}

	if err := s.validateServices(); err != nil {
		return err
	}
	if err := s.validateDependencies(); err != nil {
		return err
	}
	if err := s.validateVolumes(); err != nil {
		return err
	}
	return s.validateRoutes()
}

func (s *StackSpec) validateServices() error {
	seen := make(map[string]bool, len(s.Services))
	hostPorts := make(map[int]string)

	for _, svc := range s.Services {
		if !serviceNamePattern.MatchString(svc.Name) {
			return fmt.Errorf("%w: %q must match %s", ErrInvalidServiceName, svc.Name, serviceNamePattern)
		}
		if seen[svc.Name] {
			return fmt.Errorf("%w: service %q declared twice", ErrInvalidStack, svc.Name)
		}
		seen[svc.Name] = true

		if _, err := ParseImageRef(svc.Image); err != nil {
			return fmt.Errorf("%w: service %q: %v", ErrInvalidStack, svc.Name, err)
		}

		for _, p := range svc.Ports {
			switch p.Scope {
			case ScopePublic:
				if p.HostPort == 0 {
					return fmt.Errorf("%w: service %q: public port %d requires host_port", ErrInvalidStack, svc.Name, p.ContainerPort)
				}
			case ScopeInternal:
				if p.HostPort != 0 {
					return fmt.Errorf("%w: service %q: internal port %d must not set host_port", ErrInvalidStack, svc.Name, p.ContainerPort)
				}
			}
			if p.HostPort > 0 {
				if other, taken := hostPorts[p.HostPort]; taken {
					return fmt.Errorf("%w: host port %d declared by both %q and %q", ErrDuplicateHostPort, p.HostPort, other, svc.Name)
				}
				hostPorts[p.HostPort] = svc.Name
			}
		}
	}
	return nil
}

func (s *StackSpec) validateDependencies() error {
	position := make(map[string]int, len(s.Services))
	for i, svc := range s.Services {
		position[svc.Name] = i
	}

	edges := make(map[string][]string, len(s.Services))
	for _, svc := range s.Services {
		for _, dep := range svc.DependsOn {
			if _, ok := position[dep]; !ok {
				return fmt.Errorf("%w: service %q depends on undeclared %q", ErrUnknownDependency, svc.Name, dep)
			}
			edges[svc.Name] = append(edges[svc.Name], dep)
		}
	}

	// Cycles are reported before declaration-order violations.
	names := make([]string, 0, len(s.Services))
	for _, svc := range s.Services {
		names = append(names, svc.Name)
	}
	if _, err := graph.TopologicalOrder(names, edges); err != nil {
		return err
	}

	for i, svc := range s.Services {
		for _, dep := range svc.DependsOn {
			if position[dep] > i {
				return fmt.Errorf("%w: service %q declared before its dependency %q", ErrInvalidStack, svc.Name, dep)
			}
		}
	}
	return nil
}

func (s *StackSpec) validateVolumes() error {
	seen := make(map[string]bool, len(s.Volumes))
	mounts := make(map[string]string)

	for _, vol := range s.Volumes {
		if !serviceNamePattern.MatchString(vol.Name) {
			return fmt.Errorf("%w: volume %q must match %s", ErrInvalidServiceName, vol.Name, serviceNamePattern)
		}
		if seen[vol.Name] {
			return fmt.Errorf("%w: volume %q declared twice", ErrInvalidStack, vol.Name)
		}
		seen[vol.Name] = true

		if !s.HasService(vol.Service) {
			return fmt.Errorf("%w: volume %q mounts into undeclared service %q", ErrInvalidStack, vol.Name, vol.Service)
		}
		if !filepath.IsAbs(vol.Target) {
			return fmt.Errorf("%w: volume %q target %q must be an absolute path", ErrInvalidStack, vol.Name, vol.Target)
		}
		mountKey := vol.Service + ":" + vol.Target
		if other, taken := mounts[mountKey]; taken {
			return fmt.Errorf("%w: volumes %q and %q both mount %s into service %q", ErrInvalidStack, other, vol.Name, vol.Target, vol.Service)
		}
		mounts[mountKey] = vol.Name
	}
	return nil
}

func (s *StackSpec) validateRoutes() error {
	seen := make(map[string]bool, len(s.Routes))

	for _, route := range s.Routes {
		if !strings.HasPrefix(route.Prefix, "/") {
			return fmt.Errorf("%w: route prefix %q must start with /", ErrInvalidStack, route.Prefix)
		}
		if seen[route.Prefix] {
			return fmt.Errorf("%w: route prefix %q declared twice", ErrInvalidStack, route.Prefix)
		}
		seen[route.Prefix] = true

		svc, ok := s.Service(route.Service)
		if !ok {
			return fmt.Errorf("%w: route %q targets undeclared service %q", ErrInvalidStack, route.Prefix, route.Service)
		}
		if !svc.ListensOn(route.Port) {
			return fmt.Errorf("%w: route %q targets port %d which service %q does not expose", ErrInvalidStack, route.Prefix, route.Port, route.Service)
		}
		if route.SPA && route.Prefix != "/" {
			return fmt.Errorf("%w: SPA fallback is only valid on the / route, not %q", ErrInvalidStack, route.Prefix)
		}
	}
	return nil
}

// Service returns the declared service with the given name.
func (s *StackSpec) Service(name string) (*ServiceSpec, bool) {
	for i := range s.Services {
		if s.Services[i].Name == name {
			return &s.Services[i], true
		}
	}
	return nil, false
}

// HasService reports whether a service with the given name is declared.
func (s *StackSpec) HasService(name string) bool {
	_, ok := s.Service(name)
	return ok
}

// ServiceNames returns the declared service names in declaration order.
func (s *StackSpec) ServiceNames() []string {
	names := make([]string, 0, len(s.Services))
	for _, svc := range s.Services {
		names = append(names, svc.Name)
	}
	return names
}

// VolumesFor returns the volumes mounted into the named service.
func (s *StackSpec) VolumesFor(name string) []VolumeSpec {
	var vols []VolumeSpec
	for _, vol := range s.Volumes {
		if vol.Service == name {
			vols = append(vols, vol)
		}
	}
	return vols
}

// StartOrder returns the services in dependency order. Validation
// guarantees declaration order is dependency-respecting, so this is
// the declaration order.
func (s *StackSpec) StartOrder() []ServiceSpec {
	out := make([]ServiceSpec, len(s.Services))
	copy(out, s.Services)
	return out
}

// StopOrder returns the services in reverse dependency order,
// dependents before their dependencies.
func (s *StackSpec) StopOrder() []ServiceSpec {
	out := make([]ServiceSpec, len(s.Services))
	for i, svc := range s.Services {
		out[len(s.Services)-1-i] = svc
	}
	return out
}

// ListensOn reports whether the service declares the given container port.
func (svc *ServiceSpec) ListensOn(port int) bool {
	for _, p := range svc.Ports {
		if p.ContainerPort == port {
			return true
		}
	}
	return false
}

// PublicPorts returns the ports bound on the host.
func (svc *ServiceSpec) PublicPorts() []PortSpec {
	var out []PortSpec
	for _, p := range svc.Ports {
		if p.Scope == ScopePublic {
			out = append(out, p)
		}
	}
	return out
}
