// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package compose translates docker-compose files into stack definitions.
//
// The importer is intentionally lossy: compose expresses far more than a
// three-tier stack needs, and anything that cannot be carried over is
// reported as a warning rather than silently dropped. The caller shows
// the warnings and writes the translated stack file for review.
package compose

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/compose-spec/compose-go/loader"
	"github.com/compose-spec/compose-go/types"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
	"github.com/AleutianAI/mooring/cmd/mooring/internal/graph"
)

// =============================================================================
// Error Definitions
// =============================================================================

var (
	// ErrComposeFileMissing is returned when the compose file doesn't exist.
	ErrComposeFileMissing = errors.New("compose file not found")

	// ErrComposeInvalid is returned when the compose file cannot be parsed
	// or describes nothing translatable.
	ErrComposeInvalid = errors.New("compose file invalid")

	// ErrComposeUnsupported is returned when a service depends on a compose
	// feature that has no stack equivalent and cannot be skipped.
	ErrComposeUnsupported = errors.New("compose feature not supported")
)

// =============================================================================
// Result Type
// =============================================================================

// ImportResult holds a translated stack and the compose features that
// could not be carried over.
type ImportResult struct {
	// Stack is the validated stack definition, with defaults applied
	// and the content hash computed.
	Stack *config.StackSpec

	// Warnings lists every compose construct the translation dropped or
	// changed, in a deterministic order.
	Warnings []string
}

// =============================================================================
// Import Functions
// =============================================================================

// ImportFile reads a docker-compose file and translates it into a stack
// definition named stackName.
func ImportFile(path, stackName string) (*ImportResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrComposeFileMissing, path)
		}
		return nil, fmt.Errorf("failed to read compose file %s: %w", path, err)
	}
	return Import(data, stackName)
}

// Import translates docker-compose YAML into a stack definition.
//
// # Description
//
// Parses the compose content with the compose-spec loader, maps each
// service onto the stack service model, orders services so every service
// is declared after its dependencies, and round-trips the result through
// the stack parser so the returned stack is validated, defaulted, and
// hashed exactly as if it had been loaded from disk.
//
// Compose features with no stack equivalent (bind mounts, healthchecks,
// build sections, custom networks, port ranges, UDP ports) are collected
// as warnings. A service with a build section and no image is the one
// hard failure: there is nothing to pull.
//
// # Error Conditions
//
//   - ErrComposeInvalid: unparseable YAML, no services, or a name that
//     cannot be normalized
//   - ErrComposeUnsupported: a service has no usable image
//   - graph.ErrCycleDetected: depends_on forms a cycle
func Import(content []byte, stackName string) (*ImportResult, error) {
	if stackName == "" {
		return nil, fmt.Errorf("%w: stack name is required", ErrComposeInvalid)
	}

	details := types.ConfigDetails{
		ConfigFiles: []types.ConfigFile{
			{Content: content},
		},
	}
	project, err := loader.Load(details, func(options *loader.Options) {
		options.SkipNormalization = true
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrComposeInvalid, err)
	}
	if len(project.Services) == 0 {
		return nil, fmt.Errorf("%w: no services defined", ErrComposeInvalid)
	}

	var warnings []string

	// Compose allows uppercase and dots in service names; the stack
	// model does not. Build the rename table first so depends_on edges
	// can be rewritten consistently.
	renames := make(map[string]string, len(project.Services))
	byName := make(map[string]types.ServiceConfig, len(project.Services))
	for _, svc := range project.Services {
		normalized, err := normalizeServiceName(svc.Name)
		if err != nil {
			return nil, err
		}
		if prior, exists := byName[normalized]; exists {
			return nil, fmt.Errorf("%w: services %q and %q both normalize to %q",
				ErrComposeInvalid, prior.Name, svc.Name, normalized)
		}
		if normalized != svc.Name {
			warnings = append(warnings,
				fmt.Sprintf("service %q renamed to %q", svc.Name, normalized))
		}
		renames[svc.Name] = normalized
		byName[normalized] = svc
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	sort.Strings(names)

	deps := make(map[string][]string, len(byName))
	for name, svc := range byName {
		depNames := make([]string, 0, len(svc.DependsOn))
		for dep, spec := range svc.DependsOn {
			if spec.Condition != "" && spec.Condition != types.ServiceConditionStarted {
				warnings = append(warnings, fmt.Sprintf(
					"service %q: depends_on condition %q is not supported; only start order is honored",
					name, spec.Condition))
			}
			if renamed, ok := renames[dep]; ok {
				dep = renamed
			}
			depNames = append(depNames, dep)
		}
		sort.Strings(depNames)
		deps[name] = depNames
	}

	order, err := graph.TopologicalOrder(names, deps)
	if err != nil {
		return nil, fmt.Errorf("compose depends_on: %w", err)
	}

	stack := &config.StackSpec{Name: stackName}
	volumeOwners := make(map[string]string)
	referencedVolumes := make(map[string]bool)

	for _, name := range order {
		svc := byName[name]

		spec, svcWarnings, err := convertService(name, svc, renames)
		if err != nil {
			return nil, err
		}
		warnings = append(warnings, svcWarnings...)
		stack.Services = append(stack.Services, *spec)

		vols, volWarnings := convertVolumes(name, svc, volumeOwners, referencedVolumes)
		warnings = append(warnings, volWarnings...)
		stack.Volumes = append(stack.Volumes, vols...)
	}

	warnings = append(warnings, projectWarnings(project, referencedVolumes)...)

	// Round-trip through the stack parser so defaults, validation, and
	// the content hash match a stack loaded from disk.
	data, err := yaml.Marshal(stack)
	if err != nil {
		return nil, fmt.Errorf("failed to encode translated stack: %w", err)
	}
	parsed, err := config.ParseStack(data)
	if err != nil {
		return nil, fmt.Errorf("translated stack failed validation: %w", err)
	}

	return &ImportResult{Stack: parsed, Warnings: warnings}, nil
}

// =============================================================================
// Service Conversion
// =============================================================================

func convertService(name string, svc types.ServiceConfig, renames map[string]string) (*config.ServiceSpec, []string, error) {
	var warnings []string

	if svc.Image == "" {
		if svc.Build != nil {
			return nil, nil, fmt.Errorf(
				"%w: service %q has a build section and no image; only prebuilt images can be deployed",
				ErrComposeUnsupported, name)
		}
		return nil, nil, fmt.Errorf("%w: service %q has no image", ErrComposeInvalid, name)
	}
	if svc.Build != nil {
		warnings = append(warnings, fmt.Sprintf(
			"service %q: build section ignored; image %q will be pulled", name, svc.Image))
	}
	if svc.ContainerName != "" {
		warnings = append(warnings, fmt.Sprintf(
			"service %q: container_name %q ignored; container names derive from the stack",
			name, svc.ContainerName))
	}
	if len(svc.Command) > 0 || len(svc.Entrypoint) > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"service %q: command/entrypoint overrides ignored; the image's own entrypoint runs", name))
	}
	if svc.HealthCheck != nil && !svc.HealthCheck.Disable {
		warnings = append(warnings, fmt.Sprintf(
			"service %q: healthcheck ignored; the restart policy supervises the container", name))
	}
	if len(svc.Networks) > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"service %q: custom networks ignored; all services share the stack network", name))
	}
	if len(svc.Profiles) > 0 {
		warnings = append(warnings, fmt.Sprintf(
			"service %q: profiles ignored; every service is always deployed", name))
	}

	restart, restartWarning := mapRestartPolicy(name, svc.Restart)
	if restartWarning != "" {
		warnings = append(warnings, restartWarning)
	}

	ports, portWarnings := convertPorts(name, svc)
	warnings = append(warnings, portWarnings...)

	env, envWarnings := convertEnvironment(name, svc.Environment)
	warnings = append(warnings, envWarnings...)

	depNames := make([]string, 0, len(svc.DependsOn))
	for dep := range svc.DependsOn {
		if renamed, ok := renames[dep]; ok {
			dep = renamed
		}
		depNames = append(depNames, dep)
	}
	sort.Strings(depNames)

	return &config.ServiceSpec{
		Name:          name,
		Image:         svc.Image,
		RestartPolicy: restart,
		Ports:         ports,
		Env:           env,
		DependsOn:     depNames,
	}, warnings, nil
}

// mapRestartPolicy translates compose restart strings onto the stack's
// restart policies. Unknown values fall back to the stack default.
func mapRestartPolicy(name, restart string) (string, string) {
	switch restart {
	case "":
		return "", ""
	case "no", "none":
		return config.RestartNever, ""
	case "on-failure":
		return config.RestartOnFailure, ""
	case "always", "unless-stopped":
		return config.RestartAlwaysUnlessStopped, ""
	default:
		return "", fmt.Sprintf(
			"service %q: restart policy %q not recognized; using the default", name, restart)
	}
}

func convertPorts(name string, svc types.ServiceConfig) ([]config.PortSpec, []string) {
	var specs []config.PortSpec
	var warnings []string
	declared := make(map[int]bool)

	for _, p := range svc.Ports {
		if p.Target == 0 {
			warnings = append(warnings, fmt.Sprintf(
				"service %q: port entry without a container port skipped", name))
			continue
		}
		if p.Protocol != "" && p.Protocol != "tcp" {
			warnings = append(warnings, fmt.Sprintf(
				"service %q: %s port %d skipped; only tcp is supported", name, p.Protocol, p.Target))
			continue
		}
		if p.HostIP != "" {
			warnings = append(warnings, fmt.Sprintf(
				"service %q: host_ip %q ignored; public ports bind all interfaces", name, p.HostIP))
		}

		spec := config.PortSpec{ContainerPort: int(p.Target)}
		if p.Published != "" {
			if strings.Contains(p.Published, "-") {
				warnings = append(warnings, fmt.Sprintf(
					"service %q: published port range %q not supported; container port %d kept internal",
					name, p.Published, p.Target))
			} else if hostPort, err := strconv.Atoi(p.Published); err == nil {
				spec.HostPort = hostPort
				spec.Scope = config.ScopePublic
			} else {
				warnings = append(warnings, fmt.Sprintf(
					"service %q: published port %q not parseable; container port %d kept internal",
					name, p.Published, p.Target))
			}
		}
		declared[spec.ContainerPort] = true
		specs = append(specs, spec)
	}

	// expose entries become internal ports.
	for _, e := range svc.Expose {
		portPart := e
		if idx := strings.Index(e, "/"); idx >= 0 {
			if proto := e[idx+1:]; proto != "tcp" {
				warnings = append(warnings, fmt.Sprintf(
					"service %q: exposed %s port %q skipped; only tcp is supported", name, proto, e))
				continue
			}
			portPart = e[:idx]
		}
		port, err := strconv.Atoi(portPart)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf(
				"service %q: exposed port %q not parseable; skipped", name, e))
			continue
		}
		if declared[port] {
			continue
		}
		declared[port] = true
		specs = append(specs, config.PortSpec{ContainerPort: port, Scope: config.ScopeInternal})
	}

	return specs, warnings
}

func convertEnvironment(name string, env types.MappingWithEquals) (map[string]string, []string) {
	if len(env) == 0 {
		return nil, nil
	}

	var warnings []string
	result := make(map[string]string, len(env))

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := env[k]
		if v == nil {
			// Compose passes these through from the host shell. The stack
			// model has no implicit host environment.
			warnings = append(warnings, fmt.Sprintf(
				"service %q: environment variable %s has no value; set it explicitly", name, k))
			result[k] = ""
			continue
		}
		result[k] = *v
	}

	return result, warnings
}

// =============================================================================
// Volume Conversion
// =============================================================================

func convertVolumes(name string, svc types.ServiceConfig, owners map[string]string, referenced map[string]bool) ([]config.VolumeSpec, []string) {
	var specs []config.VolumeSpec
	var warnings []string

	for _, v := range svc.Volumes {
		switch v.Type {
		case types.VolumeTypeVolume:
			if v.Source == "" {
				warnings = append(warnings, fmt.Sprintf(
					"service %q: anonymous volume at %s skipped; name it to keep the data", name, v.Target))
				continue
			}
			referenced[v.Source] = true
			if owner, taken := owners[v.Source]; taken {
				warnings = append(warnings, fmt.Sprintf(
					"service %q: volume %q already attached to %q; sharing a volume is not supported",
					name, v.Source, owner))
				continue
			}
			if v.ReadOnly {
				warnings = append(warnings, fmt.Sprintf(
					"service %q: volume %q mounted read-write; read-only mounts are not supported",
					name, v.Source))
			}
			owners[v.Source] = name
			specs = append(specs, config.VolumeSpec{
				Name:    v.Source,
				Service: name,
				Target:  v.Target,
			})
		case types.VolumeTypeBind:
			warnings = append(warnings, fmt.Sprintf(
				"service %q: bind mount %s skipped; only named volumes are managed", name, v.Source))
		default:
			warnings = append(warnings, fmt.Sprintf(
				"service %q: %s mount at %s skipped", name, v.Type, v.Target))
		}
	}

	return specs, warnings
}

// projectWarnings reports top-level compose constructs the stack model
// has no use for.
func projectWarnings(project *types.Project, referenced map[string]bool) []string {
	var warnings []string

	volNames := make([]string, 0, len(project.Volumes))
	for name := range project.Volumes {
		volNames = append(volNames, name)
	}
	sort.Strings(volNames)
	for _, name := range volNames {
		vol := project.Volumes[name]
		if !referenced[name] {
			warnings = append(warnings, fmt.Sprintf(
				"volume %q is not attached to any service; dropped", name))
			continue
		}
		if vol.External.External {
			warnings = append(warnings, fmt.Sprintf(
				"volume %q: external flag ignored; the volume is created on first start", name))
		}
		if vol.Driver != "" && vol.Driver != "local" {
			warnings = append(warnings, fmt.Sprintf(
				"volume %q: driver %q ignored; the local driver is used", name, vol.Driver))
		}
	}

	if len(project.Networks) > 0 {
		warnings = append(warnings, "top-level networks dropped; all services share the stack network")
	}
	if len(project.Secrets) > 0 {
		warnings = append(warnings, "top-level secrets dropped; secrets come from the run environment")
	}
	if len(project.Configs) > 0 {
		warnings = append(warnings, "top-level configs dropped")
	}

	return warnings
}

// =============================================================================
// Name Normalization
// =============================================================================

// normalizeServiceName lowers a compose service name onto the stack's
// naming rules: lowercase alphanumerics, hyphens, underscores.
func normalizeServiceName(name string) (string, error) {
	normalized := strings.ToLower(name)
	normalized = strings.ReplaceAll(normalized, ".", "-")

	if normalized == "" {
		return "", fmt.Errorf("%w: empty service name", ErrComposeInvalid)
	}
	for _, r := range normalized {
		valid := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
		if !valid {
			return "", fmt.Errorf("%w: service name %q cannot be normalized", ErrComposeInvalid, name)
		}
	}
	if normalized[0] == '-' || normalized[0] == '_' {
		return "", fmt.Errorf("%w: service name %q cannot be normalized", ErrComposeInvalid, name)
	}

	return normalized, nil
}
