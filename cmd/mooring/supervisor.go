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
Package main provides Supervisor for per-service container lifecycle.

The supervisor owns the translation from a declared service to a
running container: dependency gating, host port checks, volume
attachment, and the recreate sequence. It never decides ORDER; the
reconciler drives services through it in dependency order.

# Recreate Semantics

Start always recreates. Any existing container of the service's name
is stopped and removed (volumes untouched), declared volumes are
ensured, and a fresh container is created from the current declaration
and started. Container filesystems are disposable here; state lives in
volumes.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
	"github.com/AleutianAI/mooring/cmd/mooring/internal/engine"
	"github.com/AleutianAI/mooring/cmd/mooring/internal/util"
	"github.com/AleutianAI/mooring/pkg/logging"
)

// =============================================================================
// Error Sentinel Values
// =============================================================================

// ErrDependencyNotRunning is returned when a service's declared
// dependency is not in the running state.
var ErrDependencyNotRunning = errors.New("dependency not running")

// ErrPortConflict is returned when a requested public host port is
// already bound on the host.
var ErrPortConflict = errors.New("host port conflict")

// =============================================================================
// Service States
// =============================================================================

// ServiceState is the supervisor's view of one service.
type ServiceState string

const (
	// StateAbsent means no container exists for the service.
	StateAbsent ServiceState = "absent"

	// StateStarting means the container exists but is not yet running.
	StateStarting ServiceState = "starting"

	// StateRunning means the container is running.
	StateRunning ServiceState = "running"

	// StateStopping means the container is being removed.
	StateStopping ServiceState = "stopping"

	// StateFailed means the container exited, died, or is paused.
	StateFailed ServiceState = "failed"
)

// mapContainerState folds the engine's container states onto the
// supervisor's.
func mapContainerState(status string) ServiceState {
	switch status {
	case engine.StatusCreated, engine.StatusRestarting:
		return StateStarting
	case engine.StatusRunning:
		return StateRunning
	case engine.StatusRemoving:
		return StateStopping
	case engine.StatusExited, engine.StatusDead, engine.StatusPaused:
		return StateFailed
	default:
		return StateFailed
	}
}

// =============================================================================
// Interface Definition
// =============================================================================

// Supervisor manages the containers of one stack's services.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the status prober
// calls Status from several goroutines.
type Supervisor interface {
	// Start recreates and starts the declared service.
	//
	// # Outputs
	//
	//   - error: wrapped ErrDependencyNotRunning when a declared
	//     dependency is not running, wrapped ErrPortConflict when a
	//     public host port is already bound, or an engine error
	Start(ctx context.Context, svc config.ServiceSpec) error

	// Stop stops the service's container. Stopping an absent service
	// is not an error.
	Stop(ctx context.Context, name string) error

	// Remove removes the service's container, preserving volumes.
	// Removing an absent service is not an error.
	Remove(ctx context.Context, name string) error

	// Status reports the service's state. A missing container is
	// StateAbsent, not an error.
	Status(ctx context.Context, name string) (ServiceState, error)

	// List returns every container labeled for this stack, declared
	// or not.
	List(ctx context.Context) ([]engine.ContainerInfo, error)
}

// =============================================================================
// Default Implementation
// =============================================================================

// probeDialTimeout bounds the proactive host port probe.
const probeDialTimeout = 500 * time.Millisecond

// DefaultSupervisor implements Supervisor against the container engine.
type DefaultSupervisor struct {
	engine      engine.Engine
	volumes     VolumeStore
	stack       *config.StackSpec
	labels      StackLabels
	runID       string
	stopTimeout time.Duration
	logger      *logging.Logger
}

// NewDefaultSupervisor creates a supervisor for one stack.
//
// # Inputs
//
//   - eng: Container engine access (required)
//   - volumes: Volume store for the same stack (required)
//   - stack: Declared stack (required)
//   - labels: Label builder for the configured namespace
//   - runID: Reconciliation run to stamp onto created containers, may
//     be empty for one-off operations
//   - stopTimeout: Grace period before a stop escalates, clamped to a
//     sane minimum
//   - logger: Structured logger (required)
func NewDefaultSupervisor(eng engine.Engine, volumes VolumeStore, stack *config.StackSpec, labels StackLabels, runID string, stopTimeout time.Duration, logger *logging.Logger) (*DefaultSupervisor, error) {
	if eng == nil {
		return nil, fmt.Errorf("%w: Engine", ErrNilDependency)
	}
	if volumes == nil {
		return nil, fmt.Errorf("%w: VolumeStore", ErrNilDependency)
	}
	if stack == nil {
		return nil, fmt.Errorf("%w: StackSpec", ErrNilDependency)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: Logger", ErrNilDependency)
	}
	return &DefaultSupervisor{
		engine:      eng,
		volumes:     volumes,
		stack:       stack,
		labels:      labels,
		runID:       runID,
		stopTimeout: util.EnforceMinTimeout(stopTimeout, util.MinStopTimeout),
		logger:      logger,
	}, nil
}

// Start implements Supervisor.
func (s *DefaultSupervisor) Start(ctx context.Context, svc config.ServiceSpec) error {
	for _, dep := range svc.DependsOn {
		state, err := s.Status(ctx, dep)
		if err != nil {
			return fmt.Errorf("check dependency %q of %q: %w", dep, svc.Name, err)
		}
		if state != StateRunning {
			return fmt.Errorf("%w: service %q requires %q, which is %s",
				ErrDependencyNotRunning, svc.Name, dep, state)
		}
	}

	name := ContainerName(s.stack.Name, svc.Name)

	// Remove the previous generation first so its own port bindings do
	// not read as conflicts.
	if err := s.removeExisting(ctx, name); err != nil {
		return err
	}

	for _, port := range svc.Ports {
		if port.Scope != config.ScopePublic {
			continue
		}
		if err := probeHostPort(port.HostPort); err != nil {
			return fmt.Errorf("service %q: %w", svc.Name, err)
		}
	}

	for _, vol := range s.stack.VolumesFor(svc.Name) {
		if err := s.volumes.Ensure(ctx, vol); err != nil {
			return fmt.Errorf("service %q: %w", svc.Name, err)
		}
	}

	network := NetworkName(s.stack.Name)
	if err := s.engine.EnsureNetwork(ctx, network, s.labels.ForNetwork(s.stack.Name)); err != nil {
		return fmt.Errorf("service %q: %w", svc.Name, err)
	}

	spec, err := s.containerSpec(svc, name, network)
	if err != nil {
		return err
	}
	id, err := s.engine.CreateContainer(ctx, spec)
	if err != nil && engine.IsNameConflict(err) {
		// Something took the name between removeExisting and create.
		// Whatever it is, it is not running this spec: evict it and
		// retry once.
		s.logger.Warn("container name taken, evicting", "container", name)
		if rerr := s.removeExisting(ctx, name); rerr != nil {
			return fmt.Errorf("service %q: %w", svc.Name, err)
		}
		id, err = s.engine.CreateContainer(ctx, spec)
	}
	if err != nil {
		if engine.IsPortConflict(err) {
			return fmt.Errorf("%w: service %q: %v", ErrPortConflict, svc.Name, err)
		}
		return fmt.Errorf("service %q: %w", svc.Name, err)
	}

	if err := s.engine.StartContainer(ctx, id); err != nil {
		if engine.IsPortConflict(err) {
			return fmt.Errorf("%w: service %q: %v", ErrPortConflict, svc.Name, err)
		}
		return fmt.Errorf("service %q: %w", svc.Name, err)
	}

	s.logger.Info("service started", "service", svc.Name, "container", name)
	return nil
}

// removeExisting stops and removes any container holding the service's
// name. Volumes are preserved.
func (s *DefaultSupervisor) removeExisting(ctx context.Context, name string) error {
	_, err := s.engine.InspectContainer(ctx, name)
	if engine.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("inspect container %q: %w", name, err)
	}

	if err := s.engine.StopContainer(ctx, name, s.stopTimeout); err != nil {
		return fmt.Errorf("stop container %q: %w", name, err)
	}
	if err := s.engine.RemoveContainer(ctx, name); err != nil {
		return fmt.Errorf("remove container %q: %w", name, err)
	}
	s.logger.Debug("removed previous container", "container", name)
	return nil
}

// containerSpec assembles the engine spec from the declaration. The
// declared environment is validated and rendered in sorted key order so
// the container config is identical from run to run.
func (s *DefaultSupervisor) containerSpec(svc config.ServiceSpec, name, network string) (engine.ContainerSpec, error) {
	envs, err := util.FromMap(svc.Env, nil)
	if err != nil {
		return engine.ContainerSpec{}, fmt.Errorf("environment of service %q: %w", svc.Name, err)
	}

	spec := engine.ContainerSpec{
		Name:           name,
		Image:          svc.Image,
		Labels:         s.labels.ForContainer(s.stack.Name, svc.Name, s.stack.ServiceHash(svc.Name), s.runID),
		RestartPolicy:  engineRestartPolicy(svc.RestartPolicy),
		Network:        network,
		NetworkAliases: []string{svc.Name},
	}
	if envs.Len() > 0 {
		spec.Env = envs.ToSlice()
		s.logger.Debug("container environment", "service", svc.Name, "env", envs.RedactedSlice())
	}

	for _, vol := range s.stack.VolumesFor(svc.Name) {
		spec.Mounts = append(spec.Mounts, engine.Mount{
			Volume: VolumeName(s.stack.Name, vol.Name),
			Target: vol.Target,
		})
	}

	for _, port := range svc.Ports {
		if port.Scope == config.ScopePublic {
			spec.Ports = append(spec.Ports, engine.PortBinding{
				HostPort:      port.HostPort,
				ContainerPort: port.ContainerPort,
			})
		} else {
			spec.Expose = append(spec.Expose, port.ContainerPort)
		}
	}
	return spec, nil
}

// Stop implements Supervisor.
func (s *DefaultSupervisor) Stop(ctx context.Context, name string) error {
	physical := ContainerName(s.stack.Name, name)
	err := s.engine.StopContainer(ctx, physical, s.stopTimeout)
	if engine.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stop service %q: %w", name, err)
	}
	s.logger.Info("service stopped", "service", name)
	return nil
}

// Remove implements Supervisor.
func (s *DefaultSupervisor) Remove(ctx context.Context, name string) error {
	physical := ContainerName(s.stack.Name, name)
	err := s.engine.RemoveContainer(ctx, physical)
	if engine.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove service %q: %w", name, err)
	}
	return nil
}

// Status implements Supervisor.
func (s *DefaultSupervisor) Status(ctx context.Context, name string) (ServiceState, error) {
	info, err := s.engine.InspectContainer(ctx, ContainerName(s.stack.Name, name))
	if engine.IsNotFound(err) {
		return StateAbsent, nil
	}
	if err != nil {
		return StateAbsent, fmt.Errorf("status of service %q: %w", name, err)
	}
	return mapContainerState(info.State.Status), nil
}

// List implements Supervisor.
func (s *DefaultSupervisor) List(ctx context.Context) ([]engine.ContainerInfo, error) {
	return s.engine.ListContainers(ctx, s.labels.StackSelector(s.stack.Name))
}

// =============================================================================
// Helpers
// =============================================================================

// probeHostPort reports a conflict when something already accepts
// connections on the port. A bind on any interface answers on
// loopback too.
func probeHostPort(port int) error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, probeDialTimeout)
	if err == nil {
		conn.Close()
		return fmt.Errorf("%w: port %d is already bound", ErrPortConflict, port)
	}
	return nil
}

// engineRestartPolicy maps the declared restart policy onto the
// engine's names.
func engineRestartPolicy(policy string) string {
	switch policy {
	case config.RestartNever:
		return engine.RestartNo
	case config.RestartOnFailure:
		return engine.RestartOnFailure
	case config.RestartAlwaysUnlessStopped:
		return engine.RestartUnlessStopped
	default:
		return engine.RestartUnlessStopped
	}
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockSupervisor implements Supervisor for testing.
//
// # Examples
//
//	mock := &MockSupervisor{
//	    StatusFunc: func(ctx context.Context, name string) (ServiceState, error) {
//	        return StateFailed, nil
//	    },
//	}
type MockSupervisor struct {
	// StartFunc is called when Start is invoked.
	StartFunc func(ctx context.Context, svc config.ServiceSpec) error

	// StopFunc is called when Stop is invoked.
	StopFunc func(ctx context.Context, name string) error

	// RemoveFunc is called when Remove is invoked.
	RemoveFunc func(ctx context.Context, name string) error

	// StatusFunc is called when Status is invoked.
	StatusFunc func(ctx context.Context, name string) (ServiceState, error)

	// ListFunc is called when List is invoked.
	ListFunc func(ctx context.Context) ([]engine.ContainerInfo, error)

	// StartCalls records all Start invocations (service name).
	StartCalls []string

	// StopCalls records all Stop invocations.
	StopCalls []string

	// RemoveCalls records all Remove invocations.
	RemoveCalls []string

	// StatusCalls records all Status invocations.
	StatusCalls []string

	// ListCalls counts List invocations.
	ListCalls int

	// mu protects call tracking.
	mu sync.Mutex
}

// Start implements Supervisor.
func (m *MockSupervisor) Start(ctx context.Context, svc config.ServiceSpec) error {
	m.mu.Lock()
	m.StartCalls = append(m.StartCalls, svc.Name)
	m.mu.Unlock()

	if m.StartFunc != nil {
		return m.StartFunc(ctx, svc)
	}
	return nil
}

// Stop implements Supervisor.
func (m *MockSupervisor) Stop(ctx context.Context, name string) error {
	m.mu.Lock()
	m.StopCalls = append(m.StopCalls, name)
	m.mu.Unlock()

	if m.StopFunc != nil {
		return m.StopFunc(ctx, name)
	}
	return nil
}

// Remove implements Supervisor.
func (m *MockSupervisor) Remove(ctx context.Context, name string) error {
	m.mu.Lock()
	m.RemoveCalls = append(m.RemoveCalls, name)
	m.mu.Unlock()

	if m.RemoveFunc != nil {
		return m.RemoveFunc(ctx, name)
	}
	return nil
}

// Status implements Supervisor.
func (m *MockSupervisor) Status(ctx context.Context, name string) (ServiceState, error) {
	m.mu.Lock()
	m.StatusCalls = append(m.StatusCalls, name)
	m.mu.Unlock()

	if m.StatusFunc != nil {
		return m.StatusFunc(ctx, name)
	}
	return StateRunning, nil
}

// List implements Supervisor.
func (m *MockSupervisor) List(ctx context.Context) ([]engine.ContainerInfo, error) {
	m.mu.Lock()
	m.ListCalls++
	m.mu.Unlock()

	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var _ Supervisor = (*DefaultSupervisor)(nil)
var _ Supervisor = (*MockSupervisor)(nil)
