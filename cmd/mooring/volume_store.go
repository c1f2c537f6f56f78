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
Package main provides VolumeStore for data volume lifecycle.

Data volumes outlive every container operation. The store can create a
missing volume and will never recreate an existing one; recreating
would discard the data the whole reconciliation model exists to
protect. Deletion lives on a single, separately authorized path
(Destroy) that reconciliation never calls.
*/
package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
	"github.com/AleutianAI/mooring/cmd/mooring/internal/engine"
	"github.com/AleutianAI/mooring/pkg/logging"
)

// =============================================================================
// Interface Definition
// =============================================================================

// VolumeStore manages the data volumes of one stack.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type VolumeStore interface {
	// Ensure creates the declared volume when absent. An existing
	// volume is left exactly as it is.
	//
	// # Inputs
	//
	//   - ctx: Cancellation
	//   - vol: Declared volume; its physical name derives from the stack
	//
	// # Outputs
	//
	//   - error: nil when the volume exists afterwards
	Ensure(ctx context.Context, vol config.VolumeSpec) error

	// Exists reports whether the declared volume is present.
	Exists(ctx context.Context, name string) (bool, error)

	// List returns the stack's labeled volumes.
	List(ctx context.Context) ([]engine.VolumeInfo, error)

	// Destroy removes the declared volume and its data. This is the
	// only deletion path; it must be reached through the separately
	// authorized destructive command, never through reconciliation.
	Destroy(ctx context.Context, name string) error
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultVolumeStore implements VolumeStore against the container
// engine.
type DefaultVolumeStore struct {
	engine engine.Engine
	labels StackLabels
	stack  string
	logger *logging.Logger
}

// NewDefaultVolumeStore creates a volume store scoped to one stack.
func NewDefaultVolumeStore(eng engine.Engine, labels StackLabels, stackName string, logger *logging.Logger) (*DefaultVolumeStore, error) {
	if eng == nil {
		return nil, fmt.Errorf("%w: Engine", ErrNilDependency)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: Logger", ErrNilDependency)
	}
	if stackName == "" {
		return nil, fmt.Errorf("%w: stack name", ErrNilDependency)
	}
	return &DefaultVolumeStore{
		engine: eng,
		labels: labels,
		stack:  stackName,
		logger: logger,
	}, nil
}

// Ensure implements VolumeStore.
func (s *DefaultVolumeStore) Ensure(ctx context.Context, vol config.VolumeSpec) error {
	name := VolumeName(s.stack, vol.Name)

	_, err := s.engine.InspectVolume(ctx, name)
	if err == nil {
		s.logger.Debug("volume present", "volume", name)
		return nil
	}
	if !engine.IsNotFound(err) {
		return fmt.Errorf("inspect volume %q: %w", name, err)
	}

	createErr := s.engine.CreateVolume(ctx, name, s.labels.ForVolume(s.stack, vol.Name))
	if createErr != nil {
		// Lost a create race; the volume existing is all that matters.
		if _, again := s.engine.InspectVolume(ctx, name); again == nil {
			s.logger.Debug("volume present", "volume", name)
			return nil
		}
		return createErr
	}

	s.logger.Info("volume created", "volume", name, "service", vol.Service)
	return nil
}

// Exists implements VolumeStore.
func (s *DefaultVolumeStore) Exists(ctx context.Context, name string) (bool, error) {
	physical := VolumeName(s.stack, name)
	_, err := s.engine.InspectVolume(ctx, physical)
	if err == nil {
		return true, nil
	}
	if engine.IsNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("inspect volume %q: %w", physical, err)
}

// List implements VolumeStore.
func (s *DefaultVolumeStore) List(ctx context.Context) ([]engine.VolumeInfo, error) {
	return s.engine.ListVolumes(ctx, s.labels.StackSelector(s.stack))
}

// Destroy implements VolumeStore.
func (s *DefaultVolumeStore) Destroy(ctx context.Context, name string) error {
	physical := VolumeName(s.stack, name)
	s.logger.Warn("destroying volume", "volume", physical, "data_loss", true)
	if err := s.engine.RemoveVolume(ctx, physical); err != nil {
		return fmt.Errorf("destroy volume %q: %w", physical, err)
	}
	return nil
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockVolumeStore implements VolumeStore for testing.
type MockVolumeStore struct {
	// EnsureFunc is called when Ensure is invoked.
	EnsureFunc func(ctx context.Context, vol config.VolumeSpec) error

	// ExistsFunc is called when Exists is invoked.
	ExistsFunc func(ctx context.Context, name string) (bool, error)

	// ListFunc is called when List is invoked.
	ListFunc func(ctx context.Context) ([]engine.VolumeInfo, error)

	// DestroyFunc is called when Destroy is invoked.
	DestroyFunc func(ctx context.Context, name string) error

	// EnsureCalls records all Ensure invocations (declared volume name).
	EnsureCalls []string

	// ExistsCalls records all Exists invocations.
	ExistsCalls []string

	// ListCalls counts List invocations.
	ListCalls int

	// DestroyCalls records all Destroy invocations.
	DestroyCalls []string

	// mu protects call tracking.
	mu sync.Mutex
}

// Ensure implements VolumeStore.
func (m *MockVolumeStore) Ensure(ctx context.Context, vol config.VolumeSpec) error {
	m.mu.Lock()
	m.EnsureCalls = append(m.EnsureCalls, vol.Name)
	m.mu.Unlock()

	if m.EnsureFunc != nil {
		return m.EnsureFunc(ctx, vol)
	}
	return nil
}

// Exists implements VolumeStore.
func (m *MockVolumeStore) Exists(ctx context.Context, name string) (bool, error) {
	m.mu.Lock()
	m.ExistsCalls = append(m.ExistsCalls, name)
	m.mu.Unlock()

	if m.ExistsFunc != nil {
		return m.ExistsFunc(ctx, name)
	}
	return true, nil
}

// List implements VolumeStore.
func (m *MockVolumeStore) List(ctx context.Context) ([]engine.VolumeInfo, error) {
	m.mu.Lock()
	m.ListCalls++
	m.mu.Unlock()

	if m.ListFunc != nil {
		return m.ListFunc(ctx)
	}
	return nil, nil
}

// Destroy implements VolumeStore.
func (m *MockVolumeStore) Destroy(ctx context.Context, name string) error {
	m.mu.Lock()
	m.DestroyCalls = append(m.DestroyCalls, name)
	m.mu.Unlock()

	if m.DestroyFunc != nil {
		return m.DestroyFunc(ctx, name)
	}
	return nil
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var _ VolumeStore = (*DefaultVolumeStore)(nil)
var _ VolumeStore = (*MockVolumeStore)(nil)
