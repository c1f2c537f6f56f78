// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/containerd/errdefs"
)

// MockEngine implements Engine for tests.
//
// Each method delegates to its corresponding Func field when set and
// falls back to a harmless default otherwise: mutations succeed,
// lists are empty, and inspects report not-found so a fresh mock
// behaves like an empty daemon. Invocations are recorded for
// assertions.
//
// # Examples
//
//	mock := &MockEngine{
//	    PullImageFunc: func(ctx context.Context, ref, auth string) error {
//	        return fmt.Errorf("registry offline")
//	    },
//	}
//	err := mock.PullImage(ctx, "ghcr.io/acme/api:v1", "")
//	assert.Equal(t, 1, len(mock.PullImageCalls))
type MockEngine struct {
	// PullImageFunc is called when PullImage is invoked.
	PullImageFunc func(ctx context.Context, ref, registryAuth string) error

	// InspectImageFunc is called when InspectImage is invoked.
	InspectImageFunc func(ctx context.Context, ref string) (ImageInfo, error)

	// CreateContainerFunc is called when CreateContainer is invoked.
	CreateContainerFunc func(ctx context.Context, spec ContainerSpec) (string, error)

	// StartContainerFunc is called when StartContainer is invoked.
	StartContainerFunc func(ctx context.Context, id string) error

	// StopContainerFunc is called when StopContainer is invoked.
	StopContainerFunc func(ctx context.Context, id string, timeout time.Duration) error

	// RemoveContainerFunc is called when RemoveContainer is invoked.
	RemoveContainerFunc func(ctx context.Context, id string) error

	// InspectContainerFunc is called when InspectContainer is invoked.
	InspectContainerFunc func(ctx context.Context, nameOrID string) (ContainerInfo, error)

	// ListContainersFunc is called when ListContainers is invoked.
	ListContainersFunc func(ctx context.Context, labels map[string]string) ([]ContainerInfo, error)

	// ContainerLogsFunc is called when ContainerLogs is invoked.
	ContainerLogsFunc func(ctx context.Context, id string, follow bool, tail string) (io.ReadCloser, error)

	// CreateVolumeFunc is called when CreateVolume is invoked.
	CreateVolumeFunc func(ctx context.Context, name string, labels map[string]string) error

	// InspectVolumeFunc is called when InspectVolume is invoked.
	InspectVolumeFunc func(ctx context.Context, name string) (VolumeInfo, error)

	// ListVolumesFunc is called when ListVolumes is invoked.
	ListVolumesFunc func(ctx context.Context, labels map[string]string) ([]VolumeInfo, error)

	// RemoveVolumeFunc is called when RemoveVolume is invoked.
	RemoveVolumeFunc func(ctx context.Context, name string) error

	// EnsureNetworkFunc is called when EnsureNetwork is invoked.
	EnsureNetworkFunc func(ctx context.Context, name string, labels map[string]string) error

	// RemoveNetworkFunc is called when RemoveNetwork is invoked.
	RemoveNetworkFunc func(ctx context.Context, name string) error

	// CloseFunc is called when Close is invoked.
	CloseFunc func() error

	// PullImageCalls records all PullImage invocations (image ref).
	PullImageCalls []string

	// InspectImageCalls records all InspectImage invocations.
	InspectImageCalls []string

	// CreateContainerCalls records all CreateContainer invocations.
	CreateContainerCalls []ContainerSpec

	// StartContainerCalls records all StartContainer invocations.
	StartContainerCalls []string

	// StopContainerCalls records all StopContainer invocations.
	StopContainerCalls []string

	// RemoveContainerCalls records all RemoveContainer invocations.
	RemoveContainerCalls []string

	// InspectContainerCalls records all InspectContainer invocations.
	InspectContainerCalls []string

	// ListContainersCalls records the number of ListContainers invocations.
	ListContainersCalls int

	// ContainerLogsCalls records all ContainerLogs invocations.
	ContainerLogsCalls []string

	// CreateVolumeCalls records all CreateVolume invocations.
	CreateVolumeCalls []string

	// InspectVolumeCalls records all InspectVolume invocations.
	InspectVolumeCalls []string

	// ListVolumesCalls records the number of ListVolumes invocations.
	ListVolumesCalls int

	// RemoveVolumeCalls records all RemoveVolume invocations.
	RemoveVolumeCalls []string

	// EnsureNetworkCalls records all EnsureNetwork invocations.
	EnsureNetworkCalls []string

	// RemoveNetworkCalls records all RemoveNetwork invocations.
	RemoveNetworkCalls []string

	// CloseCalls records the number of Close invocations.
	CloseCalls int

	// mu protects call tracking.
	mu sync.Mutex
}

// PullImage implements Engine.
func (m *MockEngine) PullImage(ctx context.Context, ref, registryAuth string) error {
	m.mu.Lock()
	m.PullImageCalls = append(m.PullImageCalls, ref)
	m.mu.Unlock()

	if m.PullImageFunc != nil {
		return m.PullImageFunc(ctx, ref, registryAuth)
	}
	return nil
}

// InspectImage implements Engine.
func (m *MockEngine) InspectImage(ctx context.Context, ref string) (ImageInfo, error) {
	m.mu.Lock()
	m.InspectImageCalls = append(m.InspectImageCalls, ref)
	m.mu.Unlock()

	if m.InspectImageFunc != nil {
		return m.InspectImageFunc(ctx, ref)
	}
	return ImageInfo{ID: "mock-image-" + ref}, nil
}

// CreateContainer implements Engine.
func (m *MockEngine) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	m.mu.Lock()
	m.CreateContainerCalls = append(m.CreateContainerCalls, spec)
	m.mu.Unlock()

	if m.CreateContainerFunc != nil {
		return m.CreateContainerFunc(ctx, spec)
	}
	return "mock-" + spec.Name, nil
}

// StartContainer implements Engine.
func (m *MockEngine) StartContainer(ctx context.Context, id string) error {
	m.mu.Lock()
	m.StartContainerCalls = append(m.StartContainerCalls, id)
	m.mu.Unlock()

	if m.StartContainerFunc != nil {
		return m.StartContainerFunc(ctx, id)
	}
	return nil
}

// StopContainer implements Engine.
func (m *MockEngine) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	m.mu.Lock()
	m.StopContainerCalls = append(m.StopContainerCalls, id)
	m.mu.Unlock()

	if m.StopContainerFunc != nil {
		return m.StopContainerFunc(ctx, id, timeout)
	}
	return nil
}

// RemoveContainer implements Engine.
func (m *MockEngine) RemoveContainer(ctx context.Context, id string) error {
	m.mu.Lock()
	m.RemoveContainerCalls = append(m.RemoveContainerCalls, id)
	m.mu.Unlock()

	if m.RemoveContainerFunc != nil {
		return m.RemoveContainerFunc(ctx, id)
	}
	return nil
}

// InspectContainer implements Engine.
func (m *MockEngine) InspectContainer(ctx context.Context, nameOrID string) (ContainerInfo, error) {
	m.mu.Lock()
	m.InspectContainerCalls = append(m.InspectContainerCalls, nameOrID)
	m.mu.Unlock()

	if m.InspectContainerFunc != nil {
		return m.InspectContainerFunc(ctx, nameOrID)
	}
	return ContainerInfo{}, fmt.Errorf("container %q: %w", nameOrID, errdefs.ErrNotFound)
}

// ListContainers implements Engine.
func (m *MockEngine) ListContainers(ctx context.Context, labels map[string]string) ([]ContainerInfo, error) {
	m.mu.Lock()
	m.ListContainersCalls++
	m.mu.Unlock()

	if m.ListContainersFunc != nil {
		return m.ListContainersFunc(ctx, labels)
	}
	return nil, nil
}

// ContainerLogs implements Engine.
func (m *MockEngine) ContainerLogs(ctx context.Context, id string, follow bool, tail string) (io.ReadCloser, error) {
	m.mu.Lock()
	m.ContainerLogsCalls = append(m.ContainerLogsCalls, id)
	m.mu.Unlock()

	if m.ContainerLogsFunc != nil {
		return m.ContainerLogsFunc(ctx, id, follow, tail)
	}
	return io.NopCloser(strings.NewReader("")), nil
}

// CreateVolume implements Engine.
func (m *MockEngine) CreateVolume(ctx context.Context, name string, labels map[string]string) error {
	m.mu.Lock()
	m.CreateVolumeCalls = append(m.CreateVolumeCalls, name)
	m.mu.Unlock()

	if m.CreateVolumeFunc != nil {
		return m.CreateVolumeFunc(ctx, name, labels)
	}
	return nil
}

// InspectVolume implements Engine.
func (m *MockEngine) InspectVolume(ctx context.Context, name string) (VolumeInfo, error) {
	m.mu.Lock()
	m.InspectVolumeCalls = append(m.InspectVolumeCalls, name)
	m.mu.Unlock()

	if m.InspectVolumeFunc != nil {
		return m.InspectVolumeFunc(ctx, name)
	}
	return VolumeInfo{}, fmt.Errorf("volume %q: %w", name, errdefs.ErrNotFound)
}

// ListVolumes implements Engine.
func (m *MockEngine) ListVolumes(ctx context.Context, labels map[string]string) ([]VolumeInfo, error) {
	m.mu.Lock()
	m.ListVolumesCalls++
	m.mu.Unlock()

	if m.ListVolumesFunc != nil {
		return m.ListVolumesFunc(ctx, labels)
	}
	return nil, nil
}

// RemoveVolume implements Engine.
func (m *MockEngine) RemoveVolume(ctx context.Context, name string) error {
	m.mu.Lock()
	m.RemoveVolumeCalls = append(m.RemoveVolumeCalls, name)
	m.mu.Unlock()

	if m.RemoveVolumeFunc != nil {
		return m.RemoveVolumeFunc(ctx, name)
	}
	return nil
}

// EnsureNetwork implements Engine.
func (m *MockEngine) EnsureNetwork(ctx context.Context, name string, labels map[string]string) error {
	m.mu.Lock()
	m.EnsureNetworkCalls = append(m.EnsureNetworkCalls, name)
	m.mu.Unlock()

	if m.EnsureNetworkFunc != nil {
		return m.EnsureNetworkFunc(ctx, name, labels)
	}
	return nil
}

// RemoveNetwork implements Engine.
func (m *MockEngine) RemoveNetwork(ctx context.Context, name string) error {
	m.mu.Lock()
	m.RemoveNetworkCalls = append(m.RemoveNetworkCalls, name)
	m.mu.Unlock()

	if m.RemoveNetworkFunc != nil {
		return m.RemoveNetworkFunc(ctx, name)
	}
	return nil
}

// Close implements Engine.
func (m *MockEngine) Close() error {
	m.mu.Lock()
	m.CloseCalls++
	m.mu.Unlock()

	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

var _ Engine = (*MockEngine)(nil)
