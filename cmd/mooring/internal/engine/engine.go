// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine wraps the container engine behind a small interface
// the deployment pipeline is written against. docker.go is the only
// file in the module that calls the Docker client directly; everything
// above this package works with the types defined here, and tests run
// against MockEngine.
package engine

import (
	"context"
	"io"
	"time"
)

// Container status values as the engine reports them.
const (
	StatusCreated    = "created"
	StatusRunning    = "running"
	StatusPaused     = "paused"
	StatusRestarting = "restarting"
	StatusRemoving   = "removing"
	StatusExited     = "exited"
	StatusDead       = "dead"
)

// Restart policy names accepted in ContainerSpec.RestartPolicy.
const (
	RestartNo            = "no"
	RestartAlways        = "always"
	RestartOnFailure     = "on-failure"
	RestartUnlessStopped = "unless-stopped"
)

// ContainerState is the runtime state the engine reports for a single
// container. ExitCode is only meaningful once Status is "exited" or
// "dead".
type ContainerState struct {
	Status   string
	ExitCode int
}

// ContainerInfo is the subset of engine container detail the
// deployment pipeline consumes. Image is the reference the container
// was created from; ImageID is the content identifier it resolved to
// at create time.
type ContainerInfo struct {
	ID      string
	Name    string
	Image   string
	ImageID string
	Labels  map[string]string
	State   ContainerState
}

// ImageInfo identifies an image stored in the engine.
type ImageInfo struct {
	ID          string
	RepoDigests []string
}

// VolumeInfo describes a named volume.
type VolumeInfo struct {
	Name   string
	Labels map[string]string
}

// Mount attaches a named volume to a path inside a container. Host
// paths are deliberately not representable here.
type Mount struct {
	Volume string
	Target string
}

// PortBinding publishes a container TCP port on the host.
type PortBinding struct {
	HostPort      int
	ContainerPort int
}

// ContainerSpec carries everything needed to create a container.
type ContainerSpec struct {
	Name           string
	Image          string
	Env            []string
	Labels         map[string]string
	Mounts         []Mount
	Ports          []PortBinding // published on the host
	Expose         []int         // reachable on the stack network only
	RestartPolicy  string
	Network        string
	NetworkAliases []string
}

// Engine is the container engine surface the deployment pipeline
// depends on.
type Engine interface {
	// PullImage fetches ref from its registry. registryAuth is the
	// base64-encoded auth payload, empty for anonymous pulls. The call
	// blocks until the image is fully committed or the pull fails.
	PullImage(ctx context.Context, ref, registryAuth string) error

	// InspectImage reports the locally stored image for ref.
	InspectImage(ctx context.Context, ref string) (ImageInfo, error)

	// CreateContainer creates a container from spec and returns its
	// ID. The container is not started.
	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)

	StartContainer(ctx context.Context, id string) error

	// StopContainer stops a running container, waiting up to timeout
	// before the engine kills it. Zero timeout means the engine's
	// default grace period. Stopping a stopped container is not an
	// error.
	StopContainer(ctx context.Context, id string, timeout time.Duration) error

	// RemoveContainer force-removes a container. Named volumes
	// attached to it are never removed with it. Removing a container
	// that is already gone is not an error.
	RemoveContainer(ctx context.Context, id string) error

	// InspectContainer looks up a container by ID or name. The error
	// chain is preserved so callers can test it with IsNotFound.
	InspectContainer(ctx context.Context, nameOrID string) (ContainerInfo, error)

	// ListContainers returns every container, running or not, whose
	// labels include all entries of labels.
	ListContainers(ctx context.Context, labels map[string]string) ([]ContainerInfo, error)

	// ContainerLogs opens the multiplexed log stream for a container.
	// Callers split it into stdout and stderr with DemuxLogs. tail
	// limits output to the last N lines; empty means everything.
	ContainerLogs(ctx context.Context, id string, follow bool, tail string) (io.ReadCloser, error)

	CreateVolume(ctx context.Context, name string, labels map[string]string) error
	InspectVolume(ctx context.Context, name string) (VolumeInfo, error)
	ListVolumes(ctx context.Context, labels map[string]string) ([]VolumeInfo, error)

	// RemoveVolume deletes a named volume and the data on it. Removing
	// a volume that is already gone is not an error.
	RemoveVolume(ctx context.Context, name string) error

	// EnsureNetwork creates the named network when it does not already
	// exist. Safe against concurrent creators.
	EnsureNetwork(ctx context.Context, name string, labels map[string]string) error
	RemoveNetwork(ctx context.Context, name string) error

	Close() error
}
