// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
)

// DockerEngine talks to a Docker-compatible daemon. Every daemon call
// in the module goes through this file so the client API surface stays
// in one place.
type DockerEngine struct {
	api *client.Client
}

var _ Engine = (*DockerEngine)(nil)

// NewDockerEngine connects using the standard environment variables
// (DOCKER_HOST and friends), falling back to the local socket.
func NewDockerEngine() (*DockerEngine, error) {
	api, err := client.New(client.FromEnv)
	if err != nil {
		return nil, fmt.Errorf("connect to container engine: %w", err)
	}
	return &DockerEngine{api: api}, nil
}

// NewDockerEngineHost connects to an explicit daemon address,
// overriding whatever the environment says.
func NewDockerEngineHost(host string) (*DockerEngine, error) {
	api, err := client.New(client.FromEnv, client.WithHost(host))
	if err != nil {
		return nil, fmt.Errorf("connect to container engine at %q: %w", host, err)
	}
	return &DockerEngine{api: api}, nil
}

func (e *DockerEngine) Close() error {
	return e.api.Close()
}

func (e *DockerEngine) PullImage(ctx context.Context, ref, registryAuth string) error {
	rc, err := e.api.ImagePull(ctx, ref, client.ImagePullOptions{
		RegistryAuth: registryAuth,
	})
	if err != nil {
		return fmt.Errorf("pull image %q: %w", ref, err)
	}
	defer rc.Close()

	// The daemon streams pull progress on the response body and only
	// commits the image once the stream is drained.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("pull image %q: %w", ref, err)
	}
	return nil
}

func (e *DockerEngine) InspectImage(ctx context.Context, ref string) (ImageInfo, error) {
	resp, err := e.api.ImageInspect(ctx, ref)
	if err != nil {
		return ImageInfo{}, err
	}
	return ImageInfo{
		ID:          string(resp.ID),
		RepoDigests: resp.RepoDigests,
	}, nil
}

func (e *DockerEngine) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	exposed := network.PortSet{}
	bindings := network.PortMap{}
	hostIP, _ := netip.ParseAddr("0.0.0.0")

	for _, p := range spec.Ports {
		port, _ := network.PortFrom(uint16(p.ContainerPort), "tcp")
		exposed[port] = struct{}{}
		bindings[port] = append(bindings[port], network.PortBinding{
			HostIP:   hostIP,
			HostPort: strconv.Itoa(p.HostPort),
		})
	}
	for _, cp := range spec.Expose {
		port, _ := network.PortFrom(uint16(cp), "tcp")
		exposed[port] = struct{}{}
	}

	mounts := make([]mount.Mount, 0, len(spec.Mounts))
	for _, m := range spec.Mounts {
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeVolume,
			Source: m.Volume,
			Target: m.Target,
		})
	}

	cCfg := &container.Config{
		Image:        spec.Image,
		Env:          spec.Env,
		Labels:       spec.Labels,
		ExposedPorts: exposed,
	}
	hCfg := &container.HostConfig{
		Mounts:        mounts,
		PortBindings:  bindings,
		RestartPolicy: restartPolicy(spec.RestartPolicy),
	}

	var nCfg *network.NetworkingConfig
	if spec.Network != "" {
		es := &network.EndpointSettings{}
		if len(spec.NetworkAliases) > 0 {
			es.Aliases = spec.NetworkAliases
		}
		nCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{spec.Network: es},
		}
	}

	created, err := e.api.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:           cCfg,
		HostConfig:       hCfg,
		NetworkingConfig: nCfg,
		Name:             spec.Name,
		Image:            spec.Image,
	})
	if err != nil {
		return "", fmt.Errorf("create container %q: %w", spec.Name, err)
	}
	return created.ID, nil
}

func (e *DockerEngine) StartContainer(ctx context.Context, id string) error {
	if _, err := e.api.ContainerStart(ctx, id, client.ContainerStartOptions{}); err != nil {
		return fmt.Errorf("start container %q: %w", id, err)
	}
	return nil
}

func (e *DockerEngine) StopContainer(ctx context.Context, id string, timeout time.Duration) error {
	opts := client.ContainerStopOptions{}
	if timeout > 0 {
		secs := int(timeout / time.Second)
		if secs < 1 {
			secs = 1
		}
		opts.Timeout = &secs
	}
	if _, err := e.api.ContainerStop(ctx, id, opts); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("stop container %q: %w", id, err)
	}
	return nil
}

func (e *DockerEngine) RemoveContainer(ctx context.Context, id string) error {
	_, err := e.api.ContainerRemove(ctx, id, client.ContainerRemoveOptions{
		Force:         true,
		RemoveVolumes: false,
	})
	if err != nil && !errdefs.IsNotFound(err) {
		return fmt.Errorf("remove container %q: %w", id, err)
	}
	return nil
}

func (e *DockerEngine) InspectContainer(ctx context.Context, nameOrID string) (ContainerInfo, error) {
	resp, err := e.api.ContainerInspect(ctx, nameOrID, client.ContainerInspectOptions{})
	if err != nil {
		return ContainerInfo{}, err
	}

	c := resp.Container
	info := ContainerInfo{
		ID:      c.ID,
		Name:    strings.TrimPrefix(c.Name, "/"),
		ImageID: string(c.Image),
	}
	if c.Config != nil {
		info.Image = c.Config.Image
		info.Labels = c.Config.Labels
	}
	if c.State != nil {
		info.State = ContainerState{
			Status:   string(c.State.Status),
			ExitCode: int(c.State.ExitCode),
		}
	}
	return info, nil
}

func (e *DockerEngine) ListContainers(ctx context.Context, labels map[string]string) ([]ContainerInfo, error) {
	f := make(client.Filters)
	for k, v := range labels {
		f = f.Add("label", k+"="+v)
	}

	resp, err := e.api.ContainerList(ctx, client.ContainerListOptions{
		All:     true,
		Filters: f,
	})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}

	infos := make([]ContainerInfo, 0, len(resp.Items))
	for _, c := range resp.Items {
		info, err := e.InspectContainer(ctx, c.ID)
		if err != nil {
			// Vanished between list and inspect.
			if errdefs.IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("inspect container %q: %w", c.ID, err)
		}
		infos = append(infos, info)
	}
	return infos, nil
}

func (e *DockerEngine) ContainerLogs(ctx context.Context, id string, follow bool, tail string) (io.ReadCloser, error) {
	rc, err := e.api.ContainerLogs(ctx, id, client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     follow,
		Timestamps: false,
		Since:      "0",
		Tail:       tail,
	})
	if err != nil {
		return nil, fmt.Errorf("logs for container %q: %w", id, err)
	}
	return rc, nil
}

func (e *DockerEngine) CreateVolume(ctx context.Context, name string, labels map[string]string) error {
	_, err := e.api.VolumeCreate(ctx, client.VolumeCreateOptions{
		Name:   name,
		Labels: labels,
	})
	if err != nil {
		return fmt.Errorf("create volume %q: %w", name, err)
	}
	return nil
}

func (e *DockerEngine) InspectVolume(ctx context.Context, name string) (VolumeInfo, error) {
	resp, err := e.api.VolumeInspect(ctx, name, client.VolumeInspectOptions{})
	if err != nil {
		return VolumeInfo{}, err
	}
	return VolumeInfo{
		Name:   resp.Volume.Name,
		Labels: resp.Volume.Labels,
	}, nil
}

func (e *DockerEngine) ListVolumes(ctx context.Context, labels map[string]string) ([]VolumeInfo, error) {
	f := make(client.Filters)
	for k, v := range labels {
		f = f.Add("label", k+"="+v)
	}

	resp, err := e.api.VolumeList(ctx, client.VolumeListOptions{Filters: f})
	if err != nil {
		return nil, fmt.Errorf("list volumes: %w", err)
	}

	infos := make([]VolumeInfo, 0, len(resp.Items))
	for _, v := range resp.Items {
		if v.Name == "" {
			continue
		}
		infos = append(infos, VolumeInfo{Name: v.Name, Labels: v.Labels})
	}
	return infos, nil
}

func (e *DockerEngine) RemoveVolume(ctx context.Context, name string) error {
	if _, err := e.api.VolumeRemove(ctx, name, client.VolumeRemoveOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove volume %q: %w", name, err)
	}
	return nil
}

func (e *DockerEngine) EnsureNetwork(ctx context.Context, name string, labels map[string]string) error {
	if _, err := e.api.NetworkInspect(ctx, name, client.NetworkInspectOptions{}); err == nil {
		return nil
	}

	_, err := e.api.NetworkCreate(ctx, name, client.NetworkCreateOptions{Labels: labels})
	if err != nil {
		// Lost the race to another creator; re-inspect.
		if _, ie := e.api.NetworkInspect(ctx, name, client.NetworkInspectOptions{}); ie == nil {
			return nil
		}
		return fmt.Errorf("create network %q: %w", name, err)
	}
	return nil
}

func (e *DockerEngine) RemoveNetwork(ctx context.Context, name string) error {
	if _, err := e.api.NetworkRemove(ctx, name, client.NetworkRemoveOptions{}); err != nil {
		if errdefs.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("remove network %q: %w", name, err)
	}
	return nil
}

func restartPolicy(name string) container.RestartPolicy {
	switch name {
	case RestartAlways:
		return container.RestartPolicy{Name: container.RestartPolicyAlways}
	case RestartOnFailure:
		return container.RestartPolicy{Name: container.RestartPolicyOnFailure}
	case RestartUnlessStopped:
		return container.RestartPolicy{Name: container.RestartPolicyUnlessStopped}
	default:
		return container.RestartPolicy{Name: container.RestartPolicyDisabled}
	}
}
