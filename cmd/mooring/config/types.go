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
	"os"
	"path/filepath"
	"time"

	"github.com/AleutianAI/mooring/cmd/mooring/internal/util"
)

type MooringConfig struct {
	// Engine: how to reach the container engine
	Engine EngineConfig `yaml:"engine"`

	// Stack: defaults for locating and labeling stacks
	Stack StackDefaults `yaml:"stack"`

	// Logging: level and file destination for structured logs
	Logging LoggingConfig `yaml:"logging"`

	// History: where reconciliation run records are kept
	History HistoryConfig `yaml:"history"`

	// Archive: optional cloud archival of run records
	Archive ArchiveConfig `yaml:"archive"`

	// Proxy: defaults for rendered reverse proxy configuration
	Proxy ProxyConfig `yaml:"proxy"`

	// Remote: defaults for SSH deployment targets
	Remote RemoteConfig `yaml:"remote"`
}

type EngineConfig struct {
	// Host overrides the engine socket, e.g. unix:///run/docker.sock.
	// Empty means use DOCKER_HOST or the platform default.
	Host string `yaml:"host,omitempty"`

	// PullTimeoutSeconds bounds a single image pull. e.g. 600
	PullTimeoutSeconds int `yaml:"pull_timeout_seconds"`

	// StopTimeoutSeconds is the grace period before a stop escalates. e.g. 10
	StopTimeoutSeconds int `yaml:"stop_timeout_seconds"`
}

// DefaultLabelNamespace prefixes engine labels when no namespace is
// configured.
const DefaultLabelNamespace = "ai.aleutian.mooring"

type StackDefaults struct {
	// File is the stack file name looked up in the working directory. e.g. mooring.yaml
	File string `yaml:"file"`

	// LabelNamespace prefixes the labels stamped onto managed resources. e.g. ai.aleutian.mooring
	LabelNamespace string `yaml:"label_namespace"`
}

type LoggingConfig struct {
	// Level can be "debug", "info", "warn", "error"
	Level string `yaml:"level"`

	// Dir is where JSON log files are written. Empty disables file logs.
	Dir string `yaml:"dir,omitempty"`
}

type HistoryConfig struct {
	// Dir is where run records are stored as JSON files.
	Dir string `yaml:"dir"`

	// MaxRuns caps retained run records; older records are pruned. 0 = unlimited.
	MaxRuns int `yaml:"max_runs"`
}

type ArchiveConfig struct {
	// Bucket is the GCS bucket for archived run records. Empty disables archival.
	Bucket string `yaml:"bucket,omitempty"`

	// Prefix is the object name prefix within the bucket. e.g. mooring/runs
	Prefix string `yaml:"prefix,omitempty"`

	// CredentialsFile points at a service account JSON key.
	// Empty means use application default credentials.
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

type ProxyConfig struct {
	// Output is where the rendered proxy configuration is written.
	Output string `yaml:"output"`

	// ListenPort is the port the proxy listens on. e.g. 80
	ListenPort int `yaml:"listen_port"`
}

type RemoteConfig struct {
	// Port is the default SSH port for deployment targets. e.g. 22
	Port int `yaml:"port"`

	// ConnectTimeoutSeconds bounds the reachability probe and SSH dial. e.g. 10
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`

	// KnownHostsFile is the host key database used to verify the
	// deployment target. Empty means ~/.ssh/known_hosts.
	KnownHostsFile string `yaml:"known_hosts_file,omitempty"`

	// InsecureSkipHostKey accepts any host key. Only for disposable
	// lab targets; a verified host key is what stops a stale DNS entry
	// from handing the deployment to a stranger.
	InsecureSkipHostKey bool `yaml:"insecure_skip_host_key,omitempty"`
}

// PullTimeout returns the configured pull timeout as a duration.
func (e EngineConfig) PullTimeout() time.Duration {
	return util.EnforceDefaultTimeout(
		time.Duration(e.PullTimeoutSeconds)*time.Second, util.DefaultPullTimeout)
}

// StopTimeout returns the configured stop grace period as a duration.
func (e EngineConfig) StopTimeout() time.Duration {
	return util.EnforceDefaultTimeout(
		time.Duration(e.StopTimeoutSeconds)*time.Second, util.DefaultStopTimeout)
}

// ConnectTimeout returns the configured remote dial timeout as a duration.
func (r RemoteConfig) ConnectTimeout() time.Duration {
	return util.EnforceDefaultTimeout(
		time.Duration(r.ConnectTimeoutSeconds)*time.Second, util.DefaultConnectTimeout)
}

func DefaultConfig() MooringConfig {
	historyDir := ".mooring/history"
	logDir := ".mooring/logs"
	if home, err := os.UserHomeDir(); err == nil {
		historyDir = filepath.Join(home, ".mooring", "history")
		logDir = filepath.Join(home, ".mooring", "logs")
	}
	return MooringConfig{
		Engine: EngineConfig{
			Host:               "",
			PullTimeoutSeconds: 600,
			StopTimeoutSeconds: 10,
		},
		Stack: StackDefaults{
			File:           "mooring.yaml",
			LabelNamespace: DefaultLabelNamespace,
		},
		Logging: LoggingConfig{
			Level: "info",
			Dir:   logDir,
		},
		History: HistoryConfig{
			Dir:     historyDir,
			MaxRuns: 200,
		},
		Archive: ArchiveConfig{},
		Proxy: ProxyConfig{
			Output:     "proxy.conf",
			ListenPort: 80,
		},
		Remote: RemoteConfig{
			Port:                  22,
			ConnectTimeoutSeconds: 10,
		},
	}
}
