// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package gcs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
)

func TestNewClient_RequiresBucket(t *testing.T) {
	_, err := NewClient(context.Background(), config.ArchiveConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no archive bucket")
}

func TestNewClient_MissingCredentialsFile(t *testing.T) {
	_, err := NewClient(context.Background(), config.ArchiveConfig{
		Bucket:          "audit",
		CredentialsFile: "/nonexistent/key.json",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service account key not found")
	assert.Contains(t, err.Error(), "/nonexistent/key.json")
}

func TestClient_UploadFile_MissingLocalFile(t *testing.T) {
	client := &Client{BucketName: "audit"}

	err := client.UploadFile(context.Background(), "/nonexistent/runs.jsonl", "mooring/runs.jsonl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open the local file")
}

func TestClient_UploadDir_MissingDirectory(t *testing.T) {
	client := &Client{BucketName: "audit"}

	n, err := client.UploadDir(context.Background(), "/nonexistent/history", "mooring")
	require.Error(t, err)
	assert.Zero(t, n)
}

func TestClient_UploadDir_SkipsSubdirectories(t *testing.T) {
	// A directory containing only subdirectories uploads nothing, so no
	// bucket round-trip happens and a bare client is enough.
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0750))

	client := &Client{BucketName: "audit"}
	n, err := client.UploadDir(context.Background(), dir, "mooring")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestClient_ArchiveLogs_MissingDirectory(t *testing.T) {
	client := &Client{BucketName: "audit", Prefix: "mooring"}

	n, err := client.ArchiveLogs(context.Background(), "/nonexistent/logs", "vm-1")
	require.Error(t, err)
	assert.Zero(t, n)
}

func TestHistoryObjectName(t *testing.T) {
	now := time.Date(2025, 11, 3, 14, 30, 5, 0, time.UTC)

	name := HistoryObjectName("mooring/runs", "vm-shop-prod", now)
	assert.Equal(t, "mooring/runs/vm-shop-prod/20251103T143005Z-runs.jsonl", name)

	// Snapshots a second apart never collide.
	later := HistoryObjectName("mooring/runs", "vm-shop-prod", now.Add(time.Second))
	assert.NotEqual(t, name, later)

	assert.Equal(t, "vm/20251103T143005Z-runs.jsonl", HistoryObjectName("", "vm", now),
		"empty prefix keeps names clean")
	assert.Contains(t, HistoryObjectName("p", "", now), "unknown-host")
}

func TestObjectURL(t *testing.T) {
	client := &Client{BucketName: "audit"}
	assert.Equal(t, "gs://audit/mooring/runs.jsonl", client.ObjectURL("mooring/runs.jsonl"))
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"runs.jsonl", "application/x-ndjson"},
		{"result.json", "application/json"},
		{"mooring_2025-11-03.log", "text/plain; charset=utf-8"},
		{"snapshot.bin", "application/octet-stream"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, contentTypeFor(tt.path), tt.path)
	}
}
