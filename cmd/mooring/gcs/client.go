// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gcs uploads run history and log files to a Google Cloud
// Storage bucket for fleet-wide audit. Each deployment host writes
// under its own object prefix, so one bucket can hold the history of
// every VM a team reconciles.
package gcs

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
)

// historyObjectSuffix names archived history objects.
const historyObjectSuffix = "runs.jsonl"

// Client wraps a GCS bucket for archive uploads.
type Client struct {
	storageClient *storage.Client
	BucketName    string
	Prefix        string
}

// NewClient creates a client for the configured archive bucket. When a
// credentials file is configured it must exist; otherwise application
// default credentials are used.
func NewClient(ctx context.Context, cfg config.ArchiveConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("no archive bucket configured")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); os.IsNotExist(err) {
			return nil, fmt.Errorf("service account key not found at path: %s", cfg.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	storageClient, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}

	return &Client{
		storageClient: storageClient,
		BucketName:    cfg.Bucket,
		Prefix:        cfg.Prefix,
	}, nil
}

// Close releases the underlying storage client.
func (c *Client) Close() error {
	if c.storageClient == nil {
		return nil
	}
	return c.storageClient.Close()
}

// UploadFile copies one local file to the named object.
func (c *Client) UploadFile(ctx context.Context, localPath, objectName string) error {
	localFile, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open the local file %s: %w", localPath, err)
	}
	defer localFile.Close()

	obj := c.storageClient.Bucket(c.BucketName).Object(objectName)
	writer := obj.NewWriter(ctx)
	writer.ContentType = contentTypeFor(localPath)
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, localFile); err != nil {
		return fmt.Errorf("failed to copy %s to GCS object %s: %w", localPath, objectName, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer for %s: %w", objectName, err)
	}
	return nil
}

// UploadDir uploads every regular file directly under localDir to the
// given object prefix and reports how many went up. Subdirectories are
// not descended into; log and history directories are flat.
func (c *Client) UploadDir(ctx context.Context, localDir, objectPrefix string) (int, error) {
	entries, err := os.ReadDir(localDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory %s: %w", localDir, err)
	}
	uploaded := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		local := filepath.Join(localDir, entry.Name())
		if err := c.UploadFile(ctx, local, path.Join(objectPrefix, entry.Name())); err != nil {
			return uploaded, err
		}
		uploaded++
	}
	return uploaded, nil
}

// ArchiveHistory uploads the history file under a timestamped object
// name scoped to the deployment host, and returns that object name.
func (c *Client) ArchiveHistory(ctx context.Context, historyPath, host string) (string, error) {
	objectName := HistoryObjectName(c.Prefix, host, time.Now().UTC())
	if err := c.UploadFile(ctx, historyPath, objectName); err != nil {
		return "", err
	}
	return objectName, nil
}

// ArchiveLogs uploads the flat log directory under the host's object
// prefix, next to its history snapshots. Log file names already carry
// dates, so snapshots overwrite in place rather than accumulating.
func (c *Client) ArchiveLogs(ctx context.Context, logDir, host string) (int, error) {
	return c.UploadDir(ctx, logDir, path.Join(c.Prefix, hostSegment(host), "logs"))
}

// ObjectURL returns the gs:// URL of an object in the archive bucket.
func (c *Client) ObjectURL(objectName string) string {
	return fmt.Sprintf("gs://%s/%s", c.BucketName, objectName)
}

// HistoryObjectName builds the object name for one archived history
// snapshot: prefix/host/20060102T150405Z-runs.jsonl. Snapshots never
// overwrite each other; the bucket keeps the full audit trail.
func HistoryObjectName(prefix, host string, now time.Time) string {
	stamp := now.UTC().Format("20060102T150405Z")
	return path.Join(prefix, hostSegment(host), stamp+"-"+historyObjectSuffix)
}

// hostSegment keeps object names well-formed when os.Hostname failed.
func hostSegment(host string) string {
	if host == "" {
		return "unknown-host"
	}
	return host
}

// contentTypeFor maps archive file extensions onto MIME types.
func contentTypeFor(localPath string) string {
	switch strings.ToLower(filepath.Ext(localPath)) {
	case ".jsonl":
		return "application/x-ndjson"
	case ".json":
		return "application/json"
	case ".log", ".txt":
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
