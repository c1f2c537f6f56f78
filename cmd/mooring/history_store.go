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
Package main provides HistoryStore for durable reconciliation records.

Every reconciliation run appends its result to a JSONL file, one record
per line. JSONL keeps the history greppable and append-only without
external infrastructure; rotation caps the file at the newest MaxRuns
records so it never grows unbounded.

# Security Context

Run records hold service names, outcomes, and image digests. Credential
material never enters a record, so the history file is safe to read,
ship, and archive as-is.
*/
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
	"github.com/AleutianAI/mooring/pkg/logging"
)

// historyFileName is the JSONL file run records are appended to.
const historyFileName = "runs.jsonl"

// =============================================================================
// Interface Definition
// =============================================================================

// HistoryStore persists reconciliation run records.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type HistoryStore interface {
	// Append durably records one finished run.
	Append(result *config.ReconciliationResult) error

	// Recent returns run records newest first. A limit of zero or
	// less returns every retained record.
	Recent(limit int) ([]config.ReconciliationResult, error)

	// Path returns the history file location for the archive upload
	// and operator messages.
	Path() string
}

// =============================================================================
// File-backed Implementation
// =============================================================================

// FileHistoryStore implements HistoryStore on a JSONL file.
type FileHistoryStore struct {
	dir     string
	maxRuns int
	path    string
	logger  *logging.Logger
	mu      sync.Mutex
}

// NewFileHistoryStore creates a history store at cfg.Dir. The directory
// is created on first append, not here, so read-only commands work
// against a host that has never reconciled.
func NewFileHistoryStore(cfg config.HistoryConfig, logger *logging.Logger) (*FileHistoryStore, error) {
	if logger == nil {
		return nil, fmt.Errorf("%w: Logger", ErrNilDependency)
	}
	dir := cfg.Dir
	if dir == "" {
		dir = config.DefaultConfig().History.Dir
	}
	return &FileHistoryStore{
		dir:     dir,
		maxRuns: cfg.MaxRuns,
		path:    filepath.Join(dir, historyFileName),
		logger:  logger,
	}, nil
}

// Append implements HistoryStore.
func (s *FileHistoryStore) Append(result *config.ReconciliationResult) error {
	if result == nil {
		return fmt.Errorf("append history: nil result")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create history directory %s: %w", s.dir, err)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode run record: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open history file %s: %w", s.path, err)
	}
	_, writeErr := f.Write(append(data, '\n'))
	closeErr := f.Close()
	if writeErr != nil {
		return fmt.Errorf("write run record: %w", writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("write run record: %w", closeErr)
	}

	s.logger.Debug("run recorded",
		"run_id", result.RunID,
		"status", result.Status,
		"path", s.path)

	return s.pruneLocked()
}

// Recent implements HistoryStore.
func (s *FileHistoryStore) Recent(limit int) ([]config.ReconciliationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines, err := s.readLinesLocked()
	if err != nil {
		return nil, err
	}

	var records []config.ReconciliationResult
	for _, line := range lines {
		var r config.ReconciliationResult
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			// Skip malformed lines; the next prune drops them.
			continue
		}
		records = append(records, r)
	}

	// Newest first for the operator.
	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Path implements HistoryStore.
func (s *FileHistoryStore) Path() string {
	return s.path
}

// pruneLocked rewrites the file with the newest maxRuns valid records.
// Caller holds s.mu. A maxRuns of zero or less retains everything.
func (s *FileHistoryStore) pruneLocked() error {
	if s.maxRuns <= 0 {
		return nil
	}

	lines, err := s.readLinesLocked()
	if err != nil {
		return err
	}
	if len(lines) <= s.maxRuns {
		return nil
	}

	keep := lines[len(lines)-s.maxRuns:]
	tmp := s.path + ".tmp"
	content := strings.Join(keep, "\n") + "\n"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("prune history: %w", err)
	}

	s.logger.Debug("history pruned", "kept", s.maxRuns, "dropped", len(lines)-s.maxRuns)
	return nil
}

// readLinesLocked returns the raw non-empty lines of the history file.
// A missing file is an empty history, not an error. Caller holds s.mu.
func (s *FileHistoryStore) readLinesLocked() ([]string, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open history file %s: %w", s.path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			lines = append(lines, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history file %s: %w", s.path, err)
	}
	return lines, nil
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockHistoryStore implements HistoryStore for testing.
type MockHistoryStore struct {
	// AppendFunc is called when Append is invoked.
	AppendFunc func(result *config.ReconciliationResult) error

	// RecentFunc is called when Recent is invoked.
	RecentFunc func(limit int) ([]config.ReconciliationResult, error)

	// Appended records all appended results by value.
	Appended []config.ReconciliationResult

	// RecentCalls counts Recent invocations.
	RecentCalls int

	// mu protects call tracking.
	mu sync.Mutex
}

// Append implements HistoryStore.
func (m *MockHistoryStore) Append(result *config.ReconciliationResult) error {
	m.mu.Lock()
	if result != nil {
		m.Appended = append(m.Appended, *result)
	}
	m.mu.Unlock()

	if m.AppendFunc != nil {
		return m.AppendFunc(result)
	}
	return nil
}

// Recent implements HistoryStore.
func (m *MockHistoryStore) Recent(limit int) ([]config.ReconciliationResult, error) {
	m.mu.Lock()
	m.RecentCalls++
	m.mu.Unlock()

	if m.RecentFunc != nil {
		return m.RecentFunc(limit)
	}
	return nil, nil
}

// Path implements HistoryStore.
func (m *MockHistoryStore) Path() string {
	return "mock-history/" + historyFileName
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var _ HistoryStore = (*FileHistoryStore)(nil)
var _ HistoryStore = (*MockHistoryStore)(nil)
