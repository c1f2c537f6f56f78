// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
)

func testHistoryStore(t *testing.T, maxRuns int) *FileHistoryStore {
	t.Helper()

	store, err := NewFileHistoryStore(config.HistoryConfig{
		Dir:     t.TempDir(),
		MaxRuns: maxRuns,
	}, testLogger())
	if err != nil {
		t.Fatalf("NewFileHistoryStore() error = %v", err)
	}
	return store
}

func historyResult(runID, status string) *config.ReconciliationResult {
	return &config.ReconciliationResult{
		RunID:      runID,
		Stack:      "shop",
		StackHash:  "deadbeef",
		Status:     status,
		StartedAt:  time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2025, 6, 1, 12, 0, 30, 0, time.UTC),
	}
}

func TestNewFileHistoryStore_NilLogger(t *testing.T) {
	_, err := NewFileHistoryStore(config.HistoryConfig{Dir: t.TempDir()}, nil)
	if !errors.Is(err, ErrNilDependency) {
		t.Fatalf("error = %v, want ErrNilDependency", err)
	}
}

func TestFileHistoryStore_AppendCreatesFile(t *testing.T) {
	store := testHistoryStore(t, 0)

	result := historyResult("run-1", config.StatusSuccess)
	result.Record("db", config.OutcomeUnchanged, "")

	if err := store.Append(result); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("reading history file: %v", err)
	}
	content := strings.TrimSpace(string(data))
	if strings.Count(content, "\n") != 0 {
		t.Fatalf("expected a single record line, got:\n%s", content)
	}
	for _, want := range []string{`"run_id":"run-1"`, `"status":"Success"`, `"service":"db"`} {
		if !strings.Contains(content, want) {
			t.Errorf("record missing %s:\n%s", want, content)
		}
	}
}

func TestFileHistoryStore_RecentNewestFirst(t *testing.T) {
	store := testHistoryStore(t, 0)

	for _, id := range []string{"run-1", "run-2", "run-3"} {
		if err := store.Append(historyResult(id, config.StatusSuccess)); err != nil {
			t.Fatalf("Append(%s) error = %v", id, err)
		}
	}

	records, err := store.Recent(0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Recent() returned %d records, want 3", len(records))
	}
	for i, want := range []string{"run-3", "run-2", "run-1"} {
		if records[i].RunID != want {
			t.Errorf("records[%d].RunID = %q, want %q", i, records[i].RunID, want)
		}
	}
}

func TestFileHistoryStore_RecentLimit(t *testing.T) {
	store := testHistoryStore(t, 0)

	for _, id := range []string{"run-1", "run-2", "run-3", "run-4"} {
		if err := store.Append(historyResult(id, config.StatusSuccess)); err != nil {
			t.Fatalf("Append(%s) error = %v", id, err)
		}
	}

	records, err := store.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Recent(2) returned %d records, want 2", len(records))
	}
	if records[0].RunID != "run-4" || records[1].RunID != "run-3" {
		t.Errorf("Recent(2) = %q, %q; want run-4, run-3",
			records[0].RunID, records[1].RunID)
	}
}

func TestFileHistoryStore_RecentMissingFile(t *testing.T) {
	store := testHistoryStore(t, 0)

	records, err := store.Recent(10)
	if err != nil {
		t.Fatalf("Recent() on empty history error = %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("Recent() returned %d records, want 0", len(records))
	}
}

func TestFileHistoryStore_RecentSkipsMalformed(t *testing.T) {
	store := testHistoryStore(t, 0)

	if err := store.Append(historyResult("run-1", config.StatusSuccess)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	f, err := os.OpenFile(store.Path(), os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("opening history file: %v", err)
	}
	if _, err := f.WriteString("not json at all\n"); err != nil {
		t.Fatalf("writing garbage line: %v", err)
	}
	f.Close()
	if err := store.Append(historyResult("run-2", config.StatusPartialFailure)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	records, err := store.Recent(0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("Recent() returned %d records, want 2 (garbage skipped)", len(records))
	}
	if records[0].RunID != "run-2" || records[1].RunID != "run-1" {
		t.Errorf("Recent() = %q, %q; want run-2, run-1",
			records[0].RunID, records[1].RunID)
	}
}

func TestFileHistoryStore_PruneKeepsNewest(t *testing.T) {
	store := testHistoryStore(t, 3)

	for _, id := range []string{"run-1", "run-2", "run-3", "run-4", "run-5"} {
		if err := store.Append(historyResult(id, config.StatusSuccess)); err != nil {
			t.Fatalf("Append(%s) error = %v", id, err)
		}
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("reading history file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("file holds %d records after prune, want 3", len(lines))
	}

	records, err := store.Recent(0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	for i, want := range []string{"run-5", "run-4", "run-3"} {
		if records[i].RunID != want {
			t.Errorf("records[%d].RunID = %q, want %q", i, records[i].RunID, want)
		}
	}
}

func TestFileHistoryStore_UnlimitedWhenZero(t *testing.T) {
	store := testHistoryStore(t, 0)

	for i := 0; i < 5; i++ {
		if err := store.Append(historyResult("run", config.StatusSuccess)); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	records, err := store.Recent(0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("Recent() returned %d records, want 5", len(records))
	}
}

func TestFileHistoryStore_NilResult(t *testing.T) {
	store := testHistoryStore(t, 0)

	if err := store.Append(nil); err == nil {
		t.Fatal("Append(nil) expected an error")
	}
}

func TestFileHistoryStore_PathInsideDir(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileHistoryStore(config.HistoryConfig{Dir: dir}, testLogger())
	if err != nil {
		t.Fatalf("NewFileHistoryStore() error = %v", err)
	}
	if got, want := store.Path(), filepath.Join(dir, "runs.jsonl"); got != want {
		t.Errorf("Path() = %q, want %q", got, want)
	}
}

func TestMockHistoryStore_Defaults(t *testing.T) {
	mock := &MockHistoryStore{}

	if err := mock.Append(historyResult("run-1", config.StatusSuccess)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if len(mock.Appended) != 1 || mock.Appended[0].RunID != "run-1" {
		t.Errorf("Appended = %+v, want one run-1 record", mock.Appended)
	}

	records, err := mock.Recent(5)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if records != nil {
		t.Errorf("Recent() = %v, want nil", records)
	}
	if mock.RecentCalls != 1 {
		t.Errorf("RecentCalls = %d, want 1", mock.RecentCalls)
	}
}
