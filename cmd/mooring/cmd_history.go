// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
	"github.com/AleutianAI/mooring/cmd/mooring/gcs"
	"github.com/AleutianAI/mooring/pkg/ux"
)

// runHistory lists recent reconciliation runs, newest first.
func runHistory(cmd *cobra.Command, args []string) {
	logger := newLogger(true)
	defer logger.Close()

	store, err := NewFileHistoryStore(cfg.History, logger)
	exitOnError(err)

	runs, err := store.Recent(historyLimit)
	exitOnError(err)

	if len(runs) == 0 {
		ux.Info("no recorded runs")
		return
	}

	if historyJSON || ux.GetPersonality().Level == ux.PersonalityMachine {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		exitOnError(enc.Encode(runs))
		return
	}

	ux.Title("Recent runs")
	for _, r := range runs {
		ux.ServiceStatus(shortID(r.RunID), statusIcon(r.Status), formatRunLine(r))
	}
}

// formatRunLine renders the detail column for one run record.
func formatRunLine(r config.ReconciliationResult) string {
	return fmt.Sprintf("%s  %s  %d services in %s",
		r.StartedAt.Format("2006-01-02 15:04:05"),
		r.Status,
		len(r.Services),
		r.Duration().Round(time.Millisecond))
}

func statusIcon(status string) ux.Icon {
	switch status {
	case config.StatusSuccess:
		return ux.IconSuccess
	case config.StatusAbortedBeforeChange:
		return ux.IconWarning
	default:
		return ux.IconError
	}
}

// runArchive uploads the local run history to the configured bucket.
func runArchive(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	logger := newLogger(true)
	defer logger.Close()

	store, err := NewFileHistoryStore(cfg.History, logger)
	exitOnError(err)

	client, err := gcs.NewClient(ctx, cfg.Archive)
	exitOnError(err)
	defer client.Close()

	host, _ := os.Hostname()

	var object string
	err = ux.WithSpinner("uploading run history", func() error {
		var uploadErr error
		object, uploadErr = client.ArchiveHistory(ctx, store.Path(), host)
		return uploadErr
	})
	exitOnError(err)
	ux.Success(fmt.Sprintf("history archived to %s", client.ObjectURL(object)))

	if cfg.Logging.Dir == "" {
		return
	}
	var count int
	err = ux.WithSpinner("uploading log files", func() error {
		var logErr error
		count, logErr = client.ArchiveLogs(ctx, cfg.Logging.Dir, host)
		return logErr
	})
	exitOnError(err)
	ux.Success(fmt.Sprintf("archived %d log files", count))
}
