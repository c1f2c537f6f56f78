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
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mooring/pkg/ux"
)

// runCheckTarget verifies the deployment target in two stages: a TCP
// probe of the SSH port, then a real authenticated no-op command. A
// reachable host with a rejected key fails the second stage only, and
// the error sentinel tells the operator exactly which layer to fix.
func runCheckTarget(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	// Quiet logger: this is an interactive diagnostic, the session
	// detail still lands in the log file.
	secrets, executor, logger, err := buildRemote(true)
	exitOnError(err)
	defer func() {
		secrets.Destroy()
		logger.Close()
	}()

	target, err := secrets.DeployTarget()
	exitOnError(err)
	if target.Port == 0 {
		target.Port = cfg.Remote.Port
	}

	spin := ux.NewSpinner("probing deployment target").WithType(ux.SpinnerCompass)
	spin.Start()
	if err := executor.Probe(ctx, target); err != nil {
		spin.Stop()
		exitOnError(err)
	}
	spin.UpdateMessage("verifying SSH authentication")

	outcome, err := executor.Execute(ctx, target, []string{"true"})
	spin.Stop()
	exitOnError(err)

	ux.Success("deployment target reachable")
	ux.Success(fmt.Sprintf("SSH authentication verified in %s", outcome.Duration.Round(time.Millisecond)))
}
