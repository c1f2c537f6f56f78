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
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/mooring/pkg/ux"
)

// runDestroy tears the stack down. Containers always; volumes only
// behind --volumes and a second confirmation, because that is the
// data.
func runDestroy(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	d, err := buildDeployment(false)
	exitOnError(err)
	defer d.Close()

	if !destroyForce {
		if !ux.IsInteractive() {
			exitOnError(fmt.Errorf("destroy needs an interactive confirmation; pass --force to run unattended"))
		}
		ux.WarningBox("Destroying deployment",
			fmt.Sprintf("This stops and removes every container of stack %q.", d.stack.Name))
		if !confirm("Type 'yes' to continue: ") {
			ux.Info("destroy aborted")
			return
		}
	}

	err = d.reconciler.StopAll(ctx, leaseWait())
	exitOnError(err)
	ux.Success("stack stopped and removed")

	if !destroyVolumes {
		ux.Info("volumes kept; pass --volumes to delete data")
		return
	}

	if !destroyForce {
		lines := make([]string, 0, len(d.stack.Volumes)+1)
		for _, vol := range d.stack.Volumes {
			lines = append(lines, fmt.Sprintf("%s %s", ux.IconBullet, vol.Name))
		}
		lines = append(lines, "There is no undo.")
		ux.WarningBox("Deleting volumes and ALL data on them", strings.Join(lines, "\n"))
		if !confirm("Type 'yes' to delete the data: ") {
			ux.Info("volumes kept")
			return
		}
	}

	spin := ux.NewProgressSpinner("deleting volumes", len(d.stack.Volumes))
	spin.WithType(ux.SpinnerAnchor)
	spin.Start()
	var errs []error
	for _, vol := range d.stack.Volumes {
		if err := d.volumes.Destroy(ctx, vol.Name); err != nil {
			errs = append(errs, fmt.Errorf("destroy volume %q: %w", vol.Name, err))
		}
		spin.Increment()
	}
	if len(errs) > 0 {
		spin.StopWithWarning(fmt.Sprintf("%d of %d volumes could not be deleted", len(errs), len(d.stack.Volumes)))
		exitOnError(errors.Join(errs...))
	}
	spin.Stop()
	ux.Success(fmt.Sprintf("stack %q destroyed; %d volumes deleted", d.stack.Name, len(d.stack.Volumes)))
}

// confirm reads one line from stdin and reports whether the operator
// agreed.
func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))
	return input == "yes" || input == "y"
}
