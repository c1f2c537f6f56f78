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
	"github.com/AleutianAI/mooring/cmd/mooring/config"
	"github.com/AleutianAI/mooring/pkg/ux"
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	personalityLevel string // UX personality level (full/standard/minimal/machine)
	configFile       string // alternative tool configuration file
	stackFile        string // alternative stack file

	leaseWaitSeconds int
	pinDigests       bool
	remoteRun        bool

	statusJSON      bool
	statusProbe     bool
	statusHealthURL string

	logsFollow bool
	logsTail   string

	destroyVolumes bool
	destroyForce   bool

	initFromCompose string
	initStackName   string
	initForce       bool

	proxyOutput string

	watchDebounceMS int

	historyLimit int
	historyJSON  bool

	rootCmd = &cobra.Command{
		Use:   "mooring",
		Short: "Reconcile a declared container stack on a single VM",
		Long: `Mooring drives a VM's container engine toward a declared
				three-tier stack (database, backend, frontend): pull every
				image, stop the previous generation, start the new one in
				dependency order, and record the run. Volumes are never
				deleted by reconciliation.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Initialize UX personality from flag or environment
			if personalityLevel != "" {
				ux.SetPersonalityLevel(ux.ParsePersonalityLevel(personalityLevel))
			} else {
				ux.InitPersonality()
			}

			var err error
			if configFile != "" {
				cfg, err = config.LoadFrom(configFile)
			} else {
				cfg, err = config.Load()
			}
			exitOnError(err)
		},
	}

	// --- Reconciliation ---
	reconcileCmd = &cobra.Command{
		Use:   "reconcile",
		Short: "Drive the running deployment to match the declared stack",
		Args:  cobra.NoArgs,
		Run:   runReconcile, // Defined in cmd_deploy.go
	}
	pullCmd = &cobra.Command{
		Use:   "pull",
		Short: "Pull every declared image without touching running containers",
		Args:  cobra.NoArgs,
		Run:   runPull, // Defined in cmd_deploy.go
	}
	startAllCmd = &cobra.Command{
		Use:   "start-all",
		Short: "Start every declared service in dependency order",
		Args:  cobra.NoArgs,
		Run:   runStartAll, // Defined in cmd_deploy.go
	}
	stopAllCmd = &cobra.Command{
		Use:   "stop-all",
		Short: "Stop and remove every stack container, keeping all volumes",
		Args:  cobra.NoArgs,
		Run:   runStopAll, // Defined in cmd_deploy.go
	}

	// --- Inspection ---
	statusCmd = &cobra.Command{
		Use:   "status",
		Short: "Show the state of every declared service",
		Args:  cobra.NoArgs,
		Run:   runStatus, // Defined in cmd_status.go
	}
	logsCmd = &cobra.Command{
		Use:   "logs [service]",
		Short: "Stream a stack container's logs",
		Args:  cobra.ExactArgs(1),
		Run:   runLogs, // Defined in cmd_status.go
	}
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "List recent reconciliation runs",
		Args:  cobra.NoArgs,
		Run:   runHistory, // Defined in cmd_history.go
	}
	archiveCmd = &cobra.Command{
		Use:   "archive",
		Short: "Upload the local run history to the configured GCS bucket",
		Args:  cobra.NoArgs,
		Run:   runArchive, // Defined in cmd_history.go
	}

	// --- Destructive ---
	destroyCmd = &cobra.Command{
		Use:   "destroy",
		Short: "DANGER: stop and remove the stack; with --volumes, delete its data too",
		Args:  cobra.NoArgs,
		Run:   runDestroy, // Defined in cmd_destroy.go
	}

	// --- Authoring ---
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Scaffold a stack file, optionally converted from docker-compose",
		Args:  cobra.NoArgs,
		Run:   runInit, // Defined in cmd_init.go
	}
	renderProxyCmd = &cobra.Command{
		Use:   "render-proxy",
		Short: "Render the nginx routing config baked into the frontend image",
		Args:  cobra.NoArgs,
		Run:   runRenderProxy, // Defined in cmd_proxy.go
	}

	// --- Remote ---
	checkTargetCmd = &cobra.Command{
		Use:   "check-target",
		Short: "Probe reachability and SSH auth of the deployment target",
		Args:  cobra.NoArgs,
		Run:   runCheckTarget, // Defined in cmd_remote.go
	}

	// --- Automation ---
	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Watch the stack file and reconcile automatically on change",
		Args:  cobra.NoArgs,
		Run:   runWatch, // Defined in cmd_watch.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&personalityLevel, "personality", "",
		"Output style: full (default, rich nautical), standard, minimal, or machine (scripting)")
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "",
		"Tool configuration file (default ~/.mooring/mooring.yaml)")
	rootCmd.PersistentFlags().StringVarP(&stackFile, "stack", "f", "",
		"Stack file to operate on (default from configuration, mooring.yaml)")

	rootCmd.AddCommand(reconcileCmd)
	reconcileCmd.Flags().IntVar(&leaseWaitSeconds, "lease-wait", 30,
		"Seconds to wait for an overlapping run to release the deployment lease")
	reconcileCmd.Flags().BoolVar(&pinDigests, "pin-digests", false,
		"Record resolved image digests in the run result for later immutable re-runs")
	reconcileCmd.Flags().BoolVar(&remoteRun, "remote", false,
		"Run the reconciliation on the deployment target over SSH instead of locally")

	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(startAllCmd)
	startAllCmd.Flags().IntVar(&leaseWaitSeconds, "lease-wait", 30,
		"Seconds to wait for an overlapping run to release the deployment lease")
	rootCmd.AddCommand(stopAllCmd)
	stopAllCmd.Flags().IntVar(&leaseWaitSeconds, "lease-wait", 30,
		"Seconds to wait for an overlapping run to release the deployment lease")

	rootCmd.AddCommand(statusCmd)
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Emit the report as JSON")
	statusCmd.Flags().BoolVar(&statusProbe, "probe", false, "TCP-probe every published host port")
	statusCmd.Flags().StringVar(&statusHealthURL, "health-url", "",
		"HTTP endpoint to probe, e.g. http://127.0.0.1:8000/healthz")

	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().BoolVar(&logsFollow, "follow", true, "Keep streaming as new log lines arrive")
	logsCmd.Flags().StringVar(&logsTail, "tail", "", "Only the last N lines (default: everything)")

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum runs to list")
	historyCmd.Flags().BoolVar(&historyJSON, "json", false, "Emit run records as JSON")
	rootCmd.AddCommand(archiveCmd)

	rootCmd.AddCommand(destroyCmd)
	destroyCmd.Flags().BoolVar(&destroyVolumes, "volumes", false,
		"Also delete the stack's volumes and ALL data on them")
	destroyCmd.Flags().BoolVar(&destroyForce, "force", false,
		"Skip the interactive confirmation (unattended use)")

	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initFromCompose, "from-compose", "",
		"Convert an existing docker-compose file instead of writing the scaffold")
	initCmd.Flags().StringVar(&initStackName, "name", "",
		"Stack name (default: the working directory's name)")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing stack file")

	rootCmd.AddCommand(renderProxyCmd)
	renderProxyCmd.Flags().StringVarP(&proxyOutput, "output", "o", "",
		"Output path; '-' writes to stdout (default from configuration)")

	rootCmd.AddCommand(checkTargetCmd)

	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().IntVar(&watchDebounceMS, "debounce-ms", 500,
		"Quiet period after the last change before a reconcile fires")
	watchCmd.Flags().IntVar(&leaseWaitSeconds, "lease-wait", 30,
		"Seconds to wait for an overlapping run to release the deployment lease")
}
