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
Handlers for the deployment verbs (reconcile, pull, start-all,
stop-all) and the dependency wiring every handler builds on.

Each handler follows the same shape: assemble the dependency graph it
needs, run the operation under a signal-aware context, render the
outcome through ux, and leave through exitOnError so exit codes stay
consistent with the classification in command_error.go.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
	"github.com/AleutianAI/mooring/cmd/mooring/internal/engine"
	"github.com/AleutianAI/mooring/cmd/mooring/internal/infra/process"
	"github.com/AleutianAI/mooring/pkg/logging"
	"github.com/AleutianAI/mooring/pkg/ux"
)

// cfg is the tool configuration, loaded by the root command's
// PersistentPreRun before any handler runs.
var cfg *config.MooringConfig

// =============================================================================
// Bootstrap Helpers
// =============================================================================

// commandContext returns a context cancelled on SIGINT or SIGTERM so a
// ctrl-C lands as context.Canceled instead of killing the process
// mid-operation.
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func parseLogLevel(s string) logging.Level {
	switch strings.ToLower(s) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func newLogger(quiet bool) *logging.Logger {
	return logging.New(logging.Config{
		Level:   parseLogLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "mooring",
		Quiet:   quiet,
	})
}

// stackPath resolves the stack file: the --stack flag wins, then the
// configured default.
func stackPath() string {
	if stackFile != "" {
		return stackFile
	}
	return cfg.Stack.File
}

func leaseWait() time.Duration {
	return time.Duration(leaseWaitSeconds) * time.Second
}

func engineFromConfig() (*engine.DockerEngine, error) {
	if cfg.Engine.Host != "" {
		return engine.NewDockerEngineHost(cfg.Engine.Host)
	}
	return engine.NewDockerEngine()
}

// =============================================================================
// Dependency Graphs
// =============================================================================

// engineStack is the wiring every engine-touching command needs: the
// loaded stack declaration plus the container engine and the
// supervisor over it.
type engineStack struct {
	logger     *logging.Logger
	stack      *config.StackSpec
	labels     StackLabels
	eng        *engine.DockerEngine
	volumes    VolumeStore
	supervisor Supervisor
	runID      string
}

func buildEngineStack(quietLogs bool) (*engineStack, error) {
	logger := newLogger(quietLogs)

	stack, err := config.LoadStack(stackPath())
	if err != nil {
		logger.Close()
		return nil, err
	}

	eng, err := engineFromConfig()
	if err != nil {
		logger.Close()
		return nil, err
	}

	labels := NewStackLabels(cfg.Stack.LabelNamespace)
	runID := uuid.NewString()

	volumes, err := NewDefaultVolumeStore(eng, labels, stack.Name, logger)
	if err != nil {
		_ = eng.Close()
		logger.Close()
		return nil, err
	}

	supervisor, err := NewDefaultSupervisor(eng, volumes, stack, labels, runID, cfg.Engine.StopTimeout(), logger)
	if err != nil {
		_ = eng.Close()
		logger.Close()
		return nil, err
	}

	return &engineStack{
		logger:     logger,
		stack:      stack,
		labels:     labels,
		eng:        eng,
		volumes:    volumes,
		supervisor: supervisor,
		runID:      runID,
	}, nil
}

func (s *engineStack) Close() {
	if err := s.eng.Close(); err != nil {
		s.logger.Warn("closing engine connection", "error", err)
	}
	s.logger.Close()
}

// deployment extends engineStack with everything a mutating run needs:
// secrets, registry access, the history store, the run lease, and the
// reconciler over them.
type deployment struct {
	*engineStack
	secrets    *EnvSecretsManager
	registry   RegistryClient
	history    HistoryStore
	lease      *process.RunLease
	reconciler Reconciler
}

func buildDeployment(quietLogs bool) (*deployment, error) {
	es, err := buildEngineStack(quietLogs)
	if err != nil {
		return nil, err
	}

	secrets, err := NewEnvSecretsManager(es.logger)
	if err != nil {
		es.Close()
		return nil, err
	}

	registry, err := NewDefaultRegistryClient(es.eng, secrets, cfg.Engine.PullTimeout(), es.logger)
	if err != nil {
		secrets.Destroy()
		es.Close()
		return nil, err
	}

	history, err := NewFileHistoryStore(cfg.History, es.logger)
	if err != nil {
		secrets.Destroy()
		es.Close()
		return nil, err
	}

	leaseCfg := process.DefaultLeaseConfig()
	leaseCfg.RunID = es.runID
	lease := process.NewRunLease(leaseCfg)

	reconciler, err := NewDefaultReconciler(registry, es.supervisor, history, lease, es.stack, es.labels, es.runID, es.logger)
	if err != nil {
		secrets.Destroy()
		es.Close()
		return nil, err
	}

	return &deployment{
		engineStack: es,
		secrets:     secrets,
		registry:    registry,
		history:     history,
		lease:       lease,
		reconciler:  reconciler,
	}, nil
}

func (d *deployment) Close() {
	d.secrets.Destroy()
	d.engineStack.Close()
}

// buildRemote wires the SSH side only. Remote commands never touch the
// local engine, so they skip the engineStack entirely.
func buildRemote(quietLogs bool) (*EnvSecretsManager, *DefaultRemoteExecutor, *logging.Logger, error) {
	logger := newLogger(quietLogs)

	secrets, err := NewEnvSecretsManager(logger)
	if err != nil {
		logger.Close()
		return nil, nil, nil, err
	}

	executor, err := NewDefaultRemoteExecutor(secrets, NewLogSanitizer(), cfg.Remote, logger)
	if err != nil {
		secrets.Destroy()
		logger.Close()
		return nil, nil, nil, err
	}

	return secrets, executor, logger, nil
}

// =============================================================================
// Handlers
// =============================================================================

func runReconcile(cmd *cobra.Command, args []string) {
	if remoteRun {
		runRemoteReconcile()
		return
	}

	ctx, cancel := commandContext()
	defer cancel()

	d, err := buildDeployment(false)
	exitOnError(err)
	defer d.Close()

	opts := DefaultReconcileOptions()
	opts.LeaseWait = leaseWait()
	opts.PinDigests = pinDigests

	ux.Title(ux.Flourish(ux.IconShip, fmt.Sprintf("Reconciling stack %q", d.stack.Name)))
	result, err := d.reconciler.Reconcile(ctx, opts)
	if result != nil {
		printRunResult(result)
	}
	exitOnError(err)
	ux.Success(fmt.Sprintf("deployment reconciled in %s", result.Duration().Round(time.Millisecond)))
	ux.Tip("inspect the result with 'mooring status'")
}

func runRemoteReconcile() {
	ctx, cancel := commandContext()
	defer cancel()

	secrets, executor, logger, err := buildRemote(false)
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

	opts := DefaultReconcileOptions()
	opts.LeaseWait = leaseWait()
	opts.PinDigests = pinDigests

	ux.Title("Reconciling on deployment target")
	outcome, err := executor.Execute(ctx, target, reconcileCommandSequence(target, stackFile, opts))
	exitOnError(err)
	ux.Success(fmt.Sprintf("remote reconciliation finished in %s", outcome.Duration.Round(time.Second)))
}

func runPull(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	d, err := buildDeployment(false)
	exitOnError(err)
	defer d.Close()

	ux.Title(fmt.Sprintf("Pulling images for stack %q", d.stack.Name))
	outcomes, err := d.reconciler.PullAll(ctx)
	for _, o := range outcomes {
		detail := "already current"
		if o.Updated() {
			detail = "pulled"
		}
		ux.ServiceStatus(o.Service, ux.IconSuccess, detail)
	}
	exitOnError(err)
	ux.Success(fmt.Sprintf("%d images current", len(outcomes)))
}

func runStartAll(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	d, err := buildDeployment(false)
	exitOnError(err)
	defer d.Close()

	ux.Title(fmt.Sprintf("Starting stack %q", d.stack.Name))
	outcomes, err := d.reconciler.StartAll(ctx, leaseWait())
	printServiceOutcomes(outcomes)
	exitOnError(err)
	ux.Success("all services running")
}

func runStopAll(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	d, err := buildDeployment(false)
	exitOnError(err)
	defer d.Close()

	ux.Title(fmt.Sprintf("Stopping stack %q", d.stack.Name))
	err = d.reconciler.StopAll(ctx, leaseWait())
	exitOnError(err)
	ux.Success("stack stopped; volumes kept")
}

// =============================================================================
// Rendering Helpers
// =============================================================================

func printServiceOutcomes(outcomes []config.ServiceOutcome) {
	for _, o := range outcomes {
		detail := o.Outcome
		if o.Outcome == config.OutcomeFailed && o.Message != "" {
			detail = o.Message
		}
		ux.ServiceStatus(o.Service, outcomeIcon(o.Outcome), detail)
	}
}

func printRunResult(r *config.ReconciliationResult) {
	printServiceOutcomes(r.Services)

	var pulled, recreated, unchanged, failed int
	for _, o := range r.Services {
		switch o.Outcome {
		case config.OutcomePulled:
			pulled++
		case config.OutcomeRecreated:
			recreated++
		case config.OutcomeUnchanged:
			unchanged++
		case config.OutcomeFailed:
			failed++
		}
	}
	ux.Summary(pulled, recreated, unchanged, failed)
}

func outcomeIcon(outcome string) ux.Icon {
	switch outcome {
	case config.OutcomePulled, config.OutcomeRecreated:
		return ux.IconSuccess
	case config.OutcomeUnchanged:
		return ux.IconPending
	case config.OutcomeFailed:
		return ux.IconError
	default:
		return ux.IconPending
	}
}

// shortID trims a run ID down to the prefix shown to operators.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
