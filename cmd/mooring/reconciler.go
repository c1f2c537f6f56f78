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
Package main provides the Reconciler, the deployment orchestrator.

One Reconcile call drives the host from whatever is running toward the
declared stack in four phases: pull every image, stop the previous
generation, start the declared one in dependency order, and record the
run.

# Run Model

The pull phase is fail-fast: the first pull failure aborts the run
with AbortedBeforeChange and no running container has been touched, so
a bad image reference or an unreachable registry can never take the
working deployment down. Once images are local, the mutating phases
run under the inter-process run lease.

# Failure Model

There is no rollback. A service that fails to start is recorded, its
dependents are failed without being attempted, and independent
services continue; the stack may be left mixed and the recovery path
is an operator re-run. Re-running against an identical declaration is
idempotent: containers are recreated either way and the run ends in
the same state.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
	"github.com/AleutianAI/mooring/cmd/mooring/internal/infra/process"
	"github.com/AleutianAI/mooring/pkg/logging"
)

// =============================================================================
// Error Sentinel Values
// =============================================================================

var (
	// ErrNilDependency is returned when a required dependency is nil.
	ErrNilDependency = errors.New("required dependency is nil")

	// ErrPanicRecovered is returned when a panic was recovered during
	// an operation.
	ErrPanicRecovered = errors.New("panic recovered during operation")

	// ErrReconcilePartial is returned when a reconciliation run
	// completed but at least one service did not reach running.
	ErrReconcilePartial = errors.New("reconciliation completed with partial failures")
)

// recoverPanic converts a recovered panic into an error. Call from a
// deferred function with recover(). Sets *errPtr only when no earlier
// error is already being returned.
func recoverPanic(r interface{}, errPtr *error) {
	if r == nil {
		return
	}

	var panicErr error
	switch v := r.(type) {
	case error:
		panicErr = fmt.Errorf("%w: %v", ErrPanicRecovered, v)
	case string:
		panicErr = fmt.Errorf("%w: %s", ErrPanicRecovered, v)
	default:
		panicErr = fmt.Errorf("%w: %v", ErrPanicRecovered, v)
	}

	if *errPtr == nil {
		*errPtr = panicErr
	}
}

// =============================================================================
// Options
// =============================================================================

// ReconcileOptions adjusts a single reconciliation run.
type ReconcileOptions struct {
	// LeaseWait bounds how long the run waits for another run to
	// release the deployment lease before failing with ErrLeaseHeld.
	// Zero tries exactly once.
	LeaseWait time.Duration

	// PinDigests records each pulled image's resolved content digest
	// in the run result so the run can later be reproduced against
	// immutable references.
	PinDigests bool
}

// DefaultReconcileOptions returns the defaults the CLI starts from.
func DefaultReconcileOptions() ReconcileOptions {
	return ReconcileOptions{
		LeaseWait: 30 * time.Second,
	}
}

// =============================================================================
// Interface Definition
// =============================================================================

// Reconciler drives the deployment toward the declared stack.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Only one run may
// mutate at a time: overlapping calls serialize on an internal mutex
// and overlapping processes serialize on the run lease.
type Reconciler interface {
	// Reconcile performs one full run and returns its durable record.
	//
	// # Outputs
	//
	//   - *ReconciliationResult: non-nil whenever a run record was
	//     produced, including runs aborted in the pull phase; nil when
	//     the run never got to act (lease held, cancelled early)
	//   - error: nil on Success; the classified pull error on abort;
	//     wrapped ErrReconcilePartial on partial failure; wrapped
	//     ErrLeaseHeld when another run did not yield in time
	Reconcile(ctx context.Context, opts ReconcileOptions) (*config.ReconciliationResult, error)

	// PullAll fetches every declared image in dependency order without
	// touching running containers. Fail-fast: the first failure aborts
	// with the classified pull error and the outcomes already fetched.
	PullAll(ctx context.Context) ([]PullOutcome, error)

	// StopAll stops and removes every container of the stack, declared
	// services dependents-first and orphans after, under the deployment
	// lease. Volumes are never touched.
	StopAll(ctx context.Context, leaseWait time.Duration) error

	// StartAll starts every declared service in dependency order,
	// without pulling first, under the deployment lease. A failure
	// cascades to the service's dependents; independent services still
	// start. The returned outcomes cover every declared service; the
	// error wraps ErrReconcilePartial when any failed.
	StartAll(ctx context.Context, leaseWait time.Duration) ([]config.ServiceOutcome, error)
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultReconciler implements Reconciler over the registry client,
// the service supervisor, and the history store.
type DefaultReconciler struct {
	registry   RegistryClient
	supervisor Supervisor
	history    HistoryStore
	lease      process.RunLeaser
	stack      *config.StackSpec
	labels     StackLabels
	runID      string
	logger     *logging.Logger

	// mu serializes runs within this process. Cross-process
	// serialization is the lease's job.
	mu sync.Mutex
}

// NewDefaultReconciler creates a reconciler for one declared stack.
// runID identifies the invocation; the same value is stamped into the
// run record, the container labels, and the lease metadata. Empty
// keeps the record's generated ID.
func NewDefaultReconciler(
	registry RegistryClient,
	supervisor Supervisor,
	history HistoryStore,
	lease process.RunLeaser,
	stack *config.StackSpec,
	labels StackLabels,
	runID string,
	logger *logging.Logger,
) (*DefaultReconciler, error) {
	if registry == nil {
		return nil, fmt.Errorf("%w: RegistryClient", ErrNilDependency)
	}
	if supervisor == nil {
		return nil, fmt.Errorf("%w: Supervisor", ErrNilDependency)
	}
	if history == nil {
		return nil, fmt.Errorf("%w: HistoryStore", ErrNilDependency)
	}
	if lease == nil {
		return nil, fmt.Errorf("%w: RunLeaser", ErrNilDependency)
	}
	if stack == nil {
		return nil, fmt.Errorf("%w: StackSpec", ErrNilDependency)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: Logger", ErrNilDependency)
	}
	return &DefaultReconciler{
		registry:   registry,
		supervisor: supervisor,
		history:    history,
		lease:      lease,
		stack:      stack,
		labels:     labels,
		runID:      runID,
		logger:     logger,
	}, nil
}

// Reconcile implements Reconciler.
func (r *DefaultReconciler) Reconcile(ctx context.Context, opts ReconcileOptions) (result *config.ReconciliationResult, err error) {
	// Serialize runs within this process.
	r.mu.Lock()
	defer r.mu.Unlock()

	// Recover panics so the mutex is freed and the lease released.
	defer func() {
		recoverPanic(recover(), &err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result = config.NewReconciliationResult(r.stack)
	if r.runID != "" {
		result.RunID = r.runID
	}

	r.logger.Info("reconciliation started",
		"run_id", result.RunID,
		"stack", r.stack.Name,
		"services", len(r.stack.Services))

	// Phase 1: pull every image. The first failure aborts while the
	// previous generation is still running untouched.
	pulls, failedService, pullErr := r.pullImages(ctx)
	if pullErr != nil {
		result.Record(failedService, config.OutcomeFailed, pullErr.Error())
		r.finishRun(result, config.StatusAbortedBeforeChange)
		return result, pullErr
	}

	// The lease guards mutation, not pulling. Two runs may pull
	// concurrently; only one may stop and start.
	if err := r.lease.AcquireWithin(ctx, opts.LeaseWait); err != nil {
		return nil, fmt.Errorf("acquire deployment lease: %w", err)
	}
	defer func() {
		if relErr := r.lease.Release(); relErr != nil {
			r.logger.Warn("lease release failed", "error", relErr)
		}
	}()

	// Phase 2: stop the previous generation, dependents first.
	oldHashes := r.stopPrevious(ctx)

	// Phase 3: start the declared generation in dependency order.
	r.startDeclared(ctx, opts, pulls, oldHashes, result)

	// Phase 4: record the run.
	status := config.StatusSuccess
	if len(result.Failed()) > 0 {
		status = config.StatusPartialFailure
	}
	r.finishRun(result, status)

	if status == config.StatusPartialFailure {
		return result, fmt.Errorf("%w: %d of %d services failed",
			ErrReconcilePartial, len(result.Failed()), len(r.stack.Services))
	}
	return result, nil
}

// PullAll implements Reconciler. Pulling mutates nothing the lease
// guards, so it runs without the lease and without the run mutex.
func (r *DefaultReconciler) PullAll(ctx context.Context) (outcomes []PullOutcome, err error) {
	defer func() {
		recoverPanic(recover(), &err)
	}()

	pulls, _, pullErr := r.pullImages(ctx)

	for _, svc := range r.stack.StartOrder() {
		outcome, ok := pulls[svc.Name]
		if !ok {
			break
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, pullErr
}

// StopAll implements Reconciler.
func (r *DefaultReconciler) StopAll(ctx context.Context, leaseWait time.Duration) (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer func() {
		recoverPanic(recover(), &err)
	}()

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := r.lease.AcquireWithin(ctx, leaseWait); err != nil {
		return fmt.Errorf("acquire deployment lease: %w", err)
	}
	defer func() {
		if relErr := r.lease.Release(); relErr != nil {
			r.logger.Warn("lease release failed", "error", relErr)
		}
	}()

	present, _, orphans := r.stackState(ctx)

	var errs []error
	stopped := 0
	for _, svc := range r.stack.StopOrder() {
		if !present[svc.Name] {
			continue
		}
		if rmErr := r.removeService(ctx, svc.Name); rmErr != nil {
			errs = append(errs, rmErr)
			continue
		}
		stopped++
	}
	for _, name := range orphans {
		r.logger.Info("removing orphan service", "service", name)
		if rmErr := r.removeService(ctx, name); rmErr != nil {
			errs = append(errs, rmErr)
			continue
		}
		stopped++
	}

	r.logger.Info("stack stopped", "stack", r.stack.Name, "containers", stopped)
	return errors.Join(errs...)
}

// StartAll implements Reconciler. Unlike a full run there is no pull
// phase and no history record: the images already on the host are
// started as-is, so outcomes classify as recreated rather than pulled.
func (r *DefaultReconciler) StartAll(ctx context.Context, leaseWait time.Duration) (outcomes []config.ServiceOutcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	defer func() {
		recoverPanic(recover(), &err)
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := r.lease.AcquireWithin(ctx, leaseWait); err != nil {
		return nil, fmt.Errorf("acquire deployment lease: %w", err)
	}
	defer func() {
		if relErr := r.lease.Release(); relErr != nil {
			r.logger.Warn("lease release failed", "error", relErr)
		}
	}()

	failed := make(map[string]bool)
	for _, svc := range r.stack.StartOrder() {
		if dep := firstFailedDependency(svc, failed); dep != "" {
			depErr := fmt.Errorf("%w: service %q requires %q, which failed this run",
				ErrDependencyNotRunning, svc.Name, dep)
			r.logger.Error("service skipped", "service", svc.Name, "error", depErr)
			outcomes = append(outcomes, config.ServiceOutcome{
				Service: svc.Name,
				Outcome: config.OutcomeFailed,
				Message: depErr.Error(),
			})
			failed[svc.Name] = true
			continue
		}

		if startErr := r.supervisor.Start(ctx, svc); startErr != nil {
			r.logger.Error("service failed to start", "service", svc.Name, "error", startErr)
			outcomes = append(outcomes, config.ServiceOutcome{
				Service: svc.Name,
				Outcome: config.OutcomeFailed,
				Message: startErr.Error(),
			})
			failed[svc.Name] = true
			continue
		}

		outcomes = append(outcomes, config.ServiceOutcome{
			Service: svc.Name,
			Outcome: config.OutcomeRecreated,
		})
	}

	if len(failed) > 0 {
		return outcomes, fmt.Errorf("%w: %d of %d services failed",
			ErrReconcilePartial, len(failed), len(r.stack.Services))
	}
	return outcomes, nil
}

// =============================================================================
// Run Phases
// =============================================================================

// pullImages fetches every declared image in dependency order. On
// failure it returns the failing service's name, the classified pull
// error, and the outcomes fetched so far; no further images are
// pulled.
func (r *DefaultReconciler) pullImages(ctx context.Context) (map[string]PullOutcome, string, error) {
	pulls := make(map[string]PullOutcome, len(r.stack.Services))

	for _, svc := range r.stack.StartOrder() {
		if err := ctx.Err(); err != nil {
			return pulls, svc.Name, err
		}
		outcome, err := r.registry.Pull(ctx, svc)
		if err != nil {
			r.logger.Error("pull failed, aborting before any change",
				"service", svc.Name,
				"image", svc.Image,
				"error", err)
			return pulls, svc.Name, fmt.Errorf("pull service %q: %w", svc.Name, err)
		}
		pulls[svc.Name] = outcome
	}
	return pulls, "", nil
}

// stackState lists this stack's containers and splits them into
// declared services (with the declaration hash each was created from)
// and orphans whose declaration is gone. Stack-labeled containers
// without a service label were created by somebody else and are left
// alone.
func (r *DefaultReconciler) stackState(ctx context.Context) (present map[string]bool, oldHashes map[string]string, orphans []string) {
	present = make(map[string]bool)
	oldHashes = make(map[string]string)
	orphanSet := make(map[string]bool)

	containers, err := r.supervisor.List(ctx)
	if err != nil {
		r.logger.Warn("listing stack containers failed", "error", err)
	}
	for _, c := range containers {
		svcName := c.Labels[r.labels.Service()]
		if svcName == "" {
			r.logger.Warn("ignoring foreign stack-labeled container", "container", c.Name)
			continue
		}
		if r.stack.HasService(svcName) {
			present[svcName] = true
			oldHashes[svcName] = c.Labels[r.labels.SpecHash()]
		} else {
			orphanSet[svcName] = true
		}
	}

	orphans = make([]string, 0, len(orphanSet))
	for name := range orphanSet {
		orphans = append(orphans, name)
	}
	sort.Strings(orphans)

	return present, oldHashes, orphans
}

// stopPrevious stops and removes every container labeled for this
// stack: declared services dependents-first, then orphans whose
// declaration is gone. Volumes are never touched here. It returns the
// declaration hash each stopped container was created from, for the
// per-service outcome classification.
//
// Failures are logged and skipped rather than propagated: Start
// removes any leftover container itself, so a stuck stop here does
// not block the declared generation.
func (r *DefaultReconciler) stopPrevious(ctx context.Context) map[string]string {
	present, oldHashes, orphans := r.stackState(ctx)

	for _, svc := range r.stack.StopOrder() {
		if !present[svc.Name] {
			continue
		}
		r.removeService(ctx, svc.Name)
	}

	for _, name := range orphans {
		r.logger.Info("removing orphan service", "service", name)
		r.removeService(ctx, name)
	}

	return oldHashes
}

// removeService stops then removes one service's container. Failures
// are logged and returned joined; most callers continue anyway.
func (r *DefaultReconciler) removeService(ctx context.Context, name string) error {
	var errs []error
	if err := r.supervisor.Stop(ctx, name); err != nil {
		r.logger.Warn("stop failed", "service", name, "error", err)
		errs = append(errs, fmt.Errorf("stop service %q: %w", name, err))
	}
	if err := r.supervisor.Remove(ctx, name); err != nil {
		r.logger.Warn("remove failed", "service", name, "error", err)
		errs = append(errs, fmt.Errorf("remove service %q: %w", name, err))
	}
	return errors.Join(errs...)
}

// startDeclared starts every declared service in dependency order and
// records exactly one outcome per service. A failure marks the
// service and cascades to its dependents without being attempted;
// independent services later in the order still start. There is no
// readiness polling: a dependent that races its dependency's
// availability is retried by its own restart policy.
func (r *DefaultReconciler) startDeclared(ctx context.Context, opts ReconcileOptions, pulls map[string]PullOutcome, oldHashes map[string]string, result *config.ReconciliationResult) {
	failed := make(map[string]bool)

	for _, svc := range r.stack.StartOrder() {
		if dep := firstFailedDependency(svc, failed); dep != "" {
			depErr := fmt.Errorf("%w: service %q requires %q, which failed this run",
				ErrDependencyNotRunning, svc.Name, dep)
			r.logger.Error("service skipped", "service", svc.Name, "error", depErr)
			result.Record(svc.Name, config.OutcomeFailed, depErr.Error())
			failed[svc.Name] = true
			continue
		}

		if err := r.supervisor.Start(ctx, svc); err != nil {
			r.logger.Error("service failed to start", "service", svc.Name, "error", err)
			result.Record(svc.Name, config.OutcomeFailed, err.Error())
			failed[svc.Name] = true
			continue
		}

		outcome := startOutcome(pulls[svc.Name], oldHashes[svc.Name], r.stack.ServiceHash(svc.Name))
		result.Record(svc.Name, outcome, "")
		if opts.PinDigests && pulls[svc.Name].ResolvedDigest != "" {
			result.RecordDigest(svc.Name, pulls[svc.Name].ResolvedDigest)
		}
	}
}

// finishRun stamps the overall status, appends the record to history,
// and logs the summary. A history write failure is logged, not
// surfaced; it must not fail a deployment that already happened.
func (r *DefaultReconciler) finishRun(result *config.ReconciliationResult, status string) {
	result.Finish(status)

	if err := r.history.Append(result); err != nil {
		r.logger.Error("recording run failed", "run_id", result.RunID, "error", err)
	}

	switch status {
	case config.StatusSuccess:
		r.logger.Info("reconciliation succeeded",
			"run_id", result.RunID,
			"duration", result.Duration().String(),
			"services", len(result.Services))
	case config.StatusAbortedBeforeChange:
		r.logger.Warn("reconciliation aborted, previous deployment intact",
			"run_id", result.RunID,
			"duration", result.Duration().String())
	default:
		names := make([]string, 0, len(result.Failed()))
		for _, f := range result.Failed() {
			names = append(names, f.Service)
		}
		r.logger.Error("reconciliation partially failed",
			"run_id", result.RunID,
			"duration", result.Duration().String(),
			"failed", strings.Join(names, ","))
	}
}

// =============================================================================
// Outcome Classification
// =============================================================================

// startOutcome classifies what starting a service actually changed. A
// pull that fetched content is "pulled". With the image already
// current, a matching declaration hash on the stopped container means
// the recreate changed nothing ("unchanged"); a missing or different
// hash means the container's shape changed ("recreated").
func startOutcome(pull PullOutcome, oldHash, newHash string) string {
	if pull.Updated() {
		return config.OutcomePulled
	}
	if oldHash != "" && oldHash == newHash {
		return config.OutcomeUnchanged
	}
	return config.OutcomeRecreated
}

// firstFailedDependency returns the first declared dependency of svc
// already marked failed this run, or "".
func firstFailedDependency(svc config.ServiceSpec, failed map[string]bool) string {
	for _, dep := range svc.DependsOn {
		if failed[dep] {
			return dep
		}
	}
	return ""
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockReconciler implements Reconciler for testing.
type MockReconciler struct {
	// ReconcileFunc is called when Reconcile is invoked.
	ReconcileFunc func(ctx context.Context, opts ReconcileOptions) (*config.ReconciliationResult, error)

	// PullAllFunc is called when PullAll is invoked.
	PullAllFunc func(ctx context.Context) ([]PullOutcome, error)

	// StopAllFunc is called when StopAll is invoked.
	StopAllFunc func(ctx context.Context, leaseWait time.Duration) error

	// StartAllFunc is called when StartAll is invoked.
	StartAllFunc func(ctx context.Context, leaseWait time.Duration) ([]config.ServiceOutcome, error)

	// ReconcileCalls records the options of each invocation.
	ReconcileCalls []ReconcileOptions

	// PullAllCalls counts PullAll invocations.
	PullAllCalls int

	// StopAllCalls counts StopAll invocations.
	StopAllCalls int

	// StartAllCalls counts StartAll invocations.
	StartAllCalls int

	// mu protects call tracking.
	mu sync.Mutex
}

// Reconcile implements Reconciler.
func (m *MockReconciler) Reconcile(ctx context.Context, opts ReconcileOptions) (*config.ReconciliationResult, error) {
	m.mu.Lock()
	m.ReconcileCalls = append(m.ReconcileCalls, opts)
	m.mu.Unlock()

	if m.ReconcileFunc != nil {
		return m.ReconcileFunc(ctx, opts)
	}
	return &config.ReconciliationResult{
		RunID:  "mock-run",
		Status: config.StatusSuccess,
	}, nil
}

// PullAll implements Reconciler.
func (m *MockReconciler) PullAll(ctx context.Context) ([]PullOutcome, error) {
	m.mu.Lock()
	m.PullAllCalls++
	m.mu.Unlock()

	if m.PullAllFunc != nil {
		return m.PullAllFunc(ctx)
	}
	return nil, nil
}

// StopAll implements Reconciler.
func (m *MockReconciler) StopAll(ctx context.Context, leaseWait time.Duration) error {
	m.mu.Lock()
	m.StopAllCalls++
	m.mu.Unlock()

	if m.StopAllFunc != nil {
		return m.StopAllFunc(ctx, leaseWait)
	}
	return nil
}

// StartAll implements Reconciler.
func (m *MockReconciler) StartAll(ctx context.Context, leaseWait time.Duration) ([]config.ServiceOutcome, error) {
	m.mu.Lock()
	m.StartAllCalls++
	m.mu.Unlock()

	if m.StartAllFunc != nil {
		return m.StartAllFunc(ctx, leaseWait)
	}
	return nil, nil
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var _ Reconciler = (*DefaultReconciler)(nil)
var _ Reconciler = (*MockReconciler)(nil)
