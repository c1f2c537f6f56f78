// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"crypto/sha256"
	"encoding/hex"
	"net"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Per-service outcomes recorded for a reconciliation run.
const (
	// OutcomePulled: the pull fetched new image content.
	OutcomePulled = "pulled"

	// OutcomeRecreated: the image was already current but the container
	// was created from a changed declaration or had no prior generation.
	OutcomeRecreated = "recreated"

	// OutcomeUnchanged: the prior container ran the same image content
	// under the same declaration; the recreate changed nothing.
	OutcomeUnchanged = "unchanged"

	// OutcomeFailed: the service did not reach running.
	OutcomeFailed = "failed"
)

// Overall statuses of a reconciliation run.
const (
	// StatusSuccess: every declared service reached running.
	StatusSuccess = "Success"

	// StatusPartialFailure: the run changed the deployment but at
	// least one service did not reach running.
	StatusPartialFailure = "PartialFailure"

	// StatusAbortedBeforeChange: a pull failed before any running
	// container was touched; the prior deployment is intact.
	StatusAbortedBeforeChange = "AbortedBeforeChange"
)

// DeploymentTarget identifies the VM a reconciliation runs against.
// Assembled from the environment at run start and overridable by
// flags; the credential itself never lives here, only the path to it.
// Host is sensitive material: the log sanitizer redacts it from all
// output.
type DeploymentTarget struct {
	Host      string
	User      string
	Port      int
	KeyPath   string
	RemoteDir string
}

// Addr returns the SSH dial address, defaulting the port to 22.
func (t DeploymentTarget) Addr() string {
	port := t.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

// ServiceOutcome records what a reconciliation run did to one service.
type ServiceOutcome struct {
	Service string `json:"service"`
	Outcome string `json:"outcome"`

	// Message carries the failure detail for OutcomeFailed, empty
	// otherwise.
	Message string `json:"message,omitempty"`

	// Digest is the resolved content digest of the pulled image when
	// digest pinning is enabled.
	Digest string `json:"digest,omitempty"`
}

// ReconciliationResult is the durable record of one reconciliation
// run, appended to the history store and rendered to the operator.
type ReconciliationResult struct {
	RunID      string           `json:"run_id"`
	Stack      string           `json:"stack"`
	StackHash  string           `json:"stack_hash"`
	Status     string           `json:"status"`
	Services   []ServiceOutcome `json:"services,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// NewReconciliationResult stamps a fresh run record with a unique run
// ID, the stack identity, and the start timestamp.
func NewReconciliationResult(stack *StackSpec) *ReconciliationResult {
	return &ReconciliationResult{
		RunID:     uuid.NewString(),
		Stack:     stack.Name,
		StackHash: stack.Hash,
		StartedAt: time.Now(),
	}
}

// Record appends one service outcome.
func (r *ReconciliationResult) Record(service, outcome, message string) {
	r.Services = append(r.Services, ServiceOutcome{
		Service: service,
		Outcome: outcome,
		Message: message,
	})
}

// RecordDigest attaches a resolved digest to the most recent outcome
// for the named service.
func (r *ReconciliationResult) RecordDigest(service, digest string) {
	for i := len(r.Services) - 1; i >= 0; i-- {
		if r.Services[i].Service == service {
			r.Services[i].Digest = digest
			return
		}
	}
}

// Finish sets the overall status and the finish timestamp.
func (r *ReconciliationResult) Finish(status string) {
	r.Status = status
	r.FinishedAt = time.Now()
}

// Failed returns the outcomes that did not reach running.
func (r *ReconciliationResult) Failed() []ServiceOutcome {
	var failed []ServiceOutcome
	for _, s := range r.Services {
		if s.Outcome == OutcomeFailed {
			failed = append(failed, s)
		}
	}
	return failed
}

// Duration returns how long the run took. Zero until Finish is called.
func (r *ReconciliationResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// ServiceHash returns a short content hash of one service's
// declaration and its volume mounts. Containers are labeled with it so
// a later run can tell whether the running container was created from
// the same declaration. Returns "" for an unknown service.
func (s *StackSpec) ServiceHash(name string) string {
	svc, ok := s.Service(name)
	if !ok {
		return ""
	}

	payload := struct {
		Service ServiceSpec  `yaml:"service"`
		Volumes []VolumeSpec `yaml:"volumes"`
	}{Service: *svc, Volumes: s.VolumesFor(name)}

	data, err := yaml.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	// 16 hex characters keep the label short while still making an
	// accidental collision between two declarations of one stack
	// implausible.
	return hex.EncodeToString(sum[:])[:16]
}
