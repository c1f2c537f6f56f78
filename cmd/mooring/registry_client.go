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
Package main provides RegistryClient for service image pulls.

RegistryClient fetches declared images through the container engine and
classifies registry failures into sentinel errors, so the reconciler can
fail fast with a precise exit code before any running container is
touched.

# Security Context

The registry credential arrives as an opaque auth header built by the
SecretsManager. It is never logged and never embedded in errors;
classification works on the engine's error chain only.

# Freshness

A pull records the local image identifier before and after the fetch, so
the caller can tell "new bits arrived" from "already current" without a
second registry round-trip. There are no automatic retries: a registry
that fails mid-deploy surfaces to the operator instead of being retried
against a working deployment.
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/mooring/cmd/mooring/config"
	"github.com/AleutianAI/mooring/cmd/mooring/internal/engine"
	"github.com/AleutianAI/mooring/cmd/mooring/internal/util"
	"github.com/AleutianAI/mooring/pkg/logging"
)

// =============================================================================
// Error Sentinel Values
// =============================================================================

// ErrRegistryUnavailable is returned when the registry or the engine
// daemon cannot be reached. The deployment is left untouched.
var ErrRegistryUnavailable = errors.New("registry unavailable")

// ErrAuthRequired is returned when the registry rejects the pull for
// missing or invalid credentials.
var ErrAuthRequired = errors.New("registry authentication required")

// ErrImageNotFound is returned when the registry has no image for the
// declared reference (unknown repository or tag).
var ErrImageNotFound = errors.New("image not found")

// =============================================================================
// Pull Outcome
// =============================================================================

// PullOutcome reports what one image pull accomplished.
type PullOutcome struct {
	// Service is the declared service whose image was pulled.
	Service string

	// Ref is the image reference that was pulled.
	Ref string

	// DigestBefore is the local image ID before the pull, empty when
	// the image was absent.
	DigestBefore string

	// DigestAfter is the local image ID after the pull.
	DigestAfter string

	// ResolvedDigest is the registry content digest (sha256:...) the
	// reference resolved to, when the engine reports one. Digest
	// pinning records it in the run result.
	ResolvedDigest string
}

// Updated reports whether the pull fetched new image content.
func (o PullOutcome) Updated() bool {
	return o.DigestBefore != o.DigestAfter
}

// =============================================================================
// Interface Definition
// =============================================================================

// RegistryClient pulls service images from their registries.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the reconciler
// pulls sequentially but the status prober may inspect concurrently.
type RegistryClient interface {
	// Pull fetches the image declared by svc and reports freshness.
	// Each fetch is bounded by the implementation's pull timeout on top
	// of whatever deadline ctx already carries.
	//
	// # Inputs
	//
	//   - ctx: Cancellation
	//   - svc: Declared service; svc.Image is the reference to fetch
	//
	// # Outputs
	//
	//   - PullOutcome: Digests before/after, even on failure where known
	//   - error: nil, or wrapped ErrRegistryUnavailable / ErrAuthRequired /
	//     ErrImageNotFound, or an unclassified engine error
	Pull(ctx context.Context, svc config.ServiceSpec) (PullOutcome, error)
}

// =============================================================================
// Default Implementation
// =============================================================================

// DefaultRegistryClient pulls through the container engine with
// credentials resolved by the SecretsManager. Every pull gets its own
// timeout so one stalled registry cannot hang a run forever.
type DefaultRegistryClient struct {
	engine      engine.Engine
	secrets     SecretsManager
	pullTimeout time.Duration
	logger      *logging.Logger
}

// NewDefaultRegistryClient creates a registry client.
//
// # Inputs
//
//   - eng: Container engine access (required)
//   - secrets: Credential source for registry auth (required)
//   - pullTimeout: Budget per image fetch, clamped to a sane minimum
//   - logger: Structured logger (required)
func NewDefaultRegistryClient(eng engine.Engine, secrets SecretsManager, pullTimeout time.Duration, logger *logging.Logger) (*DefaultRegistryClient, error) {
	if eng == nil {
		return nil, fmt.Errorf("%w: Engine", ErrNilDependency)
	}
	if secrets == nil {
		return nil, fmt.Errorf("%w: SecretsManager", ErrNilDependency)
	}
	if logger == nil {
		return nil, fmt.Errorf("%w: Logger", ErrNilDependency)
	}
	return &DefaultRegistryClient{
		engine:      eng,
		secrets:     secrets,
		pullTimeout: util.EnforceMinTimeout(pullTimeout, util.MinPullTimeout),
		logger:      logger,
	}, nil
}

// Pull implements RegistryClient.
func (c *DefaultRegistryClient) Pull(ctx context.Context, svc config.ServiceSpec) (PullOutcome, error) {
	outcome := PullOutcome{Service: svc.Name, Ref: svc.Image}

	ref, err := config.ParseImageRef(svc.Image)
	if err != nil {
		return outcome, fmt.Errorf("service %q: %w", svc.Name, err)
	}
	if !ref.IsPinned() && config.IsMutableTag(ref.Tag) {
		c.logger.Debug("tag is mutable, content may differ between runs",
			"service", svc.Name, "tag", ref.Tag)
	}

	// The image being absent locally is the normal first-deploy case.
	if img, ierr := c.engine.InspectImage(ctx, svc.Image); ierr == nil {
		outcome.DigestBefore = img.ID
	} else if !engine.IsNotFound(ierr) {
		if engine.IsDaemonUnreachable(ierr) {
			return outcome, fmt.Errorf("%w: %v", ErrRegistryUnavailable, ierr)
		}
		return outcome, fmt.Errorf("inspect image %q: %w", svc.Image, ierr)
	}

	auth, err := c.secrets.RegistryAuth(ref.Registry)
	if err != nil {
		return outcome, fmt.Errorf("registry credential for %q: %w", ref.Registry, err)
	}

	c.logger.Info("pulling image", "service", svc.Name, "image", svc.Image)
	pullCtx, cancel := context.WithTimeout(ctx, c.pullTimeout)
	defer cancel()
	if err := c.engine.PullImage(pullCtx, svc.Image, auth); err != nil {
		return outcome, classifyPullError(svc.Image, err)
	}

	img, err := c.engine.InspectImage(ctx, svc.Image)
	if err != nil {
		return outcome, fmt.Errorf("inspect image %q after pull: %w", svc.Image, err)
	}
	outcome.DigestAfter = img.ID
	outcome.ResolvedDigest = repoDigestFor(ref, img.RepoDigests)

	if outcome.Updated() {
		c.logger.Info("image updated", "service", svc.Name, "image", svc.Image)
	} else {
		c.logger.Info("image already current", "service", svc.Name, "image", svc.Image)
	}
	return outcome, nil
}

// classifyPullError maps an engine pull failure onto the sentinel that
// decides the run's exit code. Auth is checked before image-missing:
// Docker Hub reports a private repository pulled without credentials
// as "repository does not exist or may require 'docker login'", and
// pointing the operator at credentials is the recoverable path.
func classifyPullError(ref string, err error) error {
	switch {
	case engine.IsUnauthorized(err):
		return fmt.Errorf("%w: pull %s: %v", ErrAuthRequired, ref, err)
	case engine.IsImageNotFound(err):
		return fmt.Errorf("%w: %s: %v", ErrImageNotFound, ref, err)
	case engine.IsRegistryUnreachable(err), engine.IsDaemonUnreachable(err):
		return fmt.Errorf("%w: pull %s: %v", ErrRegistryUnavailable, ref, err)
	default:
		return fmt.Errorf("pull %s: %w", ref, err)
	}
}

// repoDigestFor picks the content digest the engine recorded for this
// repository. RepoDigests entries look like "ghcr.io/acme/api@sha256:…";
// references on docker.io may appear under their short name.
func repoDigestFor(ref config.ImageRef, repoDigests []string) string {
	candidates := []string{
		ref.Registry + "/" + ref.Repository,
		ref.Repository,
		strings.TrimPrefix(ref.Repository, "library/"),
	}

	for _, rd := range repoDigests {
		name, digest, ok := strings.Cut(rd, "@")
		if !ok {
			continue
		}
		for _, want := range candidates {
			if name == want {
				return digest
			}
		}
	}
	if len(repoDigests) > 0 {
		if _, digest, ok := strings.Cut(repoDigests[0], "@"); ok {
			return digest
		}
	}
	return ""
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockRegistryClient implements RegistryClient for testing.
//
// # Examples
//
//	mock := &MockRegistryClient{
//	    PullFunc: func(ctx context.Context, svc config.ServiceSpec) (PullOutcome, error) {
//	        return PullOutcome{}, ErrImageNotFound
//	    },
//	}
type MockRegistryClient struct {
	// PullFunc is called when Pull is invoked.
	PullFunc func(ctx context.Context, svc config.ServiceSpec) (PullOutcome, error)

	// PullCalls records all Pull invocations (service name).
	PullCalls []string

	// mu protects call tracking.
	mu sync.Mutex
}

// Pull implements RegistryClient.
func (m *MockRegistryClient) Pull(ctx context.Context, svc config.ServiceSpec) (PullOutcome, error) {
	m.mu.Lock()
	m.PullCalls = append(m.PullCalls, svc.Name)
	m.mu.Unlock()

	if m.PullFunc != nil {
		return m.PullFunc(ctx, svc)
	}
	return PullOutcome{
		Service:      svc.Name,
		Ref:          svc.Image,
		DigestBefore: "mock-image-" + svc.Image,
		DigestAfter:  "mock-image-" + svc.Image,
	}, nil
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ RegistryClient = (*DefaultRegistryClient)(nil)
var _ RegistryClient = (*MockRegistryClient)(nil)
