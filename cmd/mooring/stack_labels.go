// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import "github.com/AleutianAI/mooring/cmd/mooring/config"

// Label key suffixes under the configured namespace.
const (
	labelKeyStack    = "stack"
	labelKeySvc      = "service"
	labelKeyVolume   = "volume"
	labelKeySpecHash = "spec-hash"
	labelKeyRun      = "run"
)

// StackLabels builds the engine labels that tie containers, volumes,
// and networks to a declared stack. Everything the reconciler touches
// is selected by these labels, never by bare names, so foreign
// containers on the same host are invisible to it.
type StackLabels struct {
	namespace string
}

// NewStackLabels creates a label builder for the given namespace. An
// empty namespace falls back to the configured default.
func NewStackLabels(namespace string) StackLabels {
	if namespace == "" {
		namespace = config.DefaultLabelNamespace
	}
	return StackLabels{namespace: namespace}
}

// Stack returns the fully qualified stack label key.
func (l StackLabels) Stack() string { return l.namespace + "." + labelKeyStack }

// Service returns the fully qualified service label key.
func (l StackLabels) Service() string { return l.namespace + "." + labelKeySvc }

// Volume returns the fully qualified volume label key.
func (l StackLabels) Volume() string { return l.namespace + "." + labelKeyVolume }

// SpecHash returns the fully qualified spec-hash label key.
func (l StackLabels) SpecHash() string { return l.namespace + "." + labelKeySpecHash }

// Run returns the fully qualified run label key.
func (l StackLabels) Run() string { return l.namespace + "." + labelKeyRun }

// StackSelector returns the label set that selects every object
// belonging to the named stack.
func (l StackLabels) StackSelector(stack string) map[string]string {
	return map[string]string{l.Stack(): stack}
}

// ForVolume returns the labels recorded on a stack volume.
func (l StackLabels) ForVolume(stack, volume string) map[string]string {
	return map[string]string{
		l.Stack():  stack,
		l.Volume(): volume,
	}
}

// ForContainer returns the labels recorded on a service container.
// The spec hash lets a later run tell an unchanged service from one
// whose declaration drifted; the run ID ties the container to the
// reconciliation that created it and is omitted for one-off starts.
func (l StackLabels) ForContainer(stack, service, specHash, runID string) map[string]string {
	labels := map[string]string{
		l.Stack():    stack,
		l.Service():  service,
		l.SpecHash(): specHash,
	}
	if runID != "" {
		labels[l.Run()] = runID
	}
	return labels
}

// ForNetwork returns the labels recorded on the stack network.
func (l StackLabels) ForNetwork(stack string) map[string]string {
	return l.StackSelector(stack)
}

// VolumeName returns the physical engine name for a declared volume.
func VolumeName(stack, volume string) string {
	return stack + "-" + volume
}

// ContainerName returns the physical engine name for a declared service.
func ContainerName(stack, service string) string {
	return stack + "-" + service
}

// NetworkName returns the engine network name for a stack.
func NetworkName(stack string) string {
	return stack
}
