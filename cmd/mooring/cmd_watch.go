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
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/mooring/cmd/mooring/internal/util"
	"github.com/AleutianAI/mooring/pkg/ux"
)

// runWatch reconciles once, then again every time the stack file
// changes. Changes arriving during a run collapse into one follow-up
// run; runs never overlap.
func runWatch(cmd *cobra.Command, args []string) {
	ctx, cancel := commandContext()
	defer cancel()

	abs, err := filepath.Abs(stackPath())
	exitOnError(err)

	watcher, err := fsnotify.NewWatcher()
	exitOnError(err)
	defer watcher.Close()

	// Watch the directory, not the file: editors replace files by
	// rename, which silently drops a watch held on the file itself.
	exitOnError(watcher.Add(filepath.Dir(abs)))

	events := make(chan struct{}, 1)
	util.SafeGo(func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case events <- struct{}{}:
				default:
				}
			case werr, ok := <-watcher.Errors:
				if !ok {
					return
				}
				ux.Warning(fmt.Sprintf("watch error: %v", werr))
			}
		}
	}, func(r util.SafeGoResult) {
		ux.Error(fmt.Sprintf("file watcher died: %v; restart watch", r.PanicValue))
	})

	runs := debounce(ctx, events, watchDebounce())

	ux.Box(ux.Flourish(ux.IconAnchor, "Watching for changes"),
		fmt.Sprintf("stack:    %s\ndebounce: %dms\nStop with ctrl-c.", abs, watchDebounceMS))
	watchReconcile(ctx)

	for {
		select {
		case <-ctx.Done():
			ux.Info("watch stopped")
			return
		case _, ok := <-runs:
			if !ok {
				return
			}
			ux.Info(fmt.Sprintf("%s stack file changed", ux.IconArrow))
			watchReconcile(ctx)
		}
	}
}

func watchDebounce() time.Duration {
	return time.Duration(watchDebounceMS) * time.Millisecond
}

// watchReconcile performs one run and reports it in a single line.
// Errors never stop the watch; the next change gets a fresh attempt.
func watchReconcile(ctx context.Context) {
	// The reconciler converts its own panics to errors; this covers
	// everything around it so the watch outlives any single run.
	defer util.RecoverPanic(func(r util.SafeGoResult) {
		ux.Error(fmt.Sprintf("reconcile run panicked: %v", r.PanicValue))
	})()

	if ctx.Err() != nil {
		return
	}

	// Rebuilt from scratch each run: the stack file changing is the
	// whole point.
	d, err := buildDeployment(true)
	if err != nil {
		ux.Error(fmt.Sprintf("reconcile skipped: %v", err))
		return
	}
	defer d.Close()

	opts := DefaultReconcileOptions()
	opts.LeaseWait = leaseWait()

	result, err := d.reconciler.Reconcile(ctx, opts)
	switch {
	case result == nil && err != nil:
		ux.Error(fmt.Sprintf("reconcile failed: %v", err))
	case err != nil:
		ux.Warning(fmt.Sprintf("run %s: %s in %s: %v",
			shortID(result.RunID), result.Status, result.Duration().Round(time.Millisecond), err))
	default:
		ux.Success(fmt.Sprintf("run %s: %s in %s",
			shortID(result.RunID), result.Status, result.Duration().Round(time.Millisecond)))
	}
}

// debounce forwards one pulse after in has been quiet for interval, so
// a burst of writes triggers a single run. The returned channel closes
// when ctx ends.
func debounce(ctx context.Context, in <-chan struct{}, interval time.Duration) <-chan struct{} {
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)

		timer := time.NewTimer(interval)
		if !timer.Stop() {
			<-timer.C
		}

		for {
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-in:
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(interval)
			case <-timer.C:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out
}
