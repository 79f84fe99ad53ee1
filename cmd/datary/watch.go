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
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"
)

// DefaultWatchDebounce groups the burst of events an editor save produces.
const DefaultWatchDebounce = 500 * time.Millisecond

// watchFile calls run every time path changes, until ctx is done.
//
// # Description
//
// The parent directory is watched rather than the file so that editors
// which save by rename keep triggering. Events for other files are
// ignored. Events closer together than debounce collapse into one run.
// A failing run is logged and watching continues.
//
// # Outputs
//
//   - error: nil when ctx is cancelled, otherwise the watcher failure.
func watchFile(ctx context.Context, path string, debounce time.Duration, logger *slog.Logger, run func(context.Context) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	triggers := make(chan struct{}, 1)
	g, gctx := errgroup.WithContext(ctx)

	// Event processor: forwards debounced changes of path.
	g.Go(func() error {
		var (
			timer  *time.Timer
			timerC <-chan time.Time
		)
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		for {
			select {
			case <-gctx.Done():
				return nil
			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if filepath.Clean(event.Name) != abs {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if timer == nil {
					timer = time.NewTimer(debounce)
				} else {
					timer.Reset(debounce)
				}
				timerC = timer.C
			case <-timerC:
				timerC = nil
				select {
				case triggers <- struct{}{}:
				default:
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				return fmt.Errorf("watch %s: %w", path, err)
			}
		}
	})

	// Runner: one sync at a time.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-triggers:
				if err := run(gctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("sync run failed", "path", path, "error", err)
				}
			}
		}
	})

	return g.Wait()
}
