// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stimulus

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PoolChangeHandler receives the recounted pool size of a role after a
// debounced batch of filesystem changes.
type PoolChangeHandler func(role Role, count int)

// Watcher observes the stimulus directories and reports pool sizes.
//
// # Description
//
// The catalog itself is rebuilt per session start, so the watcher is
// purely operational: it keeps pool-size metrics fresh and warns when a
// directory drops below the minimum its stage requires, before a
// participant runs into a start failure.
//
// # Debouncing
//
// Filesystem events are batched within a debounce window so a bulk copy
// of sixty wav files triggers one recount, not sixty.
//
// # Thread Safety
//
// Safe for concurrent use. The handler is called from a single
// goroutine.
type Watcher struct {
	dirs     map[Role]string
	minimums map[Role]int
	handler  PoolChangeHandler
	debounce time.Duration

	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// defaultDebounce batches rapid event bursts from bulk file copies.
const defaultDebounce = 500 * time.Millisecond

// NewWatcher creates a stimulus pool watcher.
//
// # Inputs
//
//   - dirs: role -> directory mapping (same map the catalog uses).
//   - minimums: role -> smallest pool size that can still serve its
//     stage; a recount below this threshold logs a warning.
//   - handler: receives recounted sizes. May be nil.
//
// # Outputs
//
//   - *Watcher: not yet started; call Start().
//   - error: Non-nil if the underlying fsnotify watcher cannot be created.
func NewWatcher(dirs map[Role]string, minimums map[Role]int, handler PoolChangeHandler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &Watcher{
		dirs:     dirs,
		minimums: minimums,
		handler:  handler,
		debounce: defaultDebounce,
		watcher:  fsw,
		done:     make(chan struct{}),
	}, nil
}

// Start registers the role directories and begins watching.
//
// Absent directories are logged and skipped; the experimenter may
// populate them later, but the watcher will not pick them up until
// restart. An initial recount fires immediately so metrics are
// populated before the first filesystem event.
func (w *Watcher) Start() error {
	watched := 0
	for role, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			slog.Warn("stimulus.watcher: cannot watch directory",
				"role", string(role),
				"dir", dir,
				"error", err,
			)
			continue
		}
		watched++
	}
	if watched == 0 {
		return fmt.Errorf("no stimulus directory could be watched")
	}

	w.recount()
	go w.loop()

	slog.Info("stimulus.watcher: started", "directories", watched)
	return nil
}

// Stop terminates the watch goroutine and releases the fsnotify handle.
// Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
	})
}

// loop drains filesystem events, recounting after a quiet period.
func (w *Watcher) loop() {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename|fsnotify.Write) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("stimulus.watcher: watch error", "error", err)

		case <-fire:
			timer = nil
			fire = nil
			w.recount()
		}
	}
}

// recount relists every role directory and reports the sizes.
func (w *Watcher) recount() {
	for role, dir := range w.dirs {
		names, err := ListWavs(dir)
		if err != nil {
			slog.Warn("stimulus.watcher: recount failed",
				"role", string(role),
				"dir", dir,
				"error", err,
			)
			continue
		}
		count := len(names)
		if min, ok := w.minimums[role]; ok && count < min {
			slog.Warn("stimulus.watcher: pool below stage minimum",
				"role", string(role),
				"count", count,
				"minimum", min,
			)
		}
		if w.handler != nil {
			w.handler(role, count)
		}
	}
}
