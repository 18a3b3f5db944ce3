// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ttl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AleutianAI/serpilot/pkg/logging"
)

// Scheduler runs the sweeper in the background at a fixed interval,
// using the ticker + done channel pattern for graceful shutdown.
//
// # Thread Safety
//
// All public methods are thread-safe. Only one Start is allowed until
// Stop completes.
type Scheduler struct {
	sweeper  *Sweeper
	interval time.Duration
	log      *logging.Logger

	done    chan struct{}
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a scheduler around a sweeper. Ready to Start().
func NewScheduler(sweeper *Sweeper, interval time.Duration, log *logging.Logger) *Scheduler {
	return &Scheduler{
		sweeper:  sweeper,
		interval: interval,
		log:      log,
		done:     make(chan struct{}),
	}
}

// Start begins the background sweep loop.
//
// # Description
//
// Starts a goroutine that sweeps immediately and then at the
// configured interval until Stop() is called or the context is
// cancelled.
//
// # Outputs
//
//   - error: Non-nil if the scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.done = make(chan struct{}) // reset for restart
	s.mu.Unlock()

	s.log.Info("ttl.scheduler: starting",
		"interval", s.interval.String(),
		"session_ttl", s.sweeper.ttl.String())

	go s.runLoop(ctx)
	return nil
}

// Stop signals the loop to exit. Safe to call multiple times; does
// not interrupt a sweep already in progress.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.log.Info("ttl.scheduler: stopping")
	close(s.done)
	s.running = false
}

// RunNow triggers an immediate sweep cycle, independent of the
// schedule. Useful for manual invocation or testing.
func (s *Scheduler) RunNow() SweepResult {
	return s.sweeper.SweepOnce()
}

func (s *Scheduler) runLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.executeSweep()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("ttl.scheduler: stopped (context cancelled)")
			return
		case <-s.done:
			s.log.Info("ttl.scheduler: stopped (stop requested)")
			return
		case <-ticker.C:
			s.executeSweep()
		}
	}
}

func (s *Scheduler) executeSweep() {
	res := s.sweeper.SweepOnce()
	if res.Completed > 0 || res.Expired > 0 || res.Errors > 0 {
		s.log.Info("ttl.scheduler: sweep completed",
			"examined", res.Examined,
			"completed", res.Completed,
			"expired", res.Expired,
			"errors", res.Errors)
		return
	}
	s.log.Debug("ttl.scheduler: sweep completed (nothing to retire)",
		"examined", res.Examined)
}
