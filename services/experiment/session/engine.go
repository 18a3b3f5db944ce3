// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package session

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/serpilot/pkg/logging"
	"github.com/AleutianAI/serpilot/pkg/validation"
	"github.com/AleutianAI/serpilot/services/experiment/audit"
	"github.com/AleutianAI/serpilot/services/experiment/config"
	"github.com/AleutianAI/serpilot/services/experiment/datatypes"
	"github.com/AleutianAI/serpilot/services/experiment/stimulus"
	"github.com/AleutianAI/serpilot/services/experiment/trials"
)

// Engine creates sessions: it snapshots the stimulus directories,
// builds the trial sequence, opens the audit log, and registers the
// session in the store.
//
// The clock and the random-source factory are injectable for tests;
// production uses the wall clock and a fresh time-seeded source per
// session so no two participants share an ordering.
type Engine struct {
	cfg   config.Config
	store Store
	log   *logging.Logger

	now     func() time.Time
	newRand func() *rand.Rand
}

// NewEngine wires an Engine over the given store.
func NewEngine(cfg config.Config, store Store, log *logging.Logger) *Engine {
	return &Engine{
		cfg:   cfg,
		store: store,
		log:   log,
		now:   time.Now,
		newRand: func() *rand.Rand {
			return rand.New(rand.NewSource(time.Now().UnixNano()))
		},
	}
}

// WithClock replaces the engine's clock. Test hook.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// WithRandFactory replaces the engine's random-source factory. Test hook.
func (e *Engine) WithRandFactory(f func() *rand.Rand) *Engine {
	e.newRand = f
	return e
}

// Now returns the engine's current time. Handlers use it so request
// timestamps and session timestamps share one clock.
func (e *Engine) Now() time.Time {
	return e.now()
}

// RoleDirs maps each stimulus role to its configured directory.
func (e *Engine) RoleDirs() map[stimulus.Role]string {
	return map[stimulus.Role]string{
		stimulus.RoleDiscrimination: e.cfg.StimulusDir(config.DirDiscrimination),
		stimulus.RolePractice5AFC:   e.cfg.StimulusDir(config.DirPractice5AFC),
		stimulus.RoleTest5AFC:       e.cfg.StimulusDir(config.DirTest5AFC),
	}
}

// Start creates a session for a participant.
//
// # Description
//
// The participant id is sanitized before use. The stimulus directories
// are re-read on every start so files added since boot are picked up.
// If any stage cannot be built the start fails wholesale with a
// trials.ConfigurationError and nothing is registered; a failure to
// create the audit log fails the start the same way.
//
// # Inputs
//
//   - participantID: raw participant id from the start form.
//
// # Outputs
//
//   - *Session: the registered session, cursor at zero.
//   - error: catalog read failure, trials.ConfigurationError, or
//     *audit.PersistenceError.
func (e *Engine) Start(participantID string) (*Session, error) {
	pid := validation.SanitizeParticipantID(participantID)
	now := e.now()

	cat, err := stimulus.BuildCatalog(e.RoleDirs())
	if err != nil {
		return nil, fmt.Errorf("read stimulus directories: %w", err)
	}

	seq, totals, err := trials.BuildAll(cat, e.newRand())
	if err != nil {
		return nil, err
	}

	logPath := filepath.Join(e.cfg.DataDir,
		fmt.Sprintf("%s_%s.csv", pid, now.Format("20060102_150405")))
	writer, err := audit.NewWriter(logPath)
	if err != nil {
		return nil, err
	}

	s := New(uuid.NewString(), pid, seq, totals, writer, now)
	e.store.Put(s)

	e.log.Info("session.engine: session started",
		"session_id", s.ID,
		"participant_id", pid,
		"trials", len(seq),
		"log_path", logPath)
	return s, nil
}

// Finish removes a session from the store and closes its audit log,
// returning the final summary. Used when a participant completes the
// run and by the admin delete endpoint.
func (e *Engine) Finish(id string) (datatypes.SessionSummary, error) {
	s, err := e.store.Get(id)
	if err != nil {
		return datatypes.SessionSummary{}, err
	}
	summary := s.Summary()
	e.store.Delete(id)
	if err := s.Close(); err != nil {
		e.log.Warn("session.engine: audit log close failed",
			"session_id", id, "error", err)
	}
	return summary, nil
}
