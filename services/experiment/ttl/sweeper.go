// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ttl removes finished and abandoned sessions from the live
// store. A swept session has its audit writer closed and its summary
// archived; the CSV log on disk is never touched.
package ttl

import (
	"time"

	"github.com/AleutianAI/serpilot/pkg/logging"
	"github.com/AleutianAI/serpilot/services/experiment/datatypes"
	"github.com/AleutianAI/serpilot/services/experiment/observability"
	"github.com/AleutianAI/serpilot/services/experiment/session"
)

// Archiver receives the summary of every swept session.
// *archive.Archive satisfies this; tests substitute a recorder.
type Archiver interface {
	Put(summary datatypes.SessionSummary) error
}

// SweepResult summarizes one sweep cycle.
type SweepResult struct {
	// Examined is the number of live sessions inspected.
	Examined int

	// Completed is how many finished sessions were retired.
	Completed int

	// Expired is how many idle sessions were removed.
	Expired int

	// Errors counts archive or close failures. Failed sessions are
	// still removed from the store; the CSV log remains on disk.
	Errors int
}

// Sweeper retires sessions that completed or idled past the TTL.
//
// # Thread Safety
//
// SweepOnce may run concurrently with request handling: removal goes
// through the store, and a handler holding a *Session past its
// removal merely sees its next submit fail on the closed writer.
type Sweeper struct {
	store   session.Store
	archive Archiver
	metrics *observability.ExperimentMetrics
	log     *logging.Logger
	ttl     time.Duration

	now func() time.Time
}

// NewSweeper wires a sweeper. A nil metrics set disables metric
// updates; everything else is required.
func NewSweeper(store session.Store, archive Archiver,
	metrics *observability.ExperimentMetrics, log *logging.Logger,
	ttl time.Duration) *Sweeper {

	return &Sweeper{
		store:   store,
		archive: archive,
		metrics: metrics,
		log:     log,
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the sweeper's clock. Test hook.
func (sw *Sweeper) WithClock(now func() time.Time) *Sweeper {
	sw.now = now
	return sw
}

// SweepOnce examines every live session and retires the completed and
// the expired ones.
//
// # Description
//
// A session is retired when its cursor reached the end of the
// sequence, or when its last accepted submission is at least the TTL
// ago. Retiring archives the summary, deletes the store entry, and
// closes the audit writer, in that order. An archive failure is
// logged and counted but does not keep the session alive; the CSV
// file on disk is the durable record either way.
func (sw *Sweeper) SweepOnce() SweepResult {
	now := sw.now()
	var res SweepResult

	for _, s := range sw.store.List() {
		res.Examined++

		var reason observability.SweepReason
		switch {
		case s.Completed():
			reason = observability.SweepCompleted
			res.Completed++
		case now.Sub(s.LastActivity()) >= sw.ttl:
			reason = observability.SweepExpired
			res.Expired++
		default:
			continue
		}

		if !sw.retire(s, reason) {
			res.Errors++
		}
	}
	return res
}

// Retire removes one session regardless of its age, recording the
// given reason. Used by the admin delete endpoint and by completion
// handling; returns false when archiving or closing failed.
func (sw *Sweeper) Retire(s *session.Session, reason observability.SweepReason) bool {
	return sw.retire(s, reason)
}

func (sw *Sweeper) retire(s *session.Session, reason observability.SweepReason) bool {
	summary := s.Summary()
	ok := true

	if err := sw.archive.Put(summary); err != nil {
		sw.log.Warn("ttl.sweeper: archive write failed",
			"session_id", s.ID, "error", err)
		ok = false
	}

	sw.store.Delete(s.ID)
	if sw.metrics != nil {
		sw.metrics.RecordSweep(reason)
	}

	if err := s.Close(); err != nil {
		sw.log.Warn("ttl.sweeper: audit log close failed",
			"session_id", s.ID, "error", err)
		ok = false
	}

	sw.log.Info("ttl.sweeper: session retired",
		"session_id", s.ID,
		"participant_id", s.ParticipantID,
		"reason", string(reason),
		"cursor", summary.Cursor,
		"total", summary.Total)
	return ok
}
