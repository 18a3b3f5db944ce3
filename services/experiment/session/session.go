// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package session holds the per-participant experiment state: the
// prebuilt trial sequence, the cursor over it, and the audit writer
// that records every accepted submission.
package session

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/AleutianAI/serpilot/services/experiment/audit"
	"github.com/AleutianAI/serpilot/services/experiment/datatypes"
)

// ErrSequenceExhausted is returned by Submit after the last trial has
// been answered.
var ErrSequenceExhausted = errors.New("no trial remaining")

// Session is one participant's run through the experiment. The trial
// sequence is immutable after creation; only the cursor, the activity
// timestamp, and the audit log advance.
//
// All methods are safe for concurrent use. State moves under a single
// mutex so a submission is recorded and the cursor advanced atomically
// with respect to concurrent reads.
type Session struct {
	// ID is the opaque session identifier carried by the sid cookie.
	ID string

	// ParticipantID is the sanitized participant identifier.
	ParticipantID string

	// StartedAt is when the session was created.
	StartedAt time.Time

	mu           sync.Mutex
	trials       []datatypes.Trial
	stageTotals  map[int]int
	cursor       int
	lastActivity time.Time
	log          *audit.Writer
}

// New assembles a session around a prebuilt trial sequence and an open
// audit writer. The writer already holds the header row.
func New(id, participantID string, seq []datatypes.Trial, stageTotals map[int]int,
	log *audit.Writer, now time.Time) *Session {

	return &Session{
		ID:            id,
		ParticipantID: participantID,
		StartedAt:     now,
		trials:        seq,
		stageTotals:   stageTotals,
		lastActivity:  now,
		log:           log,
	}
}

// stageIndexLocked computes the 1-based position of the trial at
// cursor within its own stage by counting earlier trials of the same
// stage. Callers hold s.mu.
func (s *Session) stageIndexLocked(cursor int) int {
	stage := s.trials[cursor].Block.StageID()
	n := 0
	for i := 0; i < cursor; i++ {
		if s.trials[i].Block.StageID() == stage {
			n++
		}
	}
	return n + 1
}

// Current returns the envelope for the trial at the cursor, or a done
// envelope when the sequence is exhausted. Reading does not count as
// activity; only submissions keep a session alive.
func (s *Session) Current() datatypes.TrialEnvelope {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor >= len(s.trials) {
		return datatypes.TrialEnvelope{
			Done:   true,
			Cursor: s.cursor,
			Total:  len(s.trials),
		}
	}

	t := s.trials[s.cursor]
	stage := t.Block.StageID()
	return datatypes.TrialEnvelope{
		Done:   false,
		Trial:  &t,
		Cursor: s.cursor,
		Total:  len(s.trials),
		Stage: &datatypes.StageInfo{
			ID:    stage,
			Label: datatypes.StageLabel(stage),
			Count: datatypes.StageCount,
			Index: s.stageIndexLocked(s.cursor),
			Total: s.stageTotals[stage],
		},
	}
}

// Submit records a response against the trial at the cursor.
//
// # Description
//
// The audit row is appended before the cursor advances: a submission
// that cannot be persisted leaves the session exactly where it was, so
// the client's retry targets the same trial. The activity timestamp
// only moves on success.
//
// # Outputs
//
//   - error: ErrSequenceExhausted past the last trial, or the audit
//     writer's *audit.PersistenceError.
func (s *Session) Submit(req datatypes.SubmitRequest, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor >= len(s.trials) {
		return ErrSequenceExhausted
	}

	t := s.trials[s.cursor]
	stage := t.Block.StageID()

	row := audit.Row{
		ParticipantID:    s.ParticipantID,
		TimestampUnix:    now.Unix(),
		StageID:          stage,
		StageLabel:       datatypes.StageLabel(stage),
		StageTrialIndex:  s.stageIndexLocked(s.cursor),
		StageTrialTotal:  s.stageTotals[stage],
		Block:            string(t.Block),
		TrialGlobalIndex: s.cursor + 1,
		QuestionShown:    req.QuestionShown,
		StimA:            t.StimA,
		StimB:            t.StimB,
		Stim:             t.Stim,
		MetaJSON:         marshalOrEmpty(t.Meta),
		Response:         formatResponse(req.Response),
		RtMs:             req.RtMs,
		PlayedJSON:       marshalOrEmpty(req.Played),
	}
	if err := s.log.Append(row); err != nil {
		return err
	}

	s.cursor++
	s.lastActivity = now
	return nil
}

// Cursor returns how many trials have been answered.
func (s *Session) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Total returns the length of the trial sequence.
func (s *Session) Total() int {
	return len(s.trials)
}

// Completed reports whether every trial has been answered.
func (s *Session) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor >= len(s.trials)
}

// LastActivity returns the time of the most recent accepted
// submission, or the start time if none.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// LogPath returns the location of the session's CSV audit log.
func (s *Session) LogPath() string {
	return s.log.Path()
}

// Summary snapshots the session for the admin API and the archive.
func (s *Session) Summary() datatypes.SessionSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return datatypes.SessionSummary{
		SessionID:     s.ID,
		ParticipantID: s.ParticipantID,
		LogPath:       s.log.Path(),
		Cursor:        s.cursor,
		Total:         len(s.trials),
		StartedAt:     s.StartedAt.Unix(),
		LastActivity:  s.lastActivity.Unix(),
		Completed:     s.cursor >= len(s.trials),
	}
}

// Close releases the audit writer. Safe to call more than once.
func (s *Session) Close() error {
	return s.log.Close()
}

// marshalOrEmpty renders v as JSON, degrading to "{}" when v is nil or
// unencodable. Audit rows must always carry a valid JSON object in the
// meta and played columns.
func marshalOrEmpty(v any) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil || string(b) == "null" {
		return "{}"
	}
	return string(b)
}

// formatResponse renders the participant's answer for the CSV. String
// answers pass through verbatim; anything else is JSON-encoded.
func formatResponse(v any) string {
	switch r := v.(type) {
	case nil:
		return ""
	case string:
		return r
	default:
		b, err := json.Marshal(r)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
