// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

// StartRequest is the form payload of POST /start.
type StartRequest struct {
	// ParticipantID may contain anything the participant typed; it is
	// sanitized before reaching a filename, never rejected. Empty
	// becomes "anon".
	ParticipantID string `form:"participant_id" json:"participant_id"`
}

// SubmitRequest is the JSON payload of POST /api/submit.
type SubmitRequest struct {
	// Response is the participant's answer: a side ("A"/"B") in the
	// two-alternative stages, an emotion label in the 5AFC stages.
	Response any `json:"response" binding:"required"`

	// RtMs is the client-measured reaction time in milliseconds.
	RtMs float64 `json:"rt_ms"`

	// Played reports what the client actually played (order, repeats).
	Played map[string]any `json:"played"`

	// QuestionShown is the question text rendered on screen, recorded
	// verbatim in the audit log.
	QuestionShown string `json:"question_shown"`
}

// StageInfo is the stage-relative position block of a served trial.
type StageInfo struct {
	ID    int    `json:"id"`
	Label string `json:"label"`
	Count int    `json:"count"`
	Index int    `json:"index"`
	Total int    `json:"total"`
}

// TrialEnvelope is the response of GET /api/trial. Cursor and Total
// always report progress; Trial and Stage are present only while a
// trial remains to be served.
type TrialEnvelope struct {
	Done   bool       `json:"done"`
	Trial  *Trial     `json:"trial,omitempty"`
	Cursor int        `json:"cursor"`
	Total  int        `json:"total"`
	Stage  *StageInfo `json:"stage,omitempty"`
}

// SessionSummary is the admin/monitoring view of one session, also the
// record archived when a session completes or expires.
type SessionSummary struct {
	SessionID     string `json:"session_id"`
	ParticipantID string `json:"participant_id"`
	LogPath       string `json:"log_path"`
	Cursor        int    `json:"cursor"`
	Total         int    `json:"total"`
	StartedAt     int64  `json:"started_at_unix"`
	LastActivity  int64  `json:"last_activity_unix"`
	Completed     bool   `json:"completed"`
}
