// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers implements the HTTP endpoints of the experiment
// service: the participant-facing session flow (start, trial, submit),
// the stimulus file server, and the admin/monitoring surface.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/serpilot/pkg/logging"
	"github.com/AleutianAI/serpilot/services/experiment/audit"
	"github.com/AleutianAI/serpilot/services/experiment/datatypes"
	"github.com/AleutianAI/serpilot/services/experiment/middleware"
	"github.com/AleutianAI/serpilot/services/experiment/observability"
	"github.com/AleutianAI/serpilot/services/experiment/session"
	"github.com/AleutianAI/serpilot/services/experiment/trials"
)

// tracerName identifies this package's spans.
const tracerName = "github.com/AleutianAI/serpilot/services/experiment/handlers"

// ExperimentHandler serves the participant-facing session flow.
type ExperimentHandler struct {
	engine  *session.Engine
	store   session.Store
	metrics *observability.ExperimentMetrics
	log     *logging.Logger
	tracer  trace.Tracer
}

// NewExperimentHandler wires the participant endpoints. A nil metrics
// set disables metric updates.
func NewExperimentHandler(engine *session.Engine, store session.Store,
	metrics *observability.ExperimentMetrics, log *logging.Logger) *ExperimentHandler {

	return &ExperimentHandler{
		engine:  engine,
		store:   store,
		metrics: metrics,
		log:     log,
		tracer:  otel.Tracer(tracerName),
	}
}

// HandleStart handles POST /start.
//
// # Description
//
// Binds the start form, creates a session (catalog snapshot, trial
// sequence, audit log), and sets the sid cookie. The participant id is
// accepted as typed and sanitized into the log filename; it is never a
// reason to refuse a start. A stimulus pool that cannot satisfy the
// experiment design fails with 500 and a message naming the missing
// files; nothing is registered in that case.
//
// # Responses
//
//   - 200: {"ok": true}
//   - 400: malformed form payload
//   - 500: stimulus pool misconfigured or audit log not writable
func (h *ExperimentHandler) HandleStart(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "experiment.start")
	defer span.End()

	var req datatypes.StartRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": "invalid start form",
		})
		return
	}

	s, err := h.engine.Start(req.ParticipantID)
	if err != nil {
		if h.metrics != nil {
			h.metrics.RecordStart(false)
		}
		h.log.Error("handlers.experiment: session start failed", "error", err)

		status := http.StatusInternalServerError
		msg := "could not start session"
		if trials.IsConfigurationError(err) {
			msg = err.Error()
		}
		c.JSON(status, gin.H{"ok": false, "error": msg})
		return
	}

	if h.metrics != nil {
		h.metrics.RecordStart(true)
	}
	span.SetAttributes(
		attribute.String("session.id", s.ID),
		attribute.String("participant.id", s.ParticipantID),
	)

	// Session cookie: no MaxAge so it dies with the browser, matching
	// the one-sitting nature of a run.
	c.SetCookie(middleware.CookieName, s.ID, 0, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// HandleTrial handles GET /api/trial. Requires a resolved session.
//
// Returns the trial at the cursor with its stage-relative position, or
// {"done": true} past the end. Serving a trial does not advance
// anything; reloading the run page re-serves the same trial.
func (h *ExperimentHandler) HandleTrial(c *gin.Context) {
	s := middleware.GetSession(c)
	c.JSON(http.StatusOK, s.Current())
}

// HandleSubmit handles POST /api/submit. Requires a resolved session.
//
// # Description
//
// Validates the submission payload, appends the audit row, and
// advances the cursor. The row is persisted before the cursor moves:
// when the log cannot be written the response is 500 and the same
// trial is served again, so a participant's answer is never silently
// dropped.
//
// # Responses
//
//   - 200: {"ok": true}, or {"ok": false, "error": "No trial remaining"}
//     when the sequence is already exhausted
//   - 400: payload missing the response field
//   - 500: audit log write failure
func (h *ExperimentHandler) HandleSubmit(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "experiment.submit")
	defer span.End()

	s := middleware.GetSession(c)

	var req datatypes.SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"ok":    false,
			"error": "response is required",
		})
		return
	}

	// Capture the stage before the cursor moves.
	env := s.Current()

	if err := s.Submit(req, h.engine.Now()); err != nil {
		if errors.Is(err, session.ErrSequenceExhausted) {
			c.JSON(http.StatusOK, gin.H{"ok": false, "error": "No trial remaining"})
			return
		}
		var perr *audit.PersistenceError
		if errors.As(err, &perr) {
			h.log.Error("handlers.experiment: audit append failed",
				"session_id", s.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"ok":    false,
				"error": "could not record response",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "submit failed"})
		return
	}

	if h.metrics != nil && env.Stage != nil {
		h.metrics.RecordSubmission(env.Stage.ID, req.RtMs)
	}
	span.SetAttributes(attribute.String("session.id", s.ID))

	c.JSON(http.StatusOK, gin.H{"ok": true})
}
