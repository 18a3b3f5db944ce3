// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/serpilot/pkg/logging"
	"github.com/AleutianAI/serpilot/services/experiment/archive"
	"github.com/AleutianAI/serpilot/services/experiment/datatypes"
	"github.com/AleutianAI/serpilot/services/experiment/observability"
	"github.com/AleutianAI/serpilot/services/experiment/session"
	"github.com/AleutianAI/serpilot/services/experiment/ttl"
)

// Archiver is the archive surface the admin endpoints read.
// *archive.Archive satisfies this.
type Archiver interface {
	List() ([]datatypes.SessionSummary, error)
	Get(sessionID string) (datatypes.SessionSummary, error)
}

// AdminHandler serves the operator surface: live session listing and
// deletion, the archive of past runs, and the websocket monitor.
type AdminHandler struct {
	store   session.Store
	sweeper *ttl.Sweeper
	archive Archiver
	log     *logging.Logger

	upgrader websocket.Upgrader

	// monitorInterval is how often the websocket monitor pushes a
	// snapshot. Tests shorten it.
	monitorInterval time.Duration
}

// NewAdminHandler wires the admin endpoints.
func NewAdminHandler(store session.Store, sweeper *ttl.Sweeper,
	arch Archiver, log *logging.Logger) *AdminHandler {

	return &AdminHandler{
		store:   store,
		sweeper: sweeper,
		archive: arch,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		monitorInterval: 2 * time.Second,
	}
}

// HandleListSessions handles GET /v1/admin/sessions: summaries of all
// live sessions, newest start first.
func (h *AdminHandler) HandleListSessions(c *gin.Context) {
	live := h.store.List()
	out := make([]datatypes.SessionSummary, 0, len(live))
	for _, s := range live {
		out = append(out, s.Summary())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt != out[j].StartedAt {
			return out[i].StartedAt > out[j].StartedAt
		}
		return out[i].SessionID < out[j].SessionID
	})
	c.JSON(http.StatusOK, gin.H{"sessions": out, "count": len(out)})
}

// HandleDeleteSession handles DELETE /v1/admin/sessions/:id: retires a
// live session immediately, archiving its summary. The CSV log stays
// on disk.
func (h *AdminHandler) HandleDeleteSession(c *gin.Context) {
	id := c.Param("id")
	s, err := h.store.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "session not found"})
		return
	}

	h.sweeper.Retire(s, observability.SweepAdmin)
	h.log.Info("handlers.admin: session deleted", "session_id", id)
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// HandleListArchive handles GET /v1/admin/archive: summaries of every
// retired session, newest first.
func (h *AdminHandler) HandleListArchive(c *gin.Context) {
	summaries, err := h.archive.List()
	if err != nil {
		h.log.Error("handlers.admin: archive list failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "archive unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": summaries, "count": len(summaries)})
}

// HandleGetArchived handles GET /v1/admin/archive/:id.
func (h *AdminHandler) HandleGetArchived(c *gin.Context) {
	summary, err := h.archive.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, archive.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "session not found"})
			return
		}
		h.log.Error("handlers.admin: archive read failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "archive unavailable"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

// HandleMonitor handles GET /v1/admin/monitor/ws.
//
// # Description
//
// Upgrades to a websocket and pushes a snapshot of all live sessions
// at a fixed interval until the client disconnects. The payload is
// the same shape as HandleListSessions. A read pump runs alongside
// the writer solely to observe the close handshake.
func (h *AdminHandler) HandleMonitor(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.log.Warn("handlers.admin: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.monitorInterval)
	defer ticker.Stop()

	for {
		if err := h.writeSnapshot(conn); err != nil {
			return
		}
		select {
		case <-closed:
			return
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *AdminHandler) writeSnapshot(conn *websocket.Conn) error {
	live := h.store.List()
	out := make([]datatypes.SessionSummary, 0, len(live))
	for _, s := range live {
		out = append(out, s.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })

	return conn.WriteJSON(gin.H{"sessions": out, "count": len(out)})
}
