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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/serpilot/pkg/logging"
	"github.com/AleutianAI/serpilot/services/experiment/archive"
	"github.com/AleutianAI/serpilot/services/experiment/audit"
	"github.com/AleutianAI/serpilot/services/experiment/datatypes"
	"github.com/AleutianAI/serpilot/services/experiment/observability"
	"github.com/AleutianAI/serpilot/services/experiment/session"
	"github.com/AleutianAI/serpilot/services/experiment/ttl"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func quietLogger() *logging.Logger {
	return logging.New(logging.Config{Quiet: true})
}

func storedSession(t *testing.T, store session.Store, id string, started time.Time) *session.Session {
	t.Helper()
	w, err := audit.NewWriter(filepath.Join(t.TempDir(), id+".csv"))
	require.NoError(t, err)
	s := session.New(id, "p01", []datatypes.Trial{
		{Block: datatypes.Block5AFCTest, TrialIndex: 1, Stim: "sad_M700.wav",
			Meta: datatypes.TrialMeta{ForcedChoice: &datatypes.ForcedChoiceMeta{}}},
	}, map[int]int{4: 1}, w, started)
	t.Cleanup(func() { s.Close() })
	store.Put(s)
	return s
}

func newAdminRig(t *testing.T) (*gin.Engine, session.Store, *archive.Archive) {
	t.Helper()
	store := session.NewMemoryStore()
	arch, err := archive.Open(archive.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { arch.Close() })

	metrics := observability.NewExperimentMetrics(prometheus.NewRegistry())
	sweeper := ttl.NewSweeper(store, arch, metrics, quietLogger(), 2*time.Hour)

	h := NewAdminHandler(store, sweeper, arch, quietLogger())
	h.monitorInterval = 50 * time.Millisecond

	r := gin.New()
	r.GET("/v1/admin/sessions", h.HandleListSessions)
	r.DELETE("/v1/admin/sessions/:id", h.HandleDeleteSession)
	r.GET("/v1/admin/archive", h.HandleListArchive)
	r.GET("/v1/admin/archive/:id", h.HandleGetArchived)
	r.GET("/v1/admin/monitor/ws", h.HandleMonitor)
	return r, store, arch
}

func TestHandleListSessions(t *testing.T) {
	r, store, _ := newAdminRig(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	storedSession(t, store, "sid-old", base)
	storedSession(t, store, "sid-new", base.Add(time.Hour))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/sessions", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sessions []datatypes.SessionSummary `json:"sessions"`
		Count    int                        `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, 2, body.Count)
	assert.Equal(t, "sid-new", body.Sessions[0].SessionID, "newest start first")
	assert.Equal(t, "sid-old", body.Sessions[1].SessionID)
}

func TestHandleDeleteSession(t *testing.T) {
	r, store, arch := newAdminRig(t)
	storedSession(t, store, "sid-1", time.Now())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/admin/sessions/sid-1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, store.Len())

	// Summary landed in the archive.
	got, err := arch.Get("sid-1")
	require.NoError(t, err)
	assert.Equal(t, "p01", got.ParticipantID)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/admin/sessions/sid-1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleArchiveEndpoints(t *testing.T) {
	r, _, arch := newAdminRig(t)
	require.NoError(t, arch.Put(datatypes.SessionSummary{
		SessionID: "sid-done", ParticipantID: "p02", Completed: true,
		StartedAt: 1748779200,
	}))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/archive", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"count":1`)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/archive/sid-done", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var got datatypes.SessionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Completed)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/admin/archive/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleMonitor_PushesSnapshots(t *testing.T) {
	r, store, _ := newAdminRig(t)
	storedSession(t, store, "sid-1", time.Now())

	srv := httptest.NewServer(r)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/admin/monitor/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snapshot struct {
		Sessions []datatypes.SessionSummary `json:"sessions"`
		Count    int                        `json:"count"`
	}
	require.NoError(t, conn.ReadJSON(&snapshot))
	require.Equal(t, 1, snapshot.Count)
	assert.Equal(t, "sid-1", snapshot.Sessions[0].SessionID)

	// A store change shows up in a later snapshot.
	storedSession(t, store, "sid-2", time.Now())
	deadline := time.Now().Add(2 * time.Second)
	for snapshot.Count != 2 {
		require.True(t, time.Now().Before(deadline), "second session never appeared")
		require.NoError(t, conn.ReadJSON(&snapshot))
	}
}

func TestMiscHandlers(t *testing.T) {
	store := session.NewMemoryStore()
	root := t.TempDir()
	require.NoError(t, writeFile(filepath.Join(root, "EMO_137", "amu_F100.wav"), []byte("RIFF")))

	h := NewMiscHandler(store, root)
	r := gin.New()
	r.GET("/health", h.HandleHealth)
	r.GET("/api/emotions", h.HandleEmotions)
	r.GET("/stimuli/:subdir/*filename", h.HandleStimulus)

	t.Run("health", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok","active_sessions":0}`, rec.Body.String())
	})

	t.Run("emotions", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/emotions", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "Amusement")
		assert.Contains(t, rec.Body.String(), "Surprise")
	})

	t.Run("serves a stimulus file", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stimuli/EMO_137/amu_F100.wav", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "RIFF", rec.Body.String())
	})

	t.Run("missing file is 404", func(t *testing.T) {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stimuli/EMO_137/nope.wav", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("traversal is rejected", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/stimuli/EMO_137/..%2F..%2Fsecret", nil)
		r.ServeHTTP(rec, req)
		assert.NotEqual(t, http.StatusOK, rec.Code)
	})
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0640)
}
