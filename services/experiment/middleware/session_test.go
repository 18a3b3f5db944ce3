// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/serpilot/services/experiment/audit"
	"github.com/AleutianAI/serpilot/services/experiment/datatypes"
	"github.com/AleutianAI/serpilot/services/experiment/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newStoredSession(t *testing.T, store session.Store, id string) *session.Session {
	t.Helper()
	w, err := audit.NewWriter(filepath.Join(t.TempDir(), "log.csv"))
	require.NoError(t, err)
	s := session.New(id, "p01",
		[]datatypes.Trial{{Block: datatypes.Block5AFCTest, TrialIndex: 1, Stim: "sad_M700.wav"}},
		map[int]int{4: 1}, w, time.Now())
	t.Cleanup(func() { s.Close() })
	store.Put(s)
	return s
}

func newRouter(store session.Store) *gin.Engine {
	r := gin.New()
	r.GET("/api/trial", RequireSession(store), func(c *gin.Context) {
		s := GetSession(c)
		c.JSON(http.StatusOK, gin.H{"session_id": s.ID})
	})
	return r
}

func TestRequireSession_ResolvesCookie(t *testing.T) {
	store := session.NewMemoryStore()
	newStoredSession(t, store, "sid-1")
	r := newRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/trial", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "sid-1"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"session_id":"sid-1"}`, rec.Body.String())
}

func TestRequireSession_MissingCookie(t *testing.T) {
	r := newRouter(session.NewMemoryStore())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/trial", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"ok":false,"error":"No session"}`, rec.Body.String())
}

func TestRequireSession_UnknownID(t *testing.T) {
	store := session.NewMemoryStore()
	newStoredSession(t, store, "sid-1")
	r := newRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/api/trial", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "swept-away"})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetSession_WithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Nil(t, GetSession(c))
}
