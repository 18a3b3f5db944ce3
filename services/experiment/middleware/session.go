// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the experiment
// service.
//
// # Session Resolution Flow
//
// The session middleware reads the sid cookie, resolves the session
// from the store, and places it in the Gin context for downstream
// handlers.
//
//	Request
//	   │
//	   ▼
//	RequireSession
//	   │
//	   ├─► Read "sid" cookie
//	   │
//	   ├─► store.Get(sid)
//	   │
//	   └─► Store *session.Session in context
//	           │
//	           ▼
//	       Handler (retrieves via GetSession)
//
// A missing cookie or an unknown id aborts with 400, mirroring what
// participants see when their browser lost the cookie mid-run: the run
// page tells them to return to the start form.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/serpilot/services/experiment/session"
)

// CookieName is the session cookie set on a successful start.
const CookieName = "sid"

// sessionKey is the context key for storing the resolved session.
// Using a fixed key prevents collisions with other context values.
const sessionKey = "serpilot_session"

// SetSession stores the resolved session in the Gin context.
//
// Called by RequireSession after a successful lookup; tests call it
// directly to fake a resolved session.
func SetSession(c *gin.Context, s *session.Session) {
	c.Set(sessionKey, s)
}

// GetSession retrieves the resolved session from the Gin context, or
// nil when RequireSession did not run or did not resolve one.
func GetSession(c *gin.Context) *session.Session {
	if v, exists := c.Get(sessionKey); exists {
		if s, ok := v.(*session.Session); ok {
			return s
		}
	}
	return nil
}

// RequireSession creates a Gin middleware that resolves the sid cookie
// against the store.
//
// # Description
//
// Reads the sid cookie and looks the session up. On success the
// session is stored in the context and the chain continues; on a
// missing cookie or unknown id the request is aborted with 400 and
// {"ok": false, "error": "No session"}.
//
// # Inputs
//
//   - store: session store to resolve against. Must not be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware ready for use with Gin.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func RequireSession(store session.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(CookieName)
		if err != nil || sid == "" {
			abortNoSession(c)
			return
		}

		s, err := store.Get(sid)
		if err != nil {
			abortNoSession(c)
			return
		}

		SetSession(c, s)
		c.Next()
	}
}

func abortNoSession(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"ok":    false,
		"error": "No session",
	})
}
