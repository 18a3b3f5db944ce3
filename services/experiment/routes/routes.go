// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes registers the experiment service's HTTP surface.
//
// # Route Map
//
//	GET  /                      start form
//	POST /start                 create a session, set sid cookie
//	GET  /run                   run page
//	GET  /done                  completion page
//	GET  /api/trial             current trial (requires session)
//	POST /api/submit            record a response (requires session)
//	GET  /api/emotions          forced-choice response options
//	GET  /stimuli/:dir/*file    stimulus audio
//	GET  /health                liveness
//	GET  /metrics               Prometheus metrics
//	GET  /v1/admin/sessions     live session summaries
//	DEL  /v1/admin/sessions/:id retire a session
//	GET  /v1/admin/archive      archived session summaries
//	GET  /v1/admin/archive/:id  one archived summary
//	GET  /v1/admin/monitor/ws   websocket live monitor
package routes

import (
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/serpilot/services/experiment/handlers"
	"github.com/AleutianAI/serpilot/services/experiment/middleware"
	"github.com/AleutianAI/serpilot/services/experiment/session"
)

// Options carries the wired handlers and the session store the
// middleware resolves against.
type Options struct {
	Experiment *handlers.ExperimentHandler
	Admin      *handlers.AdminHandler
	Misc       *handlers.MiscHandler
	Store      session.Store

	// UIDir is the directory holding the static pages (index.html,
	// run.html, done.html). Empty skips the page routes; API tests
	// run without a UI checkout.
	UIDir string
}

// Register attaches every route to the router.
func Register(r *gin.Engine, opts Options) {
	if opts.UIDir != "" {
		r.GET("/", func(c *gin.Context) {
			c.File(filepath.Join(opts.UIDir, "index.html"))
		})
		r.GET("/run", func(c *gin.Context) {
			c.File(filepath.Join(opts.UIDir, "run.html"))
		})
		r.GET("/done", func(c *gin.Context) {
			c.File(filepath.Join(opts.UIDir, "done.html"))
		})
		r.Static("/static", filepath.Join(opts.UIDir, "static"))
	}

	r.POST("/start", opts.Experiment.HandleStart)

	api := r.Group("/api")
	{
		requireSession := middleware.RequireSession(opts.Store)
		api.GET("/trial", requireSession, opts.Experiment.HandleTrial)
		api.POST("/submit", requireSession, opts.Experiment.HandleSubmit)
		api.GET("/emotions", opts.Misc.HandleEmotions)
	}

	r.GET("/stimuli/:subdir/*filename", opts.Misc.HandleStimulus)
	r.GET("/health", opts.Misc.HandleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	admin := r.Group("/v1/admin")
	{
		admin.GET("/sessions", opts.Admin.HandleListSessions)
		admin.DELETE("/sessions/:id", opts.Admin.HandleDeleteSession)
		admin.GET("/archive", opts.Admin.HandleListArchive)
		admin.GET("/archive/:id", opts.Admin.HandleGetArchived)
		admin.GET("/monitor/ws", opts.Admin.HandleMonitor)
	}
}
