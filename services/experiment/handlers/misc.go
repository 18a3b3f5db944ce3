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
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/serpilot/services/experiment/datatypes"
	"github.com/AleutianAI/serpilot/services/experiment/session"
)

// MiscHandler serves health, static experiment metadata, and the
// stimulus audio files.
type MiscHandler struct {
	store        session.Store
	stimulusRoot string
}

// NewMiscHandler wires the miscellaneous endpoints.
func NewMiscHandler(store session.Store, stimulusRoot string) *MiscHandler {
	return &MiscHandler{store: store, stimulusRoot: stimulusRoot}
}

// HandleHealth handles GET /health.
func (h *MiscHandler) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "ok",
		"active_sessions": h.store.Len(),
	})
}

// HandleEmotions handles GET /api/emotions: the response choices the
// run page renders for the forced-choice stages.
func (h *MiscHandler) HandleEmotions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"emotions": datatypes.Emotions5AFC})
}

// HandleStimulus handles GET /stimuli/:subdir/*filename, serving one
// audio file from under the stimulus root.
//
// # Description
//
// Only a single directory level below the root is addressable, which
// matches the fixed pool layout. The joined path is verified to stay
// under the root so crafted names cannot escape it.
//
// # Responses
//
//   - 200: the file
//   - 400: path escapes the stimulus root
//   - 404: no such file
func (h *MiscHandler) HandleStimulus(c *gin.Context) {
	subdir := c.Param("subdir")
	filename := strings.TrimPrefix(c.Param("filename"), "/")

	root, err := filepath.Abs(h.stimulusRoot)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "stimulus root unavailable"})
		return
	}

	path := filepath.Join(root, subdir, filename)
	if !strings.HasPrefix(path, root+string(filepath.Separator)) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid path"})
		return
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "not found"})
		return
	}
	c.File(path)
}
