// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads environment-driven configuration for the
// experiment service.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Stimulus directory names under the stimulus root. The three roles
// are fixed by the experiment design.
const (
	DirDiscrimination = "EMO_PRACT_rvb" // stage 1 + 2 (dry and _rvb variants)
	DirPractice5AFC   = "EMO_137"       // stage 3 (dry)
	DirTest5AFC       = "EMO_STIM_rvb"  // stage 4 (dry + rvb1/rvb2)
)

// Config holds all runtime settings for the experiment service.
//
// # Fields
//
//   - Port: HTTP listen port.
//   - StimulusRoot: directory containing the three role subdirectories.
//   - DataDir: directory receiving per-session CSV logs.
//   - ArchiveDir: BadgerDB directory for archived session summaries.
//   - SessionTTL: idle duration after which a session is swept.
//   - SweepInterval: how often the TTL sweeper runs.
//   - OTLPEndpoint: OTLP gRPC collector address ("" disables tracing).
type Config struct {
	Port          string
	StimulusRoot  string
	DataDir       string
	ArchiveDir    string
	SessionTTL    time.Duration
	SweepInterval time.Duration
	OTLPEndpoint  string
}

// FromEnv builds a Config from environment variables, applying defaults
// for anything unset.
//
// # Description
//
// Reads:
//
//	SERPILOT_PORT           (default "5000")
//	SERPILOT_STIMULUS_ROOT  (default "./stimuli")
//	SERPILOT_DATA_DIR       (default "./data")
//	SERPILOT_ARCHIVE_DIR    (default "<data dir>/archive")
//	SERPILOT_SESSION_TTL    (default "2h", Go duration syntax)
//	SERPILOT_SWEEP_INTERVAL (default "10m", Go duration syntax)
//	OTEL_EXPORTER_OTLP_ENDPOINT (default "", tracing disabled)
//
// # Outputs
//
//   - Config: Populated configuration.
//   - error: Non-nil if a duration variable fails to parse.
func FromEnv() (Config, error) {
	cfg := Config{
		Port:          envOr("SERPILOT_PORT", "5000"),
		StimulusRoot:  envOr("SERPILOT_STIMULUS_ROOT", "./stimuli"),
		DataDir:       envOr("SERPILOT_DATA_DIR", "./data"),
		SessionTTL:    2 * time.Hour,
		SweepInterval: 10 * time.Minute,
		OTLPEndpoint:  os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
	cfg.ArchiveDir = envOr("SERPILOT_ARCHIVE_DIR", filepath.Join(cfg.DataDir, "archive"))

	if raw := os.Getenv("SERPILOT_SESSION_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERPILOT_SESSION_TTL %q: %w", raw, err)
		}
		cfg.SessionTTL = ttl
	}
	if raw := os.Getenv("SERPILOT_SWEEP_INTERVAL"); raw != "" {
		interval, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERPILOT_SWEEP_INTERVAL %q: %w", raw, err)
		}
		cfg.SweepInterval = interval
	}
	return cfg, nil
}

// StimulusDir returns the absolute path of one role directory.
func (c Config) StimulusDir(role string) string {
	return filepath.Join(c.StimulusRoot, role)
}

// EnsureDirs creates the data and archive directories if absent.
func (c Config) EnsureDirs() error {
	if err := os.MkdirAll(c.DataDir, 0750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.MkdirAll(c.ArchiveDir, 0750); err != nil {
		return fmt.Errorf("create archive dir: %w", err)
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
