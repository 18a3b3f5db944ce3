// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the experiment
// service.
//
// # Description
//
// Metrics cover the session lifecycle (starts, sweeps, active count),
// submission throughput per stage, client-reported reaction times, and
// the size of the stimulus pools as seen by the directory watcher.
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "serpilot"

// Subsystem for experiment metrics
const experimentSubsystem = "experiment"

// ExperimentMetrics holds all Prometheus metrics of the experiment
// service. Initialize once at startup via InitMetrics().
type ExperimentMetrics struct {
	// SessionsStartedTotal counts session starts.
	// Labels: status (success, error)
	SessionsStartedTotal *prometheus.CounterVec

	// SessionsSweptTotal counts sessions removed from the store.
	// Labels: reason (completed, expired, admin)
	SessionsSweptTotal *prometheus.CounterVec

	// ActiveSessions tracks the number of live sessions.
	ActiveSessions prometheus.Gauge

	// SubmissionsTotal counts accepted submissions per stage.
	// Labels: stage (1..4)
	SubmissionsTotal *prometheus.CounterVec

	// ReactionTimeSeconds observes the client-reported reaction time.
	// Labels: stage (1..4)
	ReactionTimeSeconds *prometheus.HistogramVec

	// PoolFiles reports the wav count per stimulus directory role, as
	// last seen by the directory watcher.
	// Labels: role
	PoolFiles *prometheus.GaugeVec
}

// DefaultMetrics is the singleton instance registered against the
// default Prometheus registry. Initialized by InitMetrics().
var DefaultMetrics *ExperimentMetrics

// InitMetrics initializes DefaultMetrics against the default registry.
// Call once at application startup; a second call panics on duplicate
// registration.
func InitMetrics() *ExperimentMetrics {
	DefaultMetrics = NewExperimentMetrics(prometheus.DefaultRegisterer)
	return DefaultMetrics
}

// NewExperimentMetrics creates and registers the metric set against an
// arbitrary registerer. Tests pass a fresh registry.
func NewExperimentMetrics(reg prometheus.Registerer) *ExperimentMetrics {
	factory := promauto.With(reg)

	return &ExperimentMetrics{
		SessionsStartedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: experimentSubsystem,
				Name:      "sessions_started_total",
				Help:      "Total session start attempts by status",
			},
			[]string{"status"},
		),

		SessionsSweptTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: experimentSubsystem,
				Name:      "sessions_swept_total",
				Help:      "Total sessions removed from the live store by reason",
			},
			[]string{"reason"},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: experimentSubsystem,
				Name:      "active_sessions",
				Help:      "Number of live sessions",
			},
		),

		SubmissionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: experimentSubsystem,
				Name:      "submissions_total",
				Help:      "Total accepted trial submissions by stage",
			},
			[]string{"stage"},
		),

		ReactionTimeSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: experimentSubsystem,
				Name:      "reaction_time_seconds",
				Help:      "Client-reported reaction time per stage",
				Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 30},
			},
			[]string{"stage"},
		),

		PoolFiles: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: experimentSubsystem,
				Name:      "pool_files",
				Help:      "Stimulus wav files available per directory role",
			},
			[]string{"role"},
		),
	}
}

// =============================================================================
// Sweep Reasons
// =============================================================================

// SweepReason categorizes why a session left the live store.
type SweepReason string

const (
	// SweepCompleted means the participant finished all trials.
	SweepCompleted SweepReason = "completed"

	// SweepExpired means the TTL sweeper removed an idle session.
	SweepExpired SweepReason = "expired"

	// SweepAdmin means an operator deleted the session.
	SweepAdmin SweepReason = "admin"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordStart records a session start attempt.
func (m *ExperimentMetrics) RecordStart(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.SessionsStartedTotal.WithLabelValues(status).Inc()
	if success {
		m.ActiveSessions.Inc()
	}
}

// RecordSweep records a session leaving the live store.
func (m *ExperimentMetrics) RecordSweep(reason SweepReason) {
	m.SessionsSweptTotal.WithLabelValues(string(reason)).Inc()
	m.ActiveSessions.Dec()
}

// RecordSubmission records one accepted submission and its
// client-reported reaction time.
func (m *ExperimentMetrics) RecordSubmission(stage int, rtMs float64) {
	label := stageLabel(stage)
	m.SubmissionsTotal.WithLabelValues(label).Inc()
	if rtMs > 0 {
		m.ReactionTimeSeconds.WithLabelValues(label).Observe(rtMs / 1000)
	}
}

// RecordPoolSize records the current wav count of one directory role.
func (m *ExperimentMetrics) RecordPoolSize(role string, count int) {
	m.PoolFiles.WithLabelValues(role).Set(float64(count))
}

func stageLabel(stage int) string {
	switch stage {
	case 1:
		return "1"
	case 2:
		return "2"
	case 3:
		return "3"
	default:
		return "4"
	}
}
