// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func newTestMetrics() *ExperimentMetrics {
	return NewExperimentMetrics(prometheus.NewRegistry())
}

func TestRecordStart(t *testing.T) {
	m := newTestMetrics()

	m.RecordStart(true)
	m.RecordStart(true)
	m.RecordStart(false)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.SessionsStartedTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.SessionsStartedTotal.WithLabelValues("error")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ActiveSessions),
		"failed starts do not count as active")
}

func TestRecordSweep(t *testing.T) {
	m := newTestMetrics()

	m.RecordStart(true)
	m.RecordStart(true)
	m.RecordSweep(SweepCompleted)
	m.RecordSweep(SweepExpired)

	assert.Equal(t, float64(0), testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.SessionsSweptTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.SessionsSweptTotal.WithLabelValues("expired")))
}

func TestRecordSubmission(t *testing.T) {
	m := newTestMetrics()

	m.RecordSubmission(1, 812.4)
	m.RecordSubmission(1, 0) // missing rt_ms is not observed
	m.RecordSubmission(9, 100)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues("1")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(m.SubmissionsTotal.WithLabelValues("4")),
		"unknown stages fold into stage 4")
	assert.Equal(t, 1,
		testutil.CollectAndCount(m.ReactionTimeSeconds, "serpilot_experiment_reaction_time_seconds"))
}

func TestRecordPoolSize(t *testing.T) {
	m := newTestMetrics()

	m.RecordPoolSize("test-5AFC", 60)
	m.RecordPoolSize("test-5AFC", 59)

	assert.Equal(t, float64(59),
		testutil.ToFloat64(m.PoolFiles.WithLabelValues("test-5AFC")))
}
