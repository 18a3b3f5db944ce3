// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ttl

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/serpilot/pkg/logging"
	"github.com/AleutianAI/serpilot/services/experiment/audit"
	"github.com/AleutianAI/serpilot/services/experiment/datatypes"
	"github.com/AleutianAI/serpilot/services/experiment/observability"
	"github.com/AleutianAI/serpilot/services/experiment/session"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// recordingArchive captures archived summaries in memory.
type recordingArchive struct {
	mu        sync.Mutex
	summaries []datatypes.SessionSummary
	err       error
}

func (r *recordingArchive) Put(s datatypes.SessionSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.summaries = append(r.summaries, s)
	return nil
}

func (r *recordingArchive) ids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.summaries))
	for _, s := range r.summaries {
		out = append(out, s.SessionID)
	}
	return out
}

func newSessionWithTrials(t *testing.T, id string, n int, started time.Time) *session.Session {
	t.Helper()
	w, err := audit.NewWriter(filepath.Join(t.TempDir(), id+".csv"))
	require.NoError(t, err)

	seq := make([]datatypes.Trial, n)
	for i := range seq {
		seq[i] = datatypes.Trial{
			Block: datatypes.Block5AFCTest, TrialIndex: i + 1,
			Stim: "sad_M700.wav",
			Meta: datatypes.TrialMeta{ForcedChoice: &datatypes.ForcedChoiceMeta{}},
		}
	}
	return session.New(id, "p01", seq, map[int]int{4: n}, w, started)
}

func newTestSweeper(t *testing.T, store session.Store, arch Archiver) (*Sweeper, *observability.ExperimentMetrics) {
	t.Helper()
	metrics := observability.NewExperimentMetrics(prometheus.NewRegistry())
	log := logging.New(logging.Config{Quiet: true})
	sw := NewSweeper(store, arch, metrics, log, 2*time.Hour).
		WithClock(func() time.Time { return t0 })
	return sw, metrics
}

func TestSweepOnce_RetiresCompletedAndExpired(t *testing.T) {
	store := session.NewMemoryStore()
	arch := &recordingArchive{}
	sw, metrics := newTestSweeper(t, store, arch)

	// Completed: answered its single trial.
	done := newSessionWithTrials(t, "sid-done", 1, t0.Add(-time.Hour))
	require.NoError(t, done.Submit(datatypes.SubmitRequest{Response: "Fear"}, t0.Add(-30*time.Minute)))
	store.Put(done)

	// Expired: untouched for longer than the TTL.
	stale := newSessionWithTrials(t, "sid-stale", 5, t0.Add(-3*time.Hour))
	store.Put(stale)

	// Fresh: started recently, still mid-run.
	fresh := newSessionWithTrials(t, "sid-fresh", 5, t0.Add(-10*time.Minute))
	store.Put(fresh)
	defer fresh.Close()

	res := sw.SweepOnce()
	assert.Equal(t, SweepResult{Examined: 3, Completed: 1, Expired: 1}, res)

	assert.Equal(t, 1, store.Len())
	_, err := store.Get("sid-fresh")
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"sid-done", "sid-stale"}, arch.ids())

	// Retired sessions have closed audit writers.
	require.Error(t, stale.Submit(datatypes.SubmitRequest{Response: "Fear"}, t0))

	assert.Equal(t, float64(1),
		testutil.ToFloat64(metrics.SessionsSweptTotal.WithLabelValues("completed")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(metrics.SessionsSweptTotal.WithLabelValues("expired")))
}

func TestSweepOnce_ActivityKeepsSessionAlive(t *testing.T) {
	store := session.NewMemoryStore()
	sw, _ := newTestSweeper(t, store, &recordingArchive{})

	// Started before the TTL horizon but answered recently.
	s := newSessionWithTrials(t, "sid-1", 5, t0.Add(-4*time.Hour))
	require.NoError(t, s.Submit(datatypes.SubmitRequest{Response: "Fear"}, t0.Add(-5*time.Minute)))
	store.Put(s)
	defer s.Close()

	res := sw.SweepOnce()
	assert.Equal(t, SweepResult{Examined: 1}, res)
	assert.Equal(t, 1, store.Len())
}

func TestSweepOnce_ArchiveFailureStillRemoves(t *testing.T) {
	store := session.NewMemoryStore()
	arch := &recordingArchive{err: errors.New("disk full")}
	sw, _ := newTestSweeper(t, store, arch)

	stale := newSessionWithTrials(t, "sid-1", 5, t0.Add(-3*time.Hour))
	store.Put(stale)

	res := sw.SweepOnce()
	assert.Equal(t, 1, res.Expired)
	assert.Equal(t, 1, res.Errors)
	assert.Zero(t, store.Len(), "removed even when archiving fails")
}

func TestRetire_AdminReason(t *testing.T) {
	store := session.NewMemoryStore()
	arch := &recordingArchive{}
	sw, metrics := newTestSweeper(t, store, arch)

	s := newSessionWithTrials(t, "sid-1", 5, t0)
	store.Put(s)

	assert.True(t, sw.Retire(s, observability.SweepAdmin))
	assert.Zero(t, store.Len())
	assert.Equal(t, []string{"sid-1"}, arch.ids())
	assert.Equal(t, float64(1),
		testutil.ToFloat64(metrics.SessionsSweptTotal.WithLabelValues("admin")))
}

func TestScheduler_StartStop(t *testing.T) {
	store := session.NewMemoryStore()
	sw, _ := newTestSweeper(t, store, &recordingArchive{})
	log := logging.New(logging.Config{Quiet: true})

	stale := newSessionWithTrials(t, "sid-1", 5, t0.Add(-3*time.Hour))
	store.Put(stale)

	sched := NewScheduler(sw, time.Hour, log)
	require.NoError(t, sched.Start(context.Background()))
	assert.Error(t, sched.Start(context.Background()), "double start rejected")

	// The initial sweep runs on start; poll for it.
	deadline := time.Now().Add(2 * time.Second)
	for store.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatal("initial sweep never ran")
		}
		time.Sleep(10 * time.Millisecond)
	}

	sched.Stop()
	sched.Stop() // idempotent

	// Restart works after a stop.
	require.NoError(t, sched.Start(context.Background()))
	sched.Stop()
}

func TestScheduler_RunNow(t *testing.T) {
	store := session.NewMemoryStore()
	sw, _ := newTestSweeper(t, store, &recordingArchive{})
	sched := NewScheduler(sw, time.Hour, logging.New(logging.Config{Quiet: true}))

	stale := newSessionWithTrials(t, "sid-1", 5, t0.Add(-3*time.Hour))
	store.Put(stale)

	res := sched.RunNow()
	assert.Equal(t, 1, res.Expired)
	assert.Zero(t, store.Len())
}
