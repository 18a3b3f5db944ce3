// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit persists one CSV file of responses per session.
//
// The file is created with its header when the session starts and
// receives exactly one row per accepted submission. Each row is
// encoded into an in-memory buffer first so the file sees a single
// write call per append; a half-encoded row never reaches disk.
package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"
)

// Header is the fixed column schema of every session log. Consumers
// key on these names; the order never changes.
var Header = []string{
	"participant_id",
	"timestamp_unix",
	"stage_id",
	"stage_label",
	"stage_trial_index",
	"stage_trial_total",
	"block",
	"trial_global_index",
	"question_shown",
	"stim_A",
	"stim_B",
	"stim",
	"meta_json",
	"response",
	"rt_ms",
	"played_json",
}

// Row is one fully-resolved audit record. The caller computes the
// stage-relative fields; the writer only encodes.
type Row struct {
	ParticipantID    string
	TimestampUnix    int64
	StageID          int
	StageLabel       string
	StageTrialIndex  int
	StageTrialTotal  int
	Block            string
	TrialGlobalIndex int
	QuestionShown    string
	StimA            string
	StimB            string
	Stim             string
	MetaJSON         string
	Response         string
	RtMs             float64
	PlayedJSON       string
}

func (r Row) record() []string {
	return []string{
		r.ParticipantID,
		strconv.FormatInt(r.TimestampUnix, 10),
		strconv.Itoa(r.StageID),
		r.StageLabel,
		strconv.Itoa(r.StageTrialIndex),
		strconv.Itoa(r.StageTrialTotal),
		r.Block,
		strconv.Itoa(r.TrialGlobalIndex),
		r.QuestionShown,
		r.StimA,
		r.StimB,
		r.Stim,
		r.MetaJSON,
		r.Response,
		strconv.FormatFloat(r.RtMs, 'f', -1, 64),
		r.PlayedJSON,
	}
}

// PersistenceError wraps any filesystem failure of the audit log. A
// submission whose row cannot be persisted must not advance the
// session cursor, so callers branch on this type.
type PersistenceError struct {
	Path string
	Op   string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("audit log %s: %s: %v", e.Path, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Writer appends rows to one session's log file. Safe for concurrent
// use; appends are serialized.
type Writer struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// NewWriter creates the log file at path, truncating any previous
// file there, and writes the header.
func NewWriter(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return nil, &PersistenceError{Path: path, Op: "create", Err: err}
	}

	w := &Writer{path: path, f: f}
	if err := w.writeRecord(Header); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return w, nil
}

// Path returns the location of the underlying log file.
func (w *Writer) Path() string { return w.path }

// Append encodes row and appends it as one write. On error the row is
// not partially written and the file remains usable.
func (w *Writer) Append(row Row) error {
	return w.writeRecord(row.record())
}

func (w *Writer) writeRecord(record []string) error {
	var buf bytes.Buffer
	enc := csv.NewWriter(&buf)
	if err := enc.Write(record); err != nil {
		return &PersistenceError{Path: w.path, Op: "encode", Err: err}
	}
	enc.Flush()
	if err := enc.Error(); err != nil {
		return &PersistenceError{Path: w.path, Op: "encode", Err: err}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return &PersistenceError{Path: w.path, Op: "append", Err: os.ErrClosed}
	}
	if _, err := w.f.Write(buf.Bytes()); err != nil {
		return &PersistenceError{Path: w.path, Op: "append", Err: err}
	}
	return nil
}

// Close flushes and closes the log file. Further appends fail; Close
// is idempotent.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	err := w.f.Close()
	w.f = nil
	if err != nil {
		return &PersistenceError{Path: w.path, Op: "close", Err: err}
	}
	return nil
}
