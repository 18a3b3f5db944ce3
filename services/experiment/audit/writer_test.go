// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package audit

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestWriter_HeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "p01_20250101_120000.csv")
	w, err := NewWriter(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(Row{
		ParticipantID:    "p01",
		TimestampUnix:    1735689600,
		StageID:          1,
		StageLabel:       "1단계",
		StageTrialIndex:  1,
		StageTrialTotal:  4,
		Block:            "2I2AFC_discrimination",
		TrialGlobalIndex: 1,
		QuestionShown:    "which sounded sad?",
		StimA:            "sad_F137.wav",
		StimB:            "fear_F137.wav",
		MetaJSON:         `{"target":"sad"}`,
		Response:         "A",
		RtMs:             1234.5,
		PlayedJSON:       `{"A":2,"B":1}`,
	}))
	require.NoError(t, w.Append(Row{
		ParticipantID:    "p01",
		TimestampUnix:    1735689660,
		StageID:          4,
		StageLabel:       "4단계",
		StageTrialIndex:  7,
		StageTrialTotal:  60,
		Block:            "5AFC_test",
		TrialGlobalIndex: 29,
		QuestionShown:    "Which of the following 5 emotion classes did the talker seem to be expressing?",
		Stim:             "amu_M820.wav",
		MetaJSON:         `{"emo":"amu","sex":"M","utt":"820","rvb_level":"dry","base_id":"amu_M820"}`,
		Response:         "Amusement",
		RtMs:             980,
		PlayedJSON:       `{}`,
	}))

	records := readAll(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, Header, records[0])

	assert.Equal(t, []string{
		"p01", "1735689600", "1", "1단계", "1", "4",
		"2I2AFC_discrimination", "1", "which sounded sad?",
		"sad_F137.wav", "fear_F137.wav", "",
		`{"target":"sad"}`, "A", "1234.5", `{"A":2,"B":1}`,
	}, records[1])

	// Integral rt_ms renders without a decimal point.
	assert.Equal(t, "980", records[2][14])
	assert.Equal(t, "", records[2][9], "single-stimulus rows leave pair columns empty")
	assert.Equal(t, "amu_M820.wav", records[2][11])
}

func TestWriter_QuotesEmbeddedCommas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	w, err := NewWriter(path)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, w.Append(Row{
		ParticipantID: "p02",
		QuestionShown: `said "A, then B"`,
		MetaJSON:      `{"A_is":"dry","B_is":"rvb"}`,
	}))

	records := readAll(t, path)
	require.Len(t, records, 2)
	assert.Equal(t, `said "A, then B"`, records[1][8])
	assert.Equal(t, `{"A_is":"dry","B_is":"rvb"}`, records[1][12])
}

func TestWriter_CreateFailure(t *testing.T) {
	_, err := NewWriter(filepath.Join(t.TempDir(), "missing-dir", "log.csv"))
	require.Error(t, err)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "create", perr.Op)
}

func TestWriter_AppendAfterClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.csv")
	w, err := NewWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close is idempotent")

	err = w.Append(Row{ParticipantID: "p03"})
	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "append", perr.Op)

	// The closed file kept its header only.
	require.Len(t, readAll(t, path), 1)
}
