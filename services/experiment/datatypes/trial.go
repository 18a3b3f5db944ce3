// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model of the experiment
// service: stimulus attributes, trials, stage metadata, and the HTTP
// request/response payloads.
package datatypes

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// Stimulus Attributes
// =============================================================================

// StimulusAttributes holds the semantic attributes decoded from a
// stimulus filename of the form <emo>_<sex><utt>[_rvb[<N>]].wav.
//
// A filename that does not match the grammar yields a degenerate record
// carrying only Raw; such entries are preserved so the catalog never
// silently hides files.
type StimulusAttributes struct {
	// Emotion is the lowercased emotion code (sad, fear, amu, rel, ...).
	Emotion string

	// Sex is the speaker sex, "F" or "M".
	Sex string

	// Utterance is the numeric utterance id as a string (137, 545, ...).
	Utterance string

	// ReverbLevel is "dry", "rvb", or "rvb<N>".
	ReverbLevel string

	// BaseID is "<emo>_<sex><utt>", the reverb-independent identity.
	BaseID string

	// Raw is set instead of the fields above when the filename did not
	// match the grammar.
	Raw string
}

// Parsed reports whether the filename matched the stimulus grammar.
func (a StimulusAttributes) Parsed() bool {
	return a.Raw == ""
}

// MarshalJSON emits the flat attribute object consumed by the run page
// and the audit log: {"emo","sex","utt","rvb_level","base_id"}, or
// {"raw": filename} for a degenerate record.
func (a StimulusAttributes) MarshalJSON() ([]byte, error) {
	if !a.Parsed() {
		return json.Marshal(map[string]string{"raw": a.Raw})
	}
	return json.Marshal(map[string]string{
		"emo":       a.Emotion,
		"sex":       a.Sex,
		"utt":       a.Utterance,
		"rvb_level": a.ReverbLevel,
		"base_id":   a.BaseID,
	})
}

// =============================================================================
// Blocks and Stages
// =============================================================================

// Block tags a trial with the experimental design it belongs to.
type Block string

const (
	// BlockDiscrimination is stage 1: 2I2AFC emotion discrimination.
	BlockDiscrimination Block = "2I2AFC_discrimination"

	// BlockDryRvb is stage 2: 2I2AFC dry vs reverberated.
	BlockDryRvb Block = "2I2AFC_dry_rvb"

	// Block5AFCPractice is stage 3: 5AFC practice.
	Block5AFCPractice Block = "5AFC_practice"

	// Block5AFCTest is stage 4: 5AFC test.
	Block5AFCTest Block = "5AFC_test"
)

// StageCount is the number of experimental stages.
const StageCount = 4

// Emotions5AFC lists the response choices offered in the two
// five-alternative forced-choice stages.
var Emotions5AFC = []string{"Amusement", "Anger", "Sadness", "Fear", "Surprise"}

// StageID maps a block tag to its 1-based stage id. Unknown tags fall
// through to stage 4, matching the test block's role as the final and
// default stage.
func (b Block) StageID() int {
	switch b {
	case BlockDiscrimination:
		return 1
	case BlockDryRvb:
		return 2
	case Block5AFCPractice:
		return 3
	default:
		return 4
	}
}

// StageLabel returns the participant-facing label of a stage id.
// Labels are the Korean stage names shown in the browser UI.
func StageLabel(stageID int) string {
	switch stageID {
	case 1:
		return "1단계"
	case 2:
		return "2단계"
	case 3:
		return "3단계"
	default:
		return "4단계"
	}
}

// =============================================================================
// Trial Metadata Variants
// =============================================================================

// DiscriminationMeta describes a stage-1 trial: which emotion of the
// fixed pair the question asks about.
type DiscriminationMeta struct {
	// Target is "sad" for the sad/fear pairs, "amu" for amu/rel.
	Target string `json:"target"`
}

// ReverbMeta describes a stage-2 trial: the probed emotion and which
// side carries the dry versus the reverberated rendition.
type ReverbMeta struct {
	Emotion string `json:"emo"`
	AIs     string `json:"A_is"` // "dry" or "rvb"
	BIs     string `json:"B_is"` // the opposite of AIs
}

// ForcedChoiceMeta describes a stage-3/4 trial: the parsed attributes
// of the single presented stimulus.
type ForcedChoiceMeta struct {
	Attributes StimulusAttributes
}

// TrialMeta is a tagged union over the three stage-specific metadata
// variants. Exactly one pointer is non-nil for a well-formed trial,
// so rendering and scoring code can switch exhaustively instead of
// probing optional keys.
type TrialMeta struct {
	Discrimination *DiscriminationMeta
	Reverb         *ReverbMeta
	ForcedChoice   *ForcedChoiceMeta
}

// MarshalJSON flattens the active variant into the wire/meta_json
// object shape the browser and the CSV log consume.
func (m TrialMeta) MarshalJSON() ([]byte, error) {
	switch {
	case m.Discrimination != nil:
		return json.Marshal(m.Discrimination)
	case m.Reverb != nil:
		return json.Marshal(m.Reverb)
	case m.ForcedChoice != nil:
		return json.Marshal(m.ForcedChoice.Attributes)
	default:
		return []byte("{}"), nil
	}
}

// Validate checks that exactly one variant is populated.
func (m TrialMeta) Validate() error {
	n := 0
	if m.Discrimination != nil {
		n++
	}
	if m.Reverb != nil {
		n++
	}
	if m.ForcedChoice != nil {
		n++
	}
	if n != 1 {
		return fmt.Errorf("trial meta must carry exactly one variant, has %d", n)
	}
	return nil
}

// =============================================================================
// Trial
// =============================================================================

// QuestionAuto is the sentinel question for the two-alternative stages:
// the run page derives the on-screen question from the trial metadata.
const QuestionAuto = "(auto)"

// Question5AFC is the fixed question of the forced-choice stages.
const Question5AFC = "Which of the following 5 emotion classes did the talker seem to be expressing?"

// Trial is one presented stimulus (or stimulus pair) plus the question
// to ask. Exactly one of {StimA,StimB} or {Stim} is populated,
// matching the block's paradigm.
type Trial struct {
	Block Block `json:"block"`

	// TrialIndex is the dense 1..N position within the trial's stage,
	// assigned after shuffling.
	TrialIndex int `json:"trial_index"`

	Question string `json:"question"`

	StimA string `json:"stim_A,omitempty"`
	StimB string `json:"stim_B,omitempty"`
	Stim  string `json:"stim,omitempty"`

	Meta TrialMeta `json:"meta"`
}

// IsPair reports whether the trial presents a two-stimulus comparison.
func (t Trial) IsPair() bool {
	return t.Stim == ""
}
