// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package stimulus decodes stimulus filenames and indexes the stimulus
// directories into a per-session catalog.
package stimulus

import (
	"regexp"
	"strings"

	"github.com/AleutianAI/serpilot/services/experiment/datatypes"
)

// filenamePattern is the stimulus filename grammar:
//
//	<emotion>_<sex><utteranceId>[_rvb[<digits>]].wav
//
// e.g. amu_F137.wav, fear_M137.wav, rel_F545_rvb.wav, amu_F820_rvb1.wav.
// Group 4 captures the whole optional reverb suffix so that a bare
// "_rvb" can be told apart from no suffix at all.
var filenamePattern = regexp.MustCompile(`^([A-Za-z]+)_([MF])(\d+)(_rvb(\d*))?\.wav$`)

// ReverbDry is the reverb level of a stimulus with no reverb suffix.
const ReverbDry = "dry"

// ReverbPlain is the reverb level of a "_rvb" suffix without an index.
const ReverbPlain = "rvb"

// Parse decodes a stimulus filename into its attributes.
//
// # Description
//
// Pure and total: a filename that does not match the grammar yields a
// degenerate record carrying only the raw name, never an error. The
// emotion token is lowercased; reverb encoding is:
//
//	no suffix   -> "dry"
//	"_rvb"      -> "rvb"
//	"_rvb<N>"   -> "rvb<N>"
//
// # Inputs
//
//   - filename: bare filename, no directory component.
//
// # Outputs
//
//   - datatypes.StimulusAttributes: parsed or degenerate attributes.
func Parse(filename string) datatypes.StimulusAttributes {
	m := filenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return datatypes.StimulusAttributes{Raw: filename}
	}

	emo := strings.ToLower(m[1])
	sex := m[2]
	utt := m[3]

	rvbLevel := ReverbDry
	if m[4] != "" {
		rvbLevel = ReverbPlain + m[5]
	}

	return datatypes.StimulusAttributes{
		Emotion:     emo,
		Sex:         sex,
		Utterance:   utt,
		ReverbLevel: rvbLevel,
		BaseID:      emo + "_" + sex + utt,
	}
}
