// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stimulus

import (
	"testing"

	"github.com/AleutianAI/serpilot/services/experiment/datatypes"
	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     datatypes.StimulusAttributes
	}{
		{
			name:     "dry stimulus",
			filename: "sad_M137.wav",
			want: datatypes.StimulusAttributes{
				Emotion: "sad", Sex: "M", Utterance: "137",
				ReverbLevel: "dry", BaseID: "sad_M137",
			},
		},
		{
			name:     "plain reverb suffix",
			filename: "rel_F545_rvb.wav",
			want: datatypes.StimulusAttributes{
				Emotion: "rel", Sex: "F", Utterance: "545",
				ReverbLevel: "rvb", BaseID: "rel_F545",
			},
		},
		{
			name:     "indexed reverb suffix",
			filename: "amu_F820_rvb1.wav",
			want: datatypes.StimulusAttributes{
				Emotion: "amu", Sex: "F", Utterance: "820",
				ReverbLevel: "rvb1", BaseID: "amu_F820",
			},
		},
		{
			name:     "emotion token is lowercased",
			filename: "Fear_M137.wav",
			want: datatypes.StimulusAttributes{
				Emotion: "fear", Sex: "M", Utterance: "137",
				ReverbLevel: "dry", BaseID: "fear_M137",
			},
		},
		{
			name:     "unmatched name degrades to raw",
			filename: "notes.txt",
			want:     datatypes.StimulusAttributes{Raw: "notes.txt"},
		},
		{
			name:     "lowercase sex token does not parse",
			filename: "sad_f137.wav",
			want:     datatypes.StimulusAttributes{Raw: "sad_f137.wav"},
		},
		{
			name:     "uppercase extension does not parse",
			filename: "sad_M137.WAV",
			want:     datatypes.StimulusAttributes{Raw: "sad_M137.WAV"},
		},
		{
			name:     "missing utterance id does not parse",
			filename: "sad_M.wav",
			want:     datatypes.StimulusAttributes{Raw: "sad_M.wav"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Parse(tt.filename))
		})
	}
}

func TestParse_IsTotal(t *testing.T) {
	// Never panics, never errors, always yields something.
	for _, fn := range []string{"", ".wav", "____.wav", "a_b_c_d_e", "sad_M137.wav.bak"} {
		got := Parse(fn)
		if got.Parsed() {
			t.Errorf("Parse(%q) unexpectedly parsed: %+v", fn, got)
		}
		assert.Equal(t, fn, got.Raw)
	}
}
