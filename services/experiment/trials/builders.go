// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package trials constructs the per-stage trial lists of one session.
//
// Every builder is pure given the catalog and a random source, and
// fails fast with a typed configuration error instead of producing a
// short list. Randomness is injected so tests can fix the seed; the
// service seeds a fresh source per session start.
package trials

import (
	"fmt"
	"math/rand"

	"github.com/AleutianAI/serpilot/services/experiment/datatypes"
	"github.com/AleutianAI/serpilot/services/experiment/stimulus"
)

// Per-stage trial counts. The full session sequence is their sum, 82.
const (
	DiscriminationCount = 4
	DryRvbCount         = 8
	Practice5AFCCount   = 10
	Test5AFCCount       = 60

	// TotalCount is the fixed length of a full session sequence.
	TotalCount = DiscriminationCount + DryRvbCount + Practice5AFCCount + Test5AFCCount
)

// discriminationSpecs is the fixed stage-1 design: two sad/fear pairs
// (one per speaker sex, utterance 137) and two amu/rel pairs
// (utterance 545). Target is the emotion the question asks about; the
// A/B sides are fixed by the design, not randomized.
var discriminationSpecs = []struct {
	emoA, sexA, uttA string
	emoB, sexB, uttB string
	target           string
}{
	{"sad", "F", "137", "fear", "F", "137", "sad"},
	{"sad", "M", "137", "fear", "M", "137", "sad"},
	{"amu", "F", "545", "rel", "F", "545", "amu"},
	{"amu", "M", "545", "rel", "M", "545", "amu"},
}

// dryRvbSpecs is the fixed stage-2 design: four emotions crossed with
// both speaker sexes, each requiring a dry and a plain-rvb rendition.
var dryRvbSpecs = []struct {
	emo, sex, utt string
}{
	{"sad", "F", "137"}, {"sad", "M", "137"},
	{"fear", "F", "137"}, {"fear", "M", "137"},
	{"amu", "F", "545"}, {"amu", "M", "545"},
	{"rel", "F", "545"}, {"rel", "M", "545"},
}

// BuildDiscrimination assembles the four stage-1 discrimination trials.
//
// # Description
//
// For each fixed pair both dry files are located via the catalog's
// exact-attribute lookup. Sides are fixed per the design; only the
// order of the four trials is shuffled, after which trial indices are
// reassigned densely 1..4.
//
// # Inputs
//
//   - cat: the session's stimulus catalog.
//   - rng: random source for the order shuffle.
//
// # Outputs
//
//   - []datatypes.Trial: exactly four trials.
//   - error: *MissingStimulusError naming the pair if either file is absent.
func BuildDiscrimination(cat *stimulus.Catalog, rng *rand.Rand) ([]datatypes.Trial, error) {
	out := make([]datatypes.Trial, 0, DiscriminationCount)
	for _, spec := range discriminationSpecs {
		a, okA := cat.FindOne(stimulus.RoleDiscrimination, spec.emoA, spec.sexA, spec.uttA, stimulus.ReverbDry)
		b, okB := cat.FindOne(stimulus.RoleDiscrimination, spec.emoB, spec.sexB, spec.uttB, stimulus.ReverbDry)
		if !okA || !okB {
			return nil, &MissingStimulusError{
				Stage: 1,
				Wanted: fmt.Sprintf("%s_%s%s or %s_%s%s (dry)",
					spec.emoA, spec.sexA, spec.uttA,
					spec.emoB, spec.sexB, spec.uttB),
			}
		}
		out = append(out, datatypes.Trial{
			Block:    datatypes.BlockDiscrimination,
			Question: datatypes.QuestionAuto,
			StimA:    a,
			StimB:    b,
			Meta: datatypes.TrialMeta{
				Discrimination: &datatypes.DiscriminationMeta{Target: spec.target},
			},
		})
	}

	shuffleAndReindex(out, rng)
	return out, nil
}

// BuildDryRvb assembles the eight stage-2 dry-vs-reverberated trials.
//
// # Description
//
// For each fixed (emotion, sex, utterance) combination both the dry and
// the plain "rvb" rendition must exist. Which side carries the dry
// version is an independent unbiased draw per trial, recorded in the
// trial metadata so the response can be judged later. Trial order is
// shuffled after construction.
//
// # Outputs
//
//   - []datatypes.Trial: exactly eight trials.
//   - error: *MissingStimulusError naming the combination if a
//     rendition is absent.
func BuildDryRvb(cat *stimulus.Catalog, rng *rand.Rand) ([]datatypes.Trial, error) {
	out := make([]datatypes.Trial, 0, DryRvbCount)
	for _, spec := range dryRvbSpecs {
		dry, okDry := cat.FindOne(stimulus.RoleDiscrimination, spec.emo, spec.sex, spec.utt, stimulus.ReverbDry)
		rvb, okRvb := cat.FindOne(stimulus.RoleDiscrimination, spec.emo, spec.sex, spec.utt, stimulus.ReverbPlain)
		if !okDry || !okRvb {
			return nil, &MissingStimulusError{
				Stage:  2,
				Wanted: fmt.Sprintf("%s_%s%s dry/rvb", spec.emo, spec.sex, spec.utt),
			}
		}

		stimA, stimB := dry, rvb
		aIs, bIs := stimulus.ReverbDry, stimulus.ReverbPlain
		if rng.Intn(2) == 1 {
			stimA, stimB = rvb, dry
			aIs, bIs = stimulus.ReverbPlain, stimulus.ReverbDry
		}

		out = append(out, datatypes.Trial{
			Block:    datatypes.BlockDryRvb,
			Question: datatypes.QuestionAuto,
			StimA:    stimA,
			StimB:    stimB,
			Meta: datatypes.TrialMeta{
				Reverb: &datatypes.ReverbMeta{Emotion: spec.emo, AIs: aIs, BIs: bIs},
			},
		})
	}

	shuffleAndReindex(out, rng)
	return out, nil
}

// BuildPractice5AFC assembles the ten stage-3 forced-choice practice
// trials: the practice pool is shuffled and the first ten files are
// taken, indexed in shuffle order.
func BuildPractice5AFC(cat *stimulus.Catalog, rng *rand.Rand) ([]datatypes.Trial, error) {
	return buildForcedChoice(cat, rng, stimulus.RolePractice5AFC,
		datatypes.Block5AFCPractice, 3, Practice5AFCCount)
}

// BuildTest5AFC assembles the sixty stage-4 forced-choice test trials:
// the test pool is shuffled and the first sixty files are taken with no
// balancing across emotion or sex.
func BuildTest5AFC(cat *stimulus.Catalog, rng *rand.Rand) ([]datatypes.Trial, error) {
	return buildForcedChoice(cat, rng, stimulus.RoleTest5AFC,
		datatypes.Block5AFCTest, 4, Test5AFCCount)
}

// buildForcedChoice is the shared sample-without-replacement builder of
// the two 5AFC stages.
func buildForcedChoice(cat *stimulus.Catalog, rng *rand.Rand, role stimulus.Role,
	block datatypes.Block, stage, want int) ([]datatypes.Trial, error) {

	pool := cat.List(role)
	if len(pool) < want {
		return nil, &InsufficientPoolError{
			Stage:    stage,
			Role:     role,
			Required: want,
			Have:     len(pool),
		}
	}

	// Shuffle a copy; the catalog listing is immutable.
	shuffled := make([]string, len(pool))
	copy(shuffled, pool)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	index := cat.Index(role)
	out := make([]datatypes.Trial, 0, want)
	for i, name := range shuffled[:want] {
		out = append(out, datatypes.Trial{
			Block:      block,
			TrialIndex: i + 1,
			Question:   datatypes.Question5AFC,
			Stim:       name,
			Meta: datatypes.TrialMeta{
				ForcedChoice: &datatypes.ForcedChoiceMeta{Attributes: index[name]},
			},
		})
	}
	return out, nil
}

// BuildAll runs the four builders in stage order and concatenates their
// output into the session sequence.
//
// # Outputs
//
//   - []datatypes.Trial: the 82-trial sequence, stages 1..4 in order.
//   - map[int]int: trial count per stage id.
//   - error: the first builder failure; nothing partial is returned.
func BuildAll(cat *stimulus.Catalog, rng *rand.Rand) ([]datatypes.Trial, map[int]int, error) {
	stage1, err := BuildDiscrimination(cat, rng)
	if err != nil {
		return nil, nil, err
	}
	stage2, err := BuildDryRvb(cat, rng)
	if err != nil {
		return nil, nil, err
	}
	stage3, err := BuildPractice5AFC(cat, rng)
	if err != nil {
		return nil, nil, err
	}
	stage4, err := BuildTest5AFC(cat, rng)
	if err != nil {
		return nil, nil, err
	}

	all := make([]datatypes.Trial, 0, TotalCount)
	all = append(all, stage1...)
	all = append(all, stage2...)
	all = append(all, stage3...)
	all = append(all, stage4...)

	totals := map[int]int{
		1: len(stage1),
		2: len(stage2),
		3: len(stage3),
		4: len(stage4),
	}
	return all, totals, nil
}

// PoolMinimums returns the smallest viable pool size per directory
// role, used by the stimulus watcher to warn before a start failure.
// The discrimination directory must hold the 8 dry and 8 plain-rvb
// renditions the fixed designs name.
func PoolMinimums() map[stimulus.Role]int {
	return map[stimulus.Role]int{
		stimulus.RoleDiscrimination: 2 * len(dryRvbSpecs),
		stimulus.RolePractice5AFC:   Practice5AFCCount,
		stimulus.RoleTest5AFC:       Test5AFCCount,
	}
}

// shuffleAndReindex applies an unconstrained uniform permutation and
// reassigns TrialIndex densely from 1.
func shuffleAndReindex(ts []datatypes.Trial, rng *rand.Rand) {
	rng.Shuffle(len(ts), func(i, j int) {
		ts[i], ts[j] = ts[j], ts[i]
	})
	for i := range ts {
		ts[i].TrialIndex = i + 1
	}
}
