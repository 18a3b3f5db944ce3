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
	"os"
	"sort"
	"strings"

	"github.com/AleutianAI/serpilot/services/experiment/datatypes"
)

// Role names one of the three fixed stimulus directory roles.
type Role string

const (
	// RoleDiscrimination holds the dry and _rvb variants used by the
	// two 2I2AFC stages.
	RoleDiscrimination Role = "discrimination-practice"

	// RolePractice5AFC holds the 5AFC practice pool.
	RolePractice5AFC Role = "practice-5AFC"

	// RoleTest5AFC holds the 5AFC test pool.
	RoleTest5AFC Role = "test-5AFC"
)

// Roles lists every directory role in fixed order.
var Roles = []Role{RoleDiscrimination, RolePractice5AFC, RoleTest5AFC}

// wavExt is the accepted audio extension (matched case-insensitively).
const wavExt = ".wav"

// Catalog is the immutable, per-session index of available stimulus
// files. It is built once from the filesystem at session start and
// never mutated afterwards, so concurrent reads need no locking.
type Catalog struct {
	files  map[Role][]string
	attrs  map[Role]map[string]datatypes.StimulusAttributes
	lookup map[Role]map[string]string // composite attribute key -> filename
}

// ListWavs returns the audio filenames in a directory, lexicographically
// sorted for reproducible lookups. An absent directory yields an empty
// listing, not an error; any other read failure is surfaced.
func ListWavs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(strings.ToLower(e.Name()), wavExt) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// BuildCatalog lists and indexes every role directory.
//
// # Description
//
// For each role the directory is listed (ListWavs) and each filename is
// parsed (Parse). Degenerate records are kept in the listing and the
// attribute index; only fully parsed files enter the composite lookup
// used by FindOne. When two files collapse to the same attribute key
// the lexicographically first one wins, matching a first-match scan
// over the sorted listing.
//
// # Inputs
//
//   - dirs: mapping from role to its directory path.
//
// # Outputs
//
//   - *Catalog: immutable catalog ready for the trial builders.
//   - error: Non-nil on a directory read failure other than absence.
func BuildCatalog(dirs map[Role]string) (*Catalog, error) {
	c := &Catalog{
		files:  make(map[Role][]string, len(Roles)),
		attrs:  make(map[Role]map[string]datatypes.StimulusAttributes, len(Roles)),
		lookup: make(map[Role]map[string]string, len(Roles)),
	}

	for _, role := range Roles {
		names, err := ListWavs(dirs[role])
		if err != nil {
			return nil, err
		}
		attrs := make(map[string]datatypes.StimulusAttributes, len(names))
		lookup := make(map[string]string, len(names))
		for _, name := range names {
			a := Parse(name)
			attrs[name] = a
			if !a.Parsed() {
				continue
			}
			key := attrKey(a.Emotion, a.Sex, a.Utterance, a.ReverbLevel)
			if _, taken := lookup[key]; !taken {
				lookup[key] = name
			}
		}
		c.files[role] = names
		c.attrs[role] = attrs
		c.lookup[role] = lookup
	}
	return c, nil
}

// List returns the sorted filenames of one role. The returned slice is
// shared; callers must not modify it.
func (c *Catalog) List(role Role) []string {
	return c.files[role]
}

// Index returns the filename -> attributes mapping of one role.
func (c *Catalog) Index(role Role) map[string]datatypes.StimulusAttributes {
	return c.attrs[role]
}

// FindOne returns the single filename matching all four attributes
// exactly, or "" and false when no such file exists.
func (c *Catalog) FindOne(role Role, emotion, sex, utterance, reverbLevel string) (string, bool) {
	name, ok := c.lookup[role][attrKey(emotion, sex, utterance, reverbLevel)]
	return name, ok
}

func attrKey(emotion, sex, utterance, reverbLevel string) string {
	return emotion + "|" + sex + "|" + utterance + "|" + reverbLevel
}
