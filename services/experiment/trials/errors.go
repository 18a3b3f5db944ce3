// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package trials

import (
	"errors"
	"fmt"

	"github.com/AleutianAI/serpilot/services/experiment/stimulus"
)

// ConfigurationError marks errors caused by a missing or insufficient
// stimulus pool. Any such error aborts session creation wholesale; no
// partial trial sequence is ever produced.
type ConfigurationError interface {
	error
	configurationError()
}

// MissingStimulusError reports that a specific required stimulus file
// could not be located in the catalog.
type MissingStimulusError struct {
	// Stage is the 1-based stage whose builder failed.
	Stage int

	// Wanted names the missing combination(s), e.g.
	// "sad_F137 or fear_F137 (dry)".
	Wanted string
}

func (e *MissingStimulusError) Error() string {
	return fmt.Sprintf("stage %d: missing stimulus file(s): %s", e.Stage, e.Wanted)
}

func (e *MissingStimulusError) configurationError() {}

// InsufficientPoolError reports that a directory role holds fewer files
// than its stage requires.
type InsufficientPoolError struct {
	Stage    int
	Role     stimulus.Role
	Required int
	Have     int
}

func (e *InsufficientPoolError) Error() string {
	return fmt.Sprintf("stage %d: %s pool has %d wav files, need %d",
		e.Stage, e.Role, e.Have, e.Required)
}

func (e *InsufficientPoolError) configurationError() {}

// IsConfigurationError reports whether err is a stimulus-pool
// configuration failure.
func IsConfigurationError(err error) bool {
	var ce ConfigurationError
	return errors.As(err, &ce)
}
