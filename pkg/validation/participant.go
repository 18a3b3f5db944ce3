// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical operations.
//
// This package contains validators for user-provided inputs that end up
// in file paths or log files. Using these validators prevents path
// traversal through participant identifiers and keeps log filenames
// portable across filesystems.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// participantPattern matches participant identifiers that are safe to
// embed in filenames without any substitution.
// Allows: letters, digits, underscore, hyphen. Max length: 50.
var participantPattern = regexp.MustCompile(`^[a-zA-Z0-9_\-]{1,50}$`)

// unsafeRune matches every character that must be replaced when a raw
// participant id is folded into a log filename.
var unsafeRune = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// maxParticipantLen bounds the filename contribution of a participant id.
const maxParticipantLen = 50

// anonParticipant is used when nothing usable remains after sanitization.
const anonParticipant = "anon"

// ValidateParticipantID validates a participant identifier for direct
// filesystem use.
//
// Valid identifiers:
//   - 1-50 characters
//   - Letters a-z, A-Z
//   - Digits 0-9
//   - Underscores and hyphens
//
// Returns an error if the identifier is invalid.
//
// Example:
//
//	if err := validation.ValidateParticipantID(pid); err != nil {
//	    pid = validation.SanitizeParticipantID(pid)
//	}
func ValidateParticipantID(pid string) error {
	if pid == "" {
		return fmt.Errorf("participant id cannot be empty")
	}
	if !participantPattern.MatchString(pid) {
		return fmt.Errorf("invalid participant id: %q (must be 1-50 alphanumeric chars, underscores, or hyphens)", pid)
	}
	return nil
}

// SanitizeParticipantID normalizes a raw participant identifier into a
// filename-safe token.
//
// Every character outside [a-zA-Z0-9_-] is replaced with an underscore,
// the result is truncated to 50 characters, and an empty result becomes
// "anon". The returned value always passes ValidateParticipantID.
//
// Use this on the untrusted form field before deriving a log path:
//
//	safe := validation.SanitizeParticipantID(req.ParticipantID)
//	logPath := filepath.Join(dataDir, safe+"_"+stamp+".csv")
func SanitizeParticipantID(pid string) string {
	trimmed := strings.TrimSpace(pid)
	if ValidateParticipantID(trimmed) == nil {
		return trimmed
	}
	cleaned := unsafeRune.ReplaceAllString(trimmed, "_")
	if len(cleaned) > maxParticipantLen {
		cleaned = cleaned[:maxParticipantLen]
	}
	if cleaned == "" {
		return anonParticipant
	}
	return cleaned
}
