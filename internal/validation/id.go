// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package validation

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidIdentifier reports whether s is a well-formed resource ID:
// 1-64 characters from [A-Za-z0-9_-]. File, task, analysis-session and
// source IDs all use this shape. Traversal fragments ("..", "/") can
// never match, so callers may reject bad IDs before any disk or store
// lookup.
func ValidIdentifier(s string) bool {
	return identifierPattern.MatchString(s)
}

// ValidUserID reports whether s is a canonical UUID string, the only
// shape user IDs take.
func ValidUserID(s string) bool {
	return uuid.Validate(s) == nil
}

// ValidSessionToken reports whether s has the shape of a session token:
// exactly 64 lowercase hex characters. The check runs before the session
// store is consulted so malformed bearer values never reach SQL.
func ValidSessionToken(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// SafeFilename reports whether name can be used as a single path element
// under a managed directory. It rejects empty names, names longer than
// 255 bytes, the "." and ".." elements, and anything containing a path
// separator or NUL byte.
func SafeFilename(name string) bool {
	if name == "" || len(name) > 255 {
		return false
	}
	if name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	return true
}

// FileExtension returns the lower-cased final extension of name,
// including the leading dot ("report.MF4" -> ".mf4"). Names without an
// extension return "".
func FileExtension(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return ""
	}
	return strings.ToLower(name[idx:])
}
