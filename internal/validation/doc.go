// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package validation checks request bodies and identifier shapes at
// the HTTP boundary, before any store or disk access.
//
// Struct validation runs through go-playground/validator with two
// Courbe-specific tags: "identifier" (URL-safe resource-ID shape) and
// "notblank" (rejects whitespace-only strings). Failures translate to
// the French messages placed directly in {"error": "..."} bodies:
//
//	type saveJSONRequest struct {
//	    Name    string          `json:"name" validate:"required,notblank,max=100"`
//	    Content json.RawMessage `json:"content" validate:"required,min=1"`
//	}
//
//	if err := validation.ValidateStruct(&req); err != nil {
//	    respondError(w, r, err) // 400, message from the failed tag
//	}
//
// The standalone helpers (ValidIdentifier, ValidUserID,
// ValidSessionToken, SafeFilename, FileExtension) cover values that
// never pass through a struct: path parameters, bearer tokens and
// upload filenames. File, task, session and source IDs must match
// [A-Za-z0-9_-]{1,64}; user IDs are UUIDs; session tokens are 64
// lowercase hex characters. A traversal shape such as
// "../../etc/passwd" fails closed with a 400 before any lookup.
package validation
