// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package artifact

import (
	"errors"
	"fmt"

	"github.com/zeebo/errs"
)

// Error is the class for internal artifact failures. Sentinels and
// SchemaError carry user-facing messages; anything wrapped in Error
// stays server-side.
var Error = errs.Class("artifact")

var (
	// ErrLayoutNotFound covers unknown layout ids and files of another
	// category presented as layouts.
	ErrLayoutNotFound = errors.New("Layout introuvable")

	// ErrScriptNotFound covers unknown script ids and analyses files
	// that are not block scripts.
	ErrScriptNotFound = errors.New("Script non trouvé")

	// ErrReportNotFound covers unknown report ids and analyses files
	// that are not HTML reports.
	ErrReportNotFound = errors.New("Rapport introuvable")
)

// SchemaError rejects an artifact body that violates its schema. The
// message is specific enough for the user to fix the document.
type SchemaError struct {
	Msg string
}

func (e *SchemaError) Error() string { return e.Msg }

func schemaErrorf(format string, args ...interface{}) error {
	return &SchemaError{Msg: fmt.Sprintf(format, args...)}
}
