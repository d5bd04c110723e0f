// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package sandbox

import (
	"errors"
	"fmt"

	"github.com/zeebo/errs"
)

// Error is the class for internal runner failures (spawn, protocol,
// prlimit). User-facing failures travel as sentinels or inside an
// ExecutionResult, never as raw class errors.
var Error = errs.Class("sandbox")

var (
	// ErrUnsafeCode is returned when the static stage rejects the
	// submitted source. The validator's messages carry the detail.
	ErrUnsafeCode = errors.New("Code non autorisé")

	// ErrRunnerUnavailable is returned while the spawn breaker is open.
	ErrRunnerUnavailable = errors.New("Environnement d'exécution indisponible")

	// ErrEmptyCode rejects a run request without code.
	ErrEmptyCode = errors.New("Code requis")
)

// BlockError reports an invalid block in a block-script definition.
type BlockError struct {
	Index  int
	Type   string
	Reason string
}

func (e *BlockError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("Bloc %d: %s", e.Index+1, e.Reason)
	}
	return fmt.Sprintf("Bloc %d (%s): %s", e.Index+1, e.Type, e.Reason)
}
