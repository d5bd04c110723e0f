// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package storage

import (
	"errors"
	"fmt"

	"github.com/zeebo/errs"
)

// Error is the class for internal storage failures. Sentinels below
// carry user-facing messages; anything wrapped in Error is a server
// fault and must never reach a response body verbatim.
var Error = errs.Class("storage")

var (
	// ErrInvalidCategory rejects an unknown category name.
	ErrInvalidCategory = errors.New("Catégorie invalide")

	// ErrFileNotFound covers both a missing row and a row the caller
	// may not see. The two cases are indistinguishable on purpose.
	ErrFileNotFound = errors.New("Fichier non trouvé")

	// ErrFileMissing means the row exists but its backing file is gone.
	ErrFileMissing = errors.New("Fichier introuvable sur le disque")

	// ErrDefaultReadOnly rejects deletion of the demo file set.
	ErrDefaultReadOnly = errors.New("Impossible de supprimer un fichier de démonstration")

	// ErrDefaultImmutable rejects content rewrites of the demo file set.
	ErrDefaultImmutable = errors.New("Impossible de modifier un fichier de démonstration")

	// ErrNotOwner rejects operations on another account's file.
	ErrNotOwner = errors.New("Accès non autorisé")

	// ErrInvalidPath rejects any resolved path that escapes its
	// category root.
	ErrInvalidPath = errors.New("invalid path")
)

// UploadError rejects an upload before any byte is written. Reason is
// user-facing.
type UploadError struct {
	Reason string
}

func (e *UploadError) Error() string { return e.Reason }

// QuotaError rejects an upload that would overrun the account's byte
// budget.
type QuotaError struct {
	AvailableBytes int64
}

func (e *QuotaError) Error() string {
	available := e.AvailableBytes
	if available < 0 {
		available = 0
	}
	return fmt.Sprintf("Quota dépassé. Disponible: %s", FormatSize(available))
}
