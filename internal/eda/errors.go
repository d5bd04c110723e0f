// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package eda

import (
	"errors"
	"fmt"

	"github.com/zeebo/errs"
)

// Error is the class for internal session-manager failures. Sentinels
// below carry user-facing messages; anything wrapped in Error stays
// server-side.
var Error = errs.Class("eda")

var (
	// ErrSessionNotFound covers unknown, closed and evicted sessions
	// alike.
	ErrSessionNotFound = errors.New("Session introuvable")

	// ErrNotOwner rejects access to another account's session.
	ErrNotOwner = errors.New("Accès non autorisé")

	// ErrOpenFailed is returned when the recording behind a session
	// cannot be opened or holds no usable channel.
	ErrOpenFailed = errors.New("Impossible d'ouvrir le fichier")

	// ErrNoSignals means the catalog is empty once the deny-list is
	// applied.
	ErrNoSignals = errors.New("Aucun signal valide trouvé")

	// ErrInvalidIndex rejects an out-of-range signal index.
	ErrInvalidIndex = errors.New("Index invalide")

	// ErrSignalLoad is returned when one channel's samples cannot be
	// decoded.
	ErrSignalLoad = errors.New("Impossible de charger le signal")

	// ErrAllNonFinite is returned when a channel has no finite sample
	// to interpolate from.
	ErrAllNonFinite = errors.New("Le signal ne contient que des valeurs invalides")

	// ErrNoDataInRange means no requested signal has a sample inside
	// the view window.
	ErrNoDataInRange = errors.New("No data in range")

	// ErrNameRequired rejects a computed variable without a name.
	ErrNameRequired = errors.New("Le nom est requis")

	// ErrNameShape rejects a computed-variable name that is not a
	// letter followed by letters, digits or underscores.
	ErrNameShape = errors.New("Le nom doit commencer par une lettre et ne contenir que des lettres, chiffres et underscores")

	// ErrNameTooLong caps computed-variable names at 100 characters.
	ErrNameTooLong = errors.New("Le nom est trop long (max 100 caractères)")

	// ErrMappingRequired rejects a computed variable binding no
	// signals.
	ErrMappingRequired = errors.New("Au moins une variable doit être mappée")

	// ErrNotComputed limits delete and update to computed signals.
	ErrNotComputed = errors.New("Seules les variables calculées peuvent être supprimées")
)

// NameTakenError rejects a computed variable whose name collides with
// an existing signal.
type NameTakenError struct {
	Name string
}

func (e *NameTakenError) Error() string {
	return fmt.Sprintf("Une variable '%s' existe déjà", e.Name)
}

// BadVariableError rejects a mapping key that is not a single capital
// letter.
type BadVariableError struct {
	Letter string
}

func (e *BadVariableError) Error() string {
	return fmt.Sprintf("'%s' n'est pas une lettre de variable valide (A-Z)", e.Letter)
}

// SignalUnknownError rejects a mapping entry naming a signal the
// session does not have.
type SignalUnknownError struct {
	Name string
}

func (e *SignalUnknownError) Error() string {
	return fmt.Sprintf("Signal '%s' non trouvé", e.Name)
}

// LengthMismatchError rejects a mapping whose signals do not share one
// sample count.
type LengthMismatchError struct {
	Name      string
	Got, Want int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("Le signal '%s' a une longueur différente (%d vs %d)", e.Name, e.Got, e.Want)
}
