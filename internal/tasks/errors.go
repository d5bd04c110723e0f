// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package tasks

import (
	"errors"
	"fmt"

	"github.com/zeebo/errs"

	"github.com/mleclerc/courbe/internal/models"
)

// Error is the class for internal pipeline failures.
var Error = errs.Class("tasks")

var (
	// ErrTaskNotFound covers unknown ids and tasks the caller may not
	// see, indistinguishably.
	ErrTaskNotFound = errors.New("Tâche introuvable")

	// ErrOutputMissing means the task completed but its file is gone,
	// normally to the janitor.
	ErrOutputMissing = errors.New("Fichier de sortie introuvable")

	// ErrTooFewInputs rejects a concatenation with fewer than two
	// inputs.
	ErrTooFewInputs = errors.New("Au moins 2 fichiers requis")

	// ErrTooManyInputs caps concatenation fan-in.
	ErrTooManyInputs = errors.New("Maximum 20 fichiers autorisés")

	// ErrPathOutsideDir rejects any input path that does not resolve
	// inside the task directory.
	ErrPathOutsideDir = errors.New("Fichier introuvable ou accès non autorisé")

	// ErrNoValidChannels means every channel of a conversion input was
	// filtered out by name.
	ErrNoValidChannels = errors.New("Aucun canal valide trouvé")

	// ErrNoValidSignals means channels passed the name filter but none
	// carried usable samples.
	ErrNoValidSignals = errors.New("Aucun signal valide trouvé")

	// ErrNoCommonSignals means the concatenation inputs share no
	// channel once the deny-list is applied.
	ErrNoCommonSignals = errors.New("Aucun signal commun trouvé entre les fichiers")

	// ErrRateLimited paces per-user task creation.
	ErrRateLimited = errors.New("Trop de tâches créées, réessayez dans un instant")
)

// UnsupportedError rejects a conversion pair outside the format table.
type UnsupportedError struct {
	In, Out string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("Conversion .%s → .%s non supportée", e.In, e.Out)
}

// TimeRangeError means a recording's channels span no usable time
// window.
type TimeRangeError struct {
	Min, Max float64
}

func (e *TimeRangeError) Error() string {
	return fmt.Sprintf("Plage temporelle invalide: %g - %g", e.Min, e.Max)
}

// NotFinishedError rejects a download of a task that has not completed.
type NotFinishedError struct {
	Kind string
}

func (e *NotFinishedError) Error() string {
	if e.Kind == models.TaskConcat {
		return "Concaténation non terminée"
	}
	return "Conversion non terminée"
}
