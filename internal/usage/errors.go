// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package usage

import (
	"errors"

	"github.com/zeebo/errs"
)

// Error is the error class for the usage collector.
var Error = errs.Class("usage")

// ErrBadDate rejects report dates not shaped YYYY-MM-DD.
var ErrBadDate = errors.New("Format de date invalide (YYYY-MM-DD)")
