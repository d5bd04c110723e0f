// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/mleclerc/courbe/internal/eda"
	"github.com/mleclerc/courbe/internal/validation"
)

// pathID extracts the named chi URL parameter and enforces the
// identifier shape before any lookup. UUIDs and the generated artifact
// ids pass; anything with a separator or dot fails, so traversal
// attempts never reach a store or the disk.
func pathID(r *http.Request, name string) (string, error) {
	id := chi.URLParam(r, name)
	if !validation.ValidIdentifier(id) {
		return "", errInvalidID
	}
	return id, nil
}

// pathIndex extracts a non-negative integer URL parameter.
func pathIndex(r *http.Request, name string) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || n < 0 {
		return 0, eda.ErrInvalidIndex
	}
	return n, nil
}

// parseIndices splits a comma-separated list of signal indices.
// Whitespace around entries is tolerated; empty entries are not.
func parseIndices(raw string) ([]int, bool) {
	parts := strings.Split(raw, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return nil, false
		}
		out = append(out, n)
	}
	return out, true
}
