// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/mleclerc/courbe/internal/models"
)

// Sources lists the registered demo datasets and the caller's current
// activation.
func (s *Server) Sources(w http.ResponseWriter, r *http.Request) {
	sources, current := s.views.List(ownerID(r))
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"sources": sources,
		"current": current,
	})
}

// ActivateSource switches the caller's active source and describes it.
func (s *Server) ActivateSource(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	info, err := s.views.Activate(ownerID(r), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, info)
}

// SourceInfo describes the caller's active source.
func (s *Server) SourceInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.views.Info(ownerID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, info)
}

// SourceView serves a windowed, downsampled slice of the active
// source. Query: signals (comma-separated indices, default "0"),
// start/end (seconds, default the source bounds), max_points.
func (s *Server) SourceView(w http.ResponseWriter, r *http.Request) {
	indices, start, end, maxPoints, ok := parseViewQuery(w, r)
	if !ok {
		return
	}
	resp, err := s.views.View(ownerID(r), indices, start, end, maxPoints)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, resp)
}

// parseViewQuery decodes the shared view parameters. On failure it has
// already written the 400 and returns ok=false. Absent window edges
// come back NaN; the view layers default those to the data bounds.
func parseViewQuery(w http.ResponseWriter, r *http.Request) (indices []int, start, end float64, maxPoints int, ok bool) {
	q := r.URL.Query()

	raw := q.Get("signals")
	if raw == "" {
		raw = "0"
	}
	indices, valid := parseIndices(raw)
	if !valid {
		badRequest(w, r, "Paramètre signals invalide")
		return nil, 0, 0, 0, false
	}

	start, end = math.NaN(), math.NaN()
	if v := q.Get("start"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			badRequest(w, r, "Paramètres start/end invalides")
			return nil, 0, 0, 0, false
		}
		start = f
	}
	if v := q.Get("end"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			badRequest(w, r, "Paramètres start/end invalides")
			return nil, 0, 0, 0, false
		}
		end = f
	}

	maxPoints = models.DefaultViewPoints
	if v := q.Get("max_points"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, r, "Paramètre max_points invalide")
			return nil, 0, 0, 0, false
		}
		maxPoints = n
	}
	return indices, start, end, maxPoints, true
}

// Health is the liveness endpoint, with a short summary of the active
// source when one is loaded.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status": "ok",
		"loaded": false,
	}
	if info, err := s.views.Info(ownerID(r)); err == nil {
		resp["loaded"] = true
		resp["source"] = info.Source
		resp["n_signals"] = info.NSignals
	}
	respondJSON(w, r, http.StatusOK, resp)
}
