// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// MetricsCurrent reports the live buffer and today's rollup.
func (s *Server) MetricsCurrent(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, s.usage.Current())
}

// MetricsDaily reports one day's rollup; without a date parameter it
// reports today.
func (s *Server) MetricsDaily(w http.ResponseWriter, r *http.Request) {
	date := chi.URLParam(r, "date")
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}
	report, err := s.usage.Daily(date)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, report)
}

// MetricsWeekly aggregates the last seven days.
func (s *Server) MetricsWeekly(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, s.usage.Weekly())
}

// MetricsHealth summarizes component liveness: session and task
// pressure next to the collector's view of today.
func (s *Server) MetricsHealth(w http.ResponseWriter, r *http.Request) {
	pending, processing := s.tasks.Counts()
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"status":           "ok",
		"eda_sessions":     s.eda.Len(),
		"tasks_pending":    pending,
		"tasks_processing": processing,
		"usage":            s.usage.Current(),
	})
}

// MetricsCleanup flushes the buffer and purges rollups past retention
// (admin).
func (s *Server) MetricsCleanup(w http.ResponseWriter, r *http.Request) {
	removed, err := s.usage.Cleanup(s.cfg.Usage.RetentionDays)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"removed": removed,
	})
}
