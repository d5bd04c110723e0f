// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"fmt"
	"net/http"

	"github.com/mleclerc/courbe/internal/auth"
)

// AdminListUsers returns every account with aggregate statistics.
func (s *Server) AdminListUsers(w http.ResponseWriter, r *http.Request) {
	users, stats, err := s.auth.ListUsers(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"users": users,
		"count": len(users),
		"stats": stats,
	})
}

// AdminGetUser returns one account with its live session count.
func (s *Server) AdminGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	user, sessions, err := s.auth.GetUser(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"user":     user,
		"sessions": sessions,
	})
}

// AdminUpdateUser patches name, role or active flag. Demoting or
// deactivating the last administrator is refused.
func (s *Server) AdminUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req auth.AdminUserUpdate
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := s.auth.UpdateUser(r.Context(), id, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    user,
	})
}

// AdminDeleteUser removes an account. Self-deletion is refused.
func (s *Server) AdminDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.auth.DeleteUser(r.Context(), CurrentUser(r.Context()).ID, id); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{"success": true})
}

type quotaRequest struct {
	QuotaBytes int64 `json:"quota_bytes" validate:"gt=0"`
}

// AdminSetQuota overrides one account's storage budget.
func (s *Server) AdminSetQuota(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req quotaRequest
	if err := decodeValid(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	// The account must exist; SetQuota itself upserts blindly.
	if _, _, err := s.auth.GetUser(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.store.SetQuota(r.Context(), id, req.QuotaBytes); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success":     true,
		"user_id":     id,
		"quota_bytes": req.QuotaBytes,
	})
}

// AdminCleanupSessions deletes expired sessions immediately instead of
// waiting for the background sweep.
func (s *Server) AdminCleanupSessions(w http.ResponseWriter, r *http.Request) {
	n, err := s.auth.CleanupExpiredSessions(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"cleaned": n,
		"message": fmt.Sprintf("%d session(s) expirée(s) supprimée(s)", n),
	})
}

// AdminStorageStats reports global file-store usage.
func (s *Server) AdminStorageStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, stats)
}
