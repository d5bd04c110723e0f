// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"context"
	"net/http"

	"github.com/mleclerc/courbe/internal/auth"
	"github.com/mleclerc/courbe/internal/models"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Register creates an account and opens a session. The first account
// of an empty database becomes the administrator.
func (s *Server) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, session, err := s.auth.Register(r.Context(), req.Email, req.Password, req.Name, clientInfo(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	msg := "Compte créé avec succès"
	if user.Role == models.RoleAdmin {
		msg += " (admin)"
	}
	respondJSON(w, r, http.StatusCreated, map[string]interface{}{
		"success":    true,
		"user":       user,
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
		"message":    msg,
	})
}

// Login verifies credentials and opens a session. Failures share one
// message and one timing envelope regardless of which factor failed.
func (s *Server) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, session, err := s.auth.Login(r.Context(), req.Email, req.Password, clientInfo(r))
	if err != nil {
		respondError(w, r, err)
		return
	}

	// Best-effort sweep of rows whose backing file vanished since the
	// last visit; never delays the login response.
	go func() {
		if _, err := s.store.CleanupOrphans(context.Background(), user.ID); err != nil {
			s.log.Debug().Err(err).Str("user_id", user.ID).Msg("post-login orphan sweep failed")
		}
	}()

	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success":    true,
		"user":       user,
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
	})
}

// Logout revokes the presented session.
func (s *Server) Logout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.Logout(r.Context(), bearerToken(r)); err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{"success": true})
}

// Me returns the authenticated account.
func (s *Server) Me(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"user": CurrentUser(r.Context()),
	})
}

type profileRequest struct {
	Name     *string           `json:"name"`
	Settings map[string]string `json:"settings"`
}

// UpdateMe changes the display name and merges client settings.
func (s *Server) UpdateMe(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := s.auth.UpdateProfile(r.Context(), CurrentUser(r.Context()), req.Name, req.Settings)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success": true,
		"user":    user,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// ChangePassword rotates the password and every session. The response
// carries the replacement token; all previous tokens are dead.
func (s *Server) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	session, err := s.auth.ChangePassword(r.Context(), CurrentUser(r.Context()), req.CurrentPassword, req.NewPassword, clientInfo(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"success":    true,
		"message":    "Mot de passe modifié",
		"token":      session.Token,
		"expires_at": session.ExpiresAt,
	})
}

// Features reports the capability set for the caller's role, so the
// client can hide what the server would refuse anyway.
func (s *Server) Features(w http.ResponseWriter, r *http.Request) {
	role := auth.RoleAnonymous
	authenticated := false
	if u := CurrentUser(r.Context()); u != nil {
		role = u.Role
		authenticated = true
	}
	respondJSON(w, r, http.StatusOK, map[string]interface{}{
		"role":          role,
		"features":      s.auth.Features().ForRole(role),
		"authenticated": authenticated,
	})
}
