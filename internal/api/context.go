// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/mleclerc/courbe/internal/auth"
	"github.com/mleclerc/courbe/internal/middleware"
	"github.com/mleclerc/courbe/internal/models"
	"github.com/mleclerc/courbe/internal/validation"
)

type ctxKey int

const userKey ctxKey = iota

// Authenticate resolves the bearer token when one is present and
// stores the account on the request context. Requests without a token
// pass through anonymous. A token that fails to resolve is rejected
// outright; a client holding a stale token must learn about it, not
// silently degrade to anonymous.
func (s *Server) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		// Malformed tokens never reach the session store.
		if !validation.ValidSessionToken(token) {
			respondError(w, r, auth.ErrAuthRequired)
			return
		}
		user, _, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			respondError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects anonymous requests.
func (s *Server) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if CurrentUser(r.Context()) == nil {
			respondError(w, r, auth.ErrAuthRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects requests not carrying an administrator account.
func (s *Server) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := CurrentUser(r.Context())
		switch {
		case user == nil:
			respondError(w, r, auth.ErrAuthRequired)
		case !user.IsAdmin():
			respondError(w, r, auth.ErrAdminRequired)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// RequireFeature gates a route on the role/feature matrix. Anonymous
// callers get a 401 rather than a 403 so clients know logging in may
// help.
func (s *Server) RequireFeature(feature string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := auth.RoleAnonymous
			user := CurrentUser(r.Context())
			if user != nil {
				role = user.Role
			}
			if !s.auth.Features().Allowed(role, feature) {
				if user == nil {
					respondError(w, r, auth.ErrAuthRequired)
					return
				}
				respondError(w, r, auth.ErrFeatureDenied)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CurrentUser returns the authenticated account on ctx, or nil.
func CurrentUser(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

// ownerID is the scope key for per-user state. Anonymous callers share
// the empty scope, which only ever sees demo data.
func ownerID(r *http.Request) string {
	if u := CurrentUser(r.Context()); u != nil {
		return u.ID
	}
	return ""
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}

// clientInfo captures the caller coordinates recorded on sessions and
// in the security log.
func clientInfo(r *http.Request) auth.ClientInfo {
	return auth.ClientInfo{
		IP:        middleware.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
}
