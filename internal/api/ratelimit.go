// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/mleclerc/courbe/internal/metrics"
)

// RateLimitConfig describes one route-class ceiling.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Route-class ceilings. Credential endpoints get the strictest budget;
// uploads sit in between because a single request can carry hundreds
// of megabytes.
var (
	RateLimitLogin   = RateLimitConfig{Requests: 5, Window: 5 * time.Minute}
	RateLimitAPI     = RateLimitConfig{Requests: 300, Window: time.Minute}
	RateLimitUploads = RateLimitConfig{Requests: 30, Window: time.Minute}
)

// RateLimit builds a per-IP limiter for one route class. Rejections
// are counted per route pattern and answered with the standard error
// body plus a Retry-After header.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	retry := int(cfg.Window.Seconds())
	return httprate.Limit(
		cfg.Requests,
		cfg.Window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			endpoint := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					endpoint = pattern
				}
			}
			metrics.RecordRateLimitHit(endpoint)
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			respondJSON(w, r, http.StatusTooManyRequests, errorBody{
				Error:      "Trop de requêtes. Réessayez plus tard.",
				RetryAfter: retry,
			})
		}),
	)
}

// CORSHandler builds the credentialed allow-list CORS layer. The
// client sends the bearer token in a header, so wildcard origins are
// never acceptable here; the allow-list comes from configuration.
func CORSHandler(origins []string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}
