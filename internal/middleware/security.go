// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package middleware

import (
	"net/http"
	"strings"
)

// cspDirectives allows the two CDNs the bundled frontend loads from
// (Plotly and Prism) and nothing else.
var cspDirectives = strings.Join([]string{
	"default-src 'self'",
	"script-src 'self' https://cdn.plot.ly https://cdnjs.cloudflare.com",
	"style-src 'self' 'unsafe-inline' https://cdn.plot.ly https://cdnjs.cloudflare.com",
	"img-src 'self' data: blob:",
	"font-src 'self'",
	"connect-src 'self'",
	"frame-ancestors 'self'",
	"form-action 'self'",
	"base-uri 'self'",
	"object-src 'none'",
}, "; ")

// SecurityHeaders stamps the standard hardening headers on every
// response. HSTS is only meaningful behind TLS, so it is gated on
// the production environment.
func SecurityHeaders(production bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()

			if production {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-XSS-Protection", "1; mode=block")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
			h.Set("Content-Security-Policy", cspDirectives)

			next.ServeHTTP(w, r)
		})
	}
}
