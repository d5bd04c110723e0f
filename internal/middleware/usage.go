// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mleclerc/courbe/internal/usage"
)

// UsageObserver feeds the anonymized product-usage collector. Every
// request refreshes the caller's session; the request itself is
// recorded except under /api/metrics, so reading the reports does not
// distort them. The endpoint is the raw path because the reports rank
// what users actually requested.
func UsageObserver(collector *usage.Collector) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			collector.TouchSession(ip)

			start := time.Now()
			wrapper := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(wrapper, r)

			if strings.HasPrefix(r.URL.Path, "/api/metrics") {
				return
			}
			collector.Observe(ip, r.URL.Path, wrapper.status, time.Since(start))
		})
	}
}

// ClientIP returns the caller address for usage attribution. The
// reverse proxy sets X-Real-IP; direct connections fall back to
// RemoteAddr.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
