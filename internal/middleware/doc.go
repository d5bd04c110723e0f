// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

/*
Package middleware provides the HTTP middleware stack for the Courbe API.

All components use the standard chi signature func(http.Handler) http.Handler
and compose in the router. The authentication and rate-limit middlewares
live in internal/api next to the handlers that own their policies; this
package holds the infrastructure layers every route shares.

Key Components:

  - RequestID: X-Request-ID propagation wired into the logging context
  - SecurityHeaders: CSP, HSTS (production), clickjacking and MIME hardening
  - BodyLimit: 1.5 GiB request-entity cap via http.MaxBytesReader
  - Prometheus: request count/latency/in-flight instrumentation
  - UsageObserver: anonymized product-usage collection
  - Compression: content-type-aware gzip for JSON and text responses

Middleware Stack:

The router applies the shared layers globally, outermost first:

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders(production))
	r.Use(middleware.BodyLimit(maxBodyBytes))
	r.Use(middleware.Prometheus)
	r.Use(middleware.UsageObserver(collector))
	r.Use(middleware.Compression)

Ordering constraints worth knowing:

  - Prometheus sits outside UsageObserver so its latency histogram
    includes usage bookkeeping.
  - Compression sits innermost so both observers see the uncompressed
    status and timing.
  - The Prometheus endpoint label is resolved from the chi route
    pattern after routing, so the middleware works as a global Use
    without per-route wiring.

The usage observer and the Prometheus layer answer different questions:
Prometheus feeds operator dashboards with bounded-cardinality series,
while the usage collector builds the anonymized daily product reports
served under /api/metrics. Requests under /api/metrics refresh the
caller's session but are not recorded, so reading reports does not
distort them.

Thread Safety:

All middleware is safe for concurrent use. Compression pools gzip
writers; the status-capturing writers are per-request.
*/
package middleware
