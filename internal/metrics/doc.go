// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

/*
Package metrics provides Prometheus instrumentation for the Courbe backend.

All collectors are registered with the default registry via promauto at
package init, so importing the package is enough to make them scrapeable.
Handlers and managers record through the small helper functions rather
than touching the collectors directly.

# Metrics Endpoint

Metrics are exposed at the /metrics endpoint in Prometheus text format:

	curl http://localhost:8050/metrics

This surface is for operators and is unrelated to the anonymized product
usage reports served under /api/metrics.

# Available Metrics

API:
  - api_requests_total: Served requests (counter)
    Labels: method, endpoint, status_code
  - api_request_duration_seconds: Request latency (histogram)
    Labels: method, endpoint
  - api_active_requests: In-flight requests (gauge)
  - api_rate_limit_hits_total: Requests rejected by per-route limits (counter)
    Labels: endpoint

The endpoint label always carries the chi route pattern
(e.g. /api/eda/view/{session}), never the raw URL path.

Tasks:
  - task_duration_seconds: Conversion/concatenation duration (histogram)
    Labels: kind, status
  - tasks_in_flight: Tasks pending or processing (gauge)

Sandbox:
  - sandbox_runs_total: Script executions by outcome (counter)
    Labels: status (ok, unsafe, timeout, error)
  - sandbox_run_duration_seconds: Execution wall time (histogram)
  - sandbox_breaker_open: Spawn circuit breaker state (gauge)

Exploration sessions:
  - eda_sessions_active: Open sessions (gauge)
  - eda_sessions_evicted_total: Sessions closed by the idle sweep (counter)

File store:
  - storage_uploads_total: Accepted uploads (counter)
    Labels: category
  - storage_upload_bytes_total: Accepted bytes (counter)
    Labels: category
  - storage_quota_rejections_total: Uploads refused on quota (counter)

Auth:
  - auth_logins_total: Login attempts (counter)
    Labels: result (success, failure, locked)
  - auth_sessions_cleaned_total: Expired sessions swept (counter)

Rate limiting:
  - ratelimit_lockouts_total: Keys locked out (counter)
    Labels: action

# Usage

	start := time.Now()
	// ... serve request ...
	metrics.RecordAPIRequest(r.Method, pattern, "200", time.Since(start))

Helpers never return errors and are safe from any goroutine.
*/
package metrics
