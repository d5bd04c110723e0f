// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// API metrics. Endpoint labels use the route pattern, never the raw
	// path, to keep cardinality bounded.
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of in-flight API requests",
		},
	)

	APIRateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_rate_limit_hits_total",
			Help: "Total number of rate limit rejections",
		},
		[]string{"endpoint"},
	)

	// Task pipeline metrics. Conversions and concatenations run from
	// seconds to minutes, hence the long tail on the buckets.
	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "task_duration_seconds",
			Help:    "Background task duration in seconds",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"kind", "status"},
	)

	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tasks_in_flight",
			Help: "Tasks currently pending or processing",
		},
	)

	// Sandbox metrics.
	SandboxRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandbox_runs_total",
			Help: "Total number of sandbox executions",
		},
		[]string{"status"}, // "ok", "unsafe", "timeout", "error"
	)

	SandboxRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sandbox_run_duration_seconds",
			Help:    "Wall-clock duration of sandbox executions in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	SandboxBreakerOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sandbox_breaker_open",
			Help: "1 while the sandbox spawn circuit breaker is open",
		},
	)

	// Exploration session metrics.
	EDASessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eda_sessions_active",
			Help: "Currently open exploration sessions",
		},
	)

	EDASessionsEvicted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eda_sessions_evicted_total",
			Help: "Sessions closed by idle eviction or capacity pressure",
		},
	)

	// File store metrics.
	StorageUploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_uploads_total",
			Help: "Total number of accepted uploads",
		},
		[]string{"category"},
	)

	StorageUploadBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storage_upload_bytes_total",
			Help: "Total bytes accepted into the file store",
		},
		[]string{"category"},
	)

	StorageQuotaRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storage_quota_rejections_total",
			Help: "Uploads rejected because the owner's quota was exceeded",
		},
	)

	// Auth metrics.
	AuthLoginsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_logins_total",
			Help: "Login attempts by outcome",
		},
		[]string{"result"}, // "success", "failure", "locked"
	)

	AuthSessionsCleaned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_sessions_cleaned_total",
			Help: "Expired sessions removed by the periodic sweep",
		},
	)

	// Rate limiter metrics.
	RateLimitLockouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_lockouts_total",
			Help: "Keys locked out after exhausting their attempt window",
		},
		[]string{"action"},
	)
)

// RecordAPIRequest records one served API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks in-flight API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordRateLimitHit records a request rejected by a per-route limiter.
func RecordRateLimitHit(endpoint string) {
	APIRateLimitHits.WithLabelValues(endpoint).Inc()
}

// RecordTask records one finished background task.
func RecordTask(kind, status string, duration time.Duration) {
	TaskDuration.WithLabelValues(kind, status).Observe(duration.Seconds())
}

// TrackTask tracks tasks between enqueue and completion.
func TrackTask(inc bool) {
	if inc {
		TasksInFlight.Inc()
	} else {
		TasksInFlight.Dec()
	}
}

// RecordSandboxRun records one sandbox execution outcome.
func RecordSandboxRun(status string, duration time.Duration) {
	SandboxRunsTotal.WithLabelValues(status).Inc()
	SandboxRunDuration.Observe(duration.Seconds())
}

// SetSandboxBreakerOpen mirrors the spawn breaker state.
func SetSandboxBreakerOpen(open bool) {
	if open {
		SandboxBreakerOpen.Set(1)
	} else {
		SandboxBreakerOpen.Set(0)
	}
}

// TrackEDASession tracks open exploration sessions.
func TrackEDASession(inc bool) {
	if inc {
		EDASessionsActive.Inc()
	} else {
		EDASessionsActive.Dec()
	}
}

// RecordEDAEvictions records sessions closed by the sweep.
func RecordEDAEvictions(n int) {
	if n > 0 {
		EDASessionsEvicted.Add(float64(n))
		EDASessionsActive.Sub(float64(n))
	}
}

// RecordUpload records one accepted upload.
func RecordUpload(category string, sizeBytes int64) {
	StorageUploadsTotal.WithLabelValues(category).Inc()
	StorageUploadBytes.WithLabelValues(category).Add(float64(sizeBytes))
}

// RecordQuotaRejection records an upload refused on quota.
func RecordQuotaRejection() {
	StorageQuotaRejections.Inc()
}

// RecordLogin records a login attempt outcome.
func RecordLogin(result string) {
	AuthLoginsTotal.WithLabelValues(result).Inc()
}

// RecordSessionsCleaned records expired auth sessions removed.
func RecordSessionsCleaned(n int64) {
	if n > 0 {
		AuthSessionsCleaned.Add(float64(n))
	}
}

// RecordLockout records a rate-limiter lockout.
func RecordLockout(action string) {
	RateLimitLockouts.WithLabelValues(action).Inc()
}
