// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

/*
Package main is the entry point for the Courbe server.

Courbe is a backend for interactive exploration, conversion and
analytical scripting over large automotive time-series recordings
(MF4/MDF logs with optional CAN-bus decoding). Clients upload
recordings, browse signals lazily, request downsampled views of
arbitrary time windows, convert recordings to CSV, concatenate
recordings, persist layouts / scripts / computed variables, and run
restricted analysis code that builds HTML reports.

# Application Architecture

Initialization is sequential and fatal on error, then everything
long-lived runs under a Suture v4 supervision tree:

	RootSupervisor ("courbe")
	├── DataSupervisor ("data-layer")
	│   ├── task-janitor      (finished-task and file cleanup)
	│   ├── session-evictor   (idle recording-session eviction)
	│   ├── token-sweep       (expired session tokens, stale lockouts)
	│   └── usage-flusher     (daily_stats.json rollups)
	└── APISupervisor ("api-layer")
	    └── http-server

Components in initialization order: configuration (koanf: defaults →
optional YAML file → environment), logging (zerolog), SQLite database
(modernc.org/sqlite with goose migrations), rate limiter, identity
manager, file store, decoder backend, recording-session manager, task
pipeline, analysis sandbox, artifact service, usage collector, demo
source registry, chi router.

# Configuration

Every field accepts a COURBE_-prefixed environment variable; the
legacy knobs AUTH_SECRET_KEY, AUTH_TOKEN_EXPIRY_HOURS, CORS_ORIGINS
and METRICS_IP_SALT are mapped explicitly. Production mode requires an
auth secret and HTTPS CORS origins.

# Signal Handling

SIGINT/SIGTERM cancel the tree context: the HTTP server drains for up
to the shutdown timeout, sweeps stop, a final usage flush persists the
day's rollup, and services that refused to stop are reported.
*/
package main
