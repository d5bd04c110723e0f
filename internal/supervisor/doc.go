// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package supervisor builds the suture v4 supervision tree that keeps
// Courbe's long-lived loops alive: the HTTP server, the task janitor,
// the recording-session evictor, the expired-token sweep and the usage
// flusher. Failures restart with decay and backoff; shutdown drains the
// tree and reports anything that refused to stop.
package supervisor
