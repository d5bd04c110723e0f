// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package api exposes Courbe's HTTP surface: account and session
// management, user administration, demo sources with windowed views,
// lazy EDA sessions over uploaded recordings, conversion and
// concatenation tasks, the per-user file store, layouts, block scripts
// with sandboxed execution, HTML reports and anonymized usage metrics.
//
// Routing uses chi. Handlers return domain errors to respondError,
// which owns the sentinel-to-status mapping; every error body is
// exactly {"error": "<message>"} so clients never see internal
// detail. Route groups carry their own per-IP rate ceilings: credential
// endpoints the strictest, upload endpoints in between, everything
// else the general API budget.
package api
