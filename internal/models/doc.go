// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package models defines the domain types shared across Courbe's
// components: users and sessions, stored files and quotas, background
// tasks, signal metadata, view responses, persisted layout/script
// artifacts, and sandbox results.
//
// The package is a leaf: it imports nothing from the rest of the
// application, so every component can depend on it without cycles.
// Behavior lives with the owning component; models carries data and
// small pure helpers only.
package models
