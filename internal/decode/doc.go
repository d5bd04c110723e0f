// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package decode defines the capability interface between the rest of
// the application and a recording decoder, plus the synthetic backend
// that implements it.
//
// # Interface
//
// A Backend opens recordings and concatenates several of them into one.
// A Recording is an open handle: it lists its channel catalog without
// touching sample data, loads one channel's samples on demand, decodes
// raw CAN frames against a DBC catalog, restricts itself to a channel
// subset, projects all channels onto a uniform time base, and persists
// itself for a later Open. Sessions, views, and conversion tasks are all
// written against this interface and never against a concrete decoder.
//
// # Synthetic backend
//
// The built-in backend fabricates sample data instead of parsing binary
// MF4. Recordings persist as a gzip-wrapped JSON container, bus decoding
// reads the message and signal declarations out of the DBC text and
// fabricates one deterministic trace per declared signal, and the demo
// generator produces the standard 20-signal OBD2-style set. Identical
// inputs always produce identical samples, which keeps fixtures and
// assertions stable.
//
// # Shared signal math
//
// Interpolate and FillNonFinite implement the piecewise-linear
// resampling and non-finite repair used by session preloading and CSV
// conversion. DenyList and Denied implement the channel-name filter
// that keeps time bases and raw frame bookkeeping out of signal
// listings.
package decode
