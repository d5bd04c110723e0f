// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package decode

import (
	"strings"

	"github.com/zeebo/errs"
)

// Error wraps failures raised by this package.
var Error = errs.Class("decode")

// ChannelInfo identifies one channel of a recording catalog. Group and
// Index address the channel inside the container; Name may repeat
// across groups, in which case the first catalog occurrence wins for
// name lookups.
type ChannelInfo struct {
	Group int    `json:"group"`
	Index int    `json:"index"`
	Name  string `json:"name"`
	Unit  string `json:"unit,omitempty"`
	DType string `json:"dtype,omitempty"`
}

// Recording is an open handle on a time-series recording.
// Implementations are safe for concurrent use, but callers normally
// serialize access per recording anyway.
type Recording interface {
	// Channels returns the catalog without touching sample data.
	Channels() []ChannelInfo

	// Samples returns the timestamps and values of one channel. The
	// returned slices are owned by the caller.
	Samples(group, index int) (ts, vals []float64, err error)

	// DecodeBus decodes raw CAN frame channels against a DBC catalog,
	// yielding a new recording holding only the decoded signals.
	DecodeBus(dbcPath string) (Recording, error)

	// Filter returns a recording restricted to the named channels,
	// preserving catalog order.
	Filter(names []string) Recording

	// Resample projects every channel onto a uniform time base with
	// the given step in seconds.
	Resample(raster float64) (Recording, error)

	// Save persists the recording for a later Backend.Open.
	Save(path string) error

	// Close releases sample memory. The catalog stays readable and
	// Close is idempotent.
	Close() error
}

// Backend opens and combines recordings.
type Backend interface {
	// Open opens a persisted recording.
	Open(path string) (Recording, error)

	// Concatenate merges several persisted recordings into one. All
	// inputs must share a single channel-name set. With sync the
	// inputs are chained onto one continuous timeline, each starting
	// where the previous ended; without it timestamps are carried
	// as-is. version selects the container format version of the
	// result.
	Concatenate(paths []string, sync bool, version string) (Recording, error)
}

// DenyList holds the default channel-name patterns excluded from
// signal listings: time bases and raw CAN frame bookkeeping.
var DenyList = []string{"time", "timestamp", "t_", "CAN_DataFrame"}

// Denied reports whether a channel name matches any of the patterns,
// case-insensitively, by substring.
func Denied(name string, patterns []string) bool {
	lower := strings.ToLower(name)
	for _, p := range patterns {
		if strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
