// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package models

import "time"

// Task kinds.
const (
	TaskConvert = "convert"
	TaskConcat  = "concat"
)

// Task statuses. Transitions are monotone:
// pending -> processing -> completed | failed.
const (
	TaskPending    = "pending"
	TaskProcessing = "processing"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
)

// ConcatStats summarizes a finished concatenation.
type ConcatStats struct {
	Files    int     `json:"n_files"`
	Signals  int     `json:"n_signals"`
	Duration float64 `json:"duration"`
}

// Task is one background convert/concatenate unit of work. Paths are
// server-side and never serialize.
type Task struct {
	ID          string       `json:"id"`
	Kind        string       `json:"kind"`
	OwnerID     string       `json:"-"`
	Status      string       `json:"status"`
	Progress    int          `json:"progress"`
	Message     string       `json:"message,omitempty"`
	Error       string       `json:"error,omitempty"`
	InputPaths  []string     `json:"-"`
	DBCPath     string       `json:"-"`
	OutputPath  string       `json:"-"`
	OutputName  string       `json:"output_name,omitempty"`
	Stats       *ConcatStats `json:"stats,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
}

// Finished reports whether the task reached a terminal status.
func (t *Task) Finished() bool {
	return t.Status == TaskCompleted || t.Status == TaskFailed
}
