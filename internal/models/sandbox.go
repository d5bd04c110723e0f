// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package models

// ValidationResult is the static validator's verdict on submitted code.
type ValidationResult struct {
	Safe    bool     `json:"safe"`
	Errors  []string `json:"errors,omitempty"`
	Imports []string `json:"imports,omitempty"`
}

// ExecutionResult is the outcome of one sandboxed run.
type ExecutionResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
	// ExecutionTime is wall-clock seconds.
	ExecutionTime float64 `json:"execution_time"`
	// Result carries the run's structured result (typically a report
	// document), when the script produced one.
	Result interface{} `json:"result,omitempty"`
}
