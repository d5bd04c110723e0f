// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package logging is the process-wide zerolog front end. Every Courbe
// component logs through it so field names, level handling and output
// format stay uniform: JSON in production, console during development,
// request IDs propagated via context.
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("session", id).Msg("Recording opened")
//	logging.Ctx(ctx).Warn().Err(err).Msg("Signal skipped")
//
// A log chain is dropped silently unless it ends in .Msg or .Send.
// Prefer structured fields over Msgf.
package logging

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config selects level, format and destination for the process logger.
type Config struct {
	Level     string    // trace, debug, info (default), warn, error, fatal, disabled
	Format    string    // json (default) or console
	Caller    bool      // annotate each line with file:line
	Timestamp bool      // stamp each line; Init treats the zero Config as stamped
	Output    io.Writer // defaults to os.Stderr
}

// DefaultConfig is what the process runs with before Init is called.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", Timestamp: true, Output: os.Stderr}
}

var (
	mu  sync.RWMutex
	log = build(DefaultConfig())
)

// Init reconfigures the process logger. Call it from main once the
// configuration is loaded; calling it again simply swaps the logger.
func Init(cfg Config) {
	mu.Lock()
	log = build(cfg)
	mu.Unlock()
}

func build(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05"}
	}

	ctx := zerolog.New(out).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

var levelNames = map[string]zerolog.Level{
	"trace":    zerolog.TraceLevel,
	"debug":    zerolog.DebugLevel,
	"info":     zerolog.InfoLevel,
	"warn":     zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	"error":    zerolog.ErrorLevel,
	"fatal":    zerolog.FatalLevel,
	"disabled": zerolog.Disabled,
}

// parseLevel maps a config string to a zerolog level; unknown strings
// fall back to info rather than failing startup.
func parseLevel(s string) zerolog.Level {
	if lvl, ok := levelNames[strings.ToLower(s)]; ok {
		return lvl
	}
	return zerolog.InfoLevel
}

// Logger returns a copy of the current process logger.
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

// SetLogger swaps the process logger wholesale. Tests use this to
// capture output; production code goes through Init.
func SetLogger(l zerolog.Logger) {
	mu.Lock()
	log = l
	mu.Unlock()
}

// With opens a child context on the process logger.
func With() zerolog.Context {
	return Logger().With()
}

// WithComponent returns a child logger tagged with a component field,
// the convention every Courbe subsystem follows:
//
//	taskLog := logging.WithComponent("tasks")
//	taskLog.Info().Str("task", id).Msg("Conversion started")
func WithComponent(component string) zerolog.Logger {
	return With().Str("component", component).Logger()
}

// Info starts an info-level message on the process logger.
func Info() *zerolog.Event {
	l := Logger()
	return l.Info()
}

// Warn starts a warn-level message on the process logger.
func Warn() *zerolog.Event {
	l := Logger()
	return l.Warn()
}

// Error starts an error-level message on the process logger.
func Error() *zerolog.Event {
	l := Logger()
	return l.Error()
}

// Fatal starts a fatal-level message; the process exits once it is sent.
func Fatal() *zerolog.Event {
	l := Logger()
	return l.Fatal()
}

// NewTestLogger returns a timestamped logger writing to w, for tests
// that assert on log output.
func NewTestLogger(w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Logger()
}
