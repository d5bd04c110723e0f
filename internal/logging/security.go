// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package logging

import (
	"strings"

	"github.com/rs/zerolog"
)

// SecurityEvent is one audit-trail entry: a login attempt, a
// registration, a lockout, a password change, an admin action.
type SecurityEvent struct {
	Event     string // "login_success", "login_failed", "lockout", ...
	UserID    string
	Email     string // logged masked
	IPAddress string
	UserAgent string // logged truncated
	Success   bool
	Error     string // failure reason; log-only, never sent to clients
}

// SecurityLogger writes the audit trail with user-influenced fields
// masked or sanitized before they touch the log stream.
type SecurityLogger struct {
	logger zerolog.Logger
}

// NewSecurityLogger builds the audit logger on the process logger.
func NewSecurityLogger() *SecurityLogger {
	return NewSecurityLoggerWithLogger(Logger())
}

// NewSecurityLoggerWithLogger builds the audit logger on an explicit
// base, so tests can capture its output.
func NewSecurityLoggerWithLogger(logger zerolog.Logger) *SecurityLogger {
	return &SecurityLogger{
		logger: logger.With().Str("component", "auth").Logger(),
	}
}

// LogEvent writes one audit entry.
func (l *SecurityLogger) LogEvent(event *SecurityEvent) {
	e := l.logger.Info().Str("event", event.Event)

	if event.Success {
		e = e.Str("status", "success")
	} else {
		e = e.Str("status", "failed")
	}
	if event.UserID != "" {
		e = e.Str("user_id", event.UserID)
	}
	if event.Email != "" {
		e = e.Str("email", MaskEmail(event.Email))
	}
	if event.IPAddress != "" {
		e = e.Str("ip", event.IPAddress)
	}
	if event.UserAgent != "" {
		e = e.Str("user_agent", truncate(event.UserAgent, 100))
	}
	if event.Error != "" && !event.Success {
		e = e.Str("error", Sanitize(event.Error))
	}

	e.Msg("security event")
}

// MaskEmail keeps the first character of the local part and the domain.
// "driver@example.com" becomes "d***@example.com".
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}

// Sanitize strips control characters from a user-influenced value so a
// crafted input cannot forge log lines.
func Sanitize(v string) string {
	var b strings.Builder
	b.Grow(len(v))
	for _, r := range v {
		if r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(' ')
			continue
		}
		if r < 0x20 || r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return truncate(b.String(), 500)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
