// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package ratelimit implements the sliding-window attempt limiter guarding
// credential endpoints.
//
// Keys are composite "(action, identity)" strings, where identity is an
// IP or "ip:email" pair. Each key carries the timestamps of its failed
// attempts inside a sliding window; reaching the attempt threshold within
// the window places the key in lockout and clears the window. State is
// process-local and guarded by a single mutex.
package ratelimit

import (
	"strings"
	"sync"
	"time"
)

// Config holds the limiter policy.
type Config struct {
	// Window is the sliding window over which attempts are counted.
	Window time.Duration `json:"window"`

	// MaxAttempts is the number of attempts within Window that triggers
	// a lockout.
	MaxAttempts int `json:"max_attempts"`

	// Lockout is how long a key stays locked once the threshold is hit.
	Lockout time.Duration `json:"lockout"`
}

// DefaultConfig returns the production policy: 5 attempts per 15 minutes,
// 30 minute lockout.
func DefaultConfig() Config {
	return Config{
		Window:      15 * time.Minute,
		MaxAttempts: 5,
		Lockout:     30 * time.Minute,
	}
}

// entry tracks one key: attempt timestamps within the window plus an
// optional lockout deadline. Attempts are pruned on access, so the slice
// never exceeds MaxAttempts.
type entry struct {
	attempts    []time.Time
	lockedUntil time.Time
}

// Limiter is the process-local attempt limiter.
type Limiter struct {
	cfg Config

	mu      sync.Mutex
	entries map[string]*entry

	now func() time.Time
}

// New creates a limiter with the given policy. Zero or negative policy
// values fall back to defaults.
func New(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Lockout <= 0 {
		cfg.Lockout = def.Lockout
	}

	return &Limiter{
		cfg:     cfg,
		entries: make(map[string]*entry),
		now:     time.Now,
	}
}

// Key builds a composite limiter key from an action and identity parts,
// e.g. Key("login", ip, email) -> "login:203.0.113.7:a@b.co".
func Key(action string, parts ...string) string {
	return action + ":" + strings.Join(parts, ":")
}

// Check reports whether key is currently locked out and, if so, the
// remaining lockout in whole seconds (at least 1 while locked).
func (l *Limiter) Check(key string) (locked bool, retryAfter int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return false, 0
	}

	now := l.now()
	if now.Before(e.lockedUntil) {
		secs := int(e.lockedUntil.Sub(now).Seconds())
		if secs < 1 {
			secs = 1
		}
		return true, secs
	}
	return false, 0
}

// Record registers a failed attempt for key. It returns whether the
// attempt was accepted and how many further attempts remain before
// lockout. The call that reaches the threshold is itself accepted with
// zero remaining; every call during the lockout returns (false, 0).
func (l *Limiter) Record(key string) (allowed bool, remaining int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}

	if now.Before(e.lockedUntil) {
		return false, 0
	}

	// Slide the window.
	cutoff := now.Add(-l.cfg.Window)
	kept := e.attempts[:0]
	for _, t := range e.attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	e.attempts = append(kept, now)

	if len(e.attempts) >= l.cfg.MaxAttempts {
		e.lockedUntil = now.Add(l.cfg.Lockout)
		e.attempts = nil
		return true, 0
	}

	return true, l.cfg.MaxAttempts - len(e.attempts)
}

// Reset clears all state for key. Called on successful login or
// registration.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// CleanupExpired removes keys with no live lockout and no attempts inside
// the window, returning how many were removed. A background sweeper calls
// this periodically so idle keys do not accumulate.
func (l *Limiter) CleanupExpired() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.cfg.Window)

	removed := 0
	for key, e := range l.entries {
		if now.Before(e.lockedUntil) {
			continue
		}
		live := false
		for _, t := range e.attempts {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.entries, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Config returns the limiter policy.
func (l *Limiter) Config() Config {
	return l.cfg
}
