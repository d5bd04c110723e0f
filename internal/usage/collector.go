// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

// Package usage collects anonymized product-usage statistics.
//
// Every request contributes to an in-memory buffer keyed by a salted
// one-way hash of the caller IP; the buffer flushes into per-day
// rollups on overflow and on a periodic sweep. Rollups track unique
// user hashes, endpoint and status-code counts, latency with reservoir
// percentiles, and durations of hash-scoped sessions that end after an
// idle timeout. The whole history persists as one JSON snapshot and is
// purged past a retention window. This is separate from the Prometheus
// surface: it feeds the product reports, not operations.
package usage

import (
	crand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mleclerc/courbe/internal/config"
	"github.com/mleclerc/courbe/internal/logging"
)

// SnapshotFilename is the persistence file under the data directory.
const SnapshotFilename = "daily_stats.json"

const dayFormat = "2006-01-02"

var dateRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// request is one buffered observation. The raw IP never enters the
// buffer; only its hash does.
type request struct {
	at        time.Time
	endpoint  string
	status    int
	latencyMS float64
	userHash  string
}

// session tracks one user hash between first sight and idle expiry.
type session struct {
	id       string
	userHash string
	started  time.Time
	lastSeen time.Time
	actions  map[string]int64
}

// sessionTally aggregates expired sessions into a day. Durations are
// seconds.
type sessionTally struct {
	count         int64
	totalDuration float64
	maxDuration   float64
}

// dayStats is one UTC day of aggregated traffic.
type dayStats struct {
	requests    int64
	users       map[string]struct{}
	endpoints   map[string]int64
	statusCodes map[string]int64
	sessions    sessionTally
	actions     map[string]int64
	latency     *latencyStats
}

// dayRecord is the persisted form of a day. Reservoir samples are not
// persisted, so reloaded days keep count/min/max/sum but lose
// percentiles.
type dayRecord struct {
	TotalRequests int64            `json:"total_requests"`
	UniqueUsers   []string         `json:"unique_users"`
	Endpoints     map[string]int64 `json:"endpoints"`
	StatusCodes   map[string]int64 `json:"status_codes"`
	Sessions      sessionRecord    `json:"sessions"`
	Actions       map[string]int64 `json:"actions,omitempty"`
	Latency       latencyRecord    `json:"latency"`
}

type sessionRecord struct {
	Count         int64   `json:"count"`
	TotalDuration float64 `json:"total_duration"`
	MaxDuration   float64 `json:"max_duration"`
}

type latencyRecord struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min,omitempty"`
	Max   float64 `json:"max,omitempty"`
	Sum   float64 `json:"sum,omitempty"`
}

// Collector owns the buffer, the session table and the daily rollups.
// Safe for concurrent use: the buffer has its own mutex so the request
// path never waits behind aggregation or snapshot writes; a flush swaps
// the buffer out under that lock and aggregates under the main one.
type Collector struct {
	cfg  config.UsageConfig
	salt string
	log  zerolog.Logger
	path string

	bufMu  sync.Mutex
	buffer []request

	mu       sync.Mutex
	days     map[string]*dayStats
	sessions map[string]*session
	byHash   map[string]string
	rng      *rand.Rand

	now func() time.Time
}

// New builds a collector over cfg.DataDir and reloads any previous
// snapshot. Zero config fields fall back to production defaults. An
// empty salt is replaced by a random per-process one, which keeps
// hashing one-way but loses user continuity across restarts.
func New(cfg config.UsageConfig) (*Collector, error) {
	if cfg.BufferCap <= 0 {
		cfg.BufferCap = 1000
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 5 * time.Minute
	}
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 30
	}
	if cfg.SessionIdle <= 0 {
		cfg.SessionIdle = 30 * time.Minute
	}
	if cfg.ReservoirSize <= 0 {
		cfg.ReservoirSize = 500
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, Error.Wrap(err)
	}

	c := &Collector{
		cfg:      cfg,
		salt:     cfg.IPSalt,
		log:      logging.WithComponent("usage"),
		path:     filepath.Join(cfg.DataDir, SnapshotFilename),
		days:     make(map[string]*dayStats),
		sessions: make(map[string]*session),
		byHash:   make(map[string]string),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())), //nolint:gosec // reservoir sampling, not security
		now:      time.Now,
	}
	if c.salt == "" {
		var b [16]byte
		if _, err := crand.Read(b[:]); err != nil {
			return nil, Error.Wrap(err)
		}
		c.salt = hex.EncodeToString(b[:])
		c.log.Warn().Msg("METRICS_IP_SALT not set, using an ephemeral salt")
	}
	c.load()
	return c, nil
}

// FlushInterval is the period the background flusher should run at.
func (c *Collector) FlushInterval() time.Duration { return c.cfg.FlushInterval }

// hashIP anonymizes an IP: first 16 hex chars of SHA-256(salt:ip).
func (c *Collector) hashIP(ip string) string {
	sum := sha256.Sum256([]byte(c.salt + ":" + ip))
	return hex.EncodeToString(sum[:8])
}

// Observe buffers one served request. When the buffer reaches its cap
// it is aggregated immediately instead of waiting for the next sweep.
func (c *Collector) Observe(ip, endpoint string, status int, latency time.Duration) {
	req := request{
		at:        c.now().UTC(),
		endpoint:  endpoint,
		status:    status,
		latencyMS: float64(latency) / float64(time.Millisecond),
		userHash:  c.hashIP(ip),
	}

	c.bufMu.Lock()
	c.buffer = append(c.buffer, req)
	var batch []request
	if len(c.buffer) >= c.cfg.BufferCap {
		batch = c.buffer
		c.buffer = make([]request, 0, c.cfg.BufferCap)
	}
	c.bufMu.Unlock()

	if batch != nil {
		c.mu.Lock()
		c.absorbLocked(batch)
		c.mu.Unlock()
	}
}

// TouchSession marks activity for the caller's session, creating one
// when none is live, and returns its id.
func (c *Collector) TouchSession(ip string) string {
	hash := c.hashIP(ip)
	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.touchLocked(hash, now).id
}

// RecordAction counts a named action (conversion started, concat
// started) against the caller's session.
func (c *Collector) RecordAction(ip, action string) {
	hash := c.hashIP(ip)
	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked(hash, now).actions[action]++
}

func (c *Collector) touchLocked(hash string, now time.Time) *session {
	if id, ok := c.byHash[hash]; ok {
		s := c.sessions[id]
		s.lastSeen = now
		return s
	}
	s := &session{
		id:       uuid.NewString()[:12],
		userHash: hash,
		started:  now,
		lastSeen: now,
		actions:  make(map[string]int64),
	}
	c.sessions[s.id] = s
	c.byHash[hash] = s.id
	return s
}

// Flush expires idle sessions, folds the buffer into the daily
// rollups, purges days past retention and writes the snapshot.
func (c *Collector) Flush() error {
	c.bufMu.Lock()
	batch := c.buffer
	c.buffer = nil
	c.bufMu.Unlock()

	now := c.now().UTC()
	c.mu.Lock()
	expired := c.sweepSessionsLocked(now)
	c.absorbLocked(batch)
	purged := c.purgeLocked(now, c.cfg.RetentionDays)
	encoded, err := c.encodeLocked()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if err := os.WriteFile(c.path, encoded, 0o640); err != nil {
		return Error.Wrap(err)
	}
	if len(batch) > 0 || expired > 0 || purged > 0 {
		c.log.Debug().
			Int("requests", len(batch)).
			Int("sessions_expired", expired).
			Int("days_purged", purged).
			Msg("usage flushed")
	}
	return nil
}

// Cleanup drops rollups older than keepDays (the retention default
// when <= 0) and persists. Returns how many days were removed.
func (c *Collector) Cleanup(keepDays int) (int, error) {
	if keepDays <= 0 {
		keepDays = c.cfg.RetentionDays
	}
	now := c.now().UTC()
	c.mu.Lock()
	removed := c.purgeLocked(now, keepDays)
	encoded, err := c.encodeLocked()
	c.mu.Unlock()
	if err != nil {
		return 0, err
	}
	if err := os.WriteFile(c.path, encoded, 0o640); err != nil {
		return 0, Error.Wrap(err)
	}
	return removed, nil
}

func (c *Collector) absorbLocked(batch []request) {
	for i := range batch {
		req := &batch[i]
		d := c.ensureDayLocked(req.at.Format(dayFormat))
		d.requests++
		d.users[req.userHash] = struct{}{}
		d.endpoints[req.endpoint]++
		d.statusCodes[strconv.Itoa(req.status)]++
		d.latency.add(req.latencyMS, c.rng)
	}
}

// sweepSessionsLocked ends sessions idle past the configured timeout.
// Duration stats land on the day the session started.
func (c *Collector) sweepSessionsLocked(now time.Time) int {
	expired := 0
	for id, s := range c.sessions {
		if now.Sub(s.lastSeen) <= c.cfg.SessionIdle {
			continue
		}
		d := c.ensureDayLocked(s.started.Format(dayFormat))
		duration := s.lastSeen.Sub(s.started).Seconds()
		d.sessions.count++
		d.sessions.totalDuration += duration
		if duration > d.sessions.maxDuration {
			d.sessions.maxDuration = duration
		}
		for action, n := range s.actions {
			d.actions[action] += n
		}
		delete(c.sessions, id)
		delete(c.byHash, s.userHash)
		expired++
	}
	return expired
}

func (c *Collector) purgeLocked(now time.Time, keepDays int) int {
	cutoff := now.AddDate(0, 0, -keepDays).Format(dayFormat)
	removed := 0
	for date := range c.days {
		if date < cutoff {
			delete(c.days, date)
			removed++
		}
	}
	return removed
}

func (c *Collector) ensureDayLocked(date string) *dayStats {
	if d, ok := c.days[date]; ok {
		return d
	}
	d := &dayStats{
		users:       make(map[string]struct{}),
		endpoints:   make(map[string]int64),
		statusCodes: make(map[string]int64),
		actions:     make(map[string]int64),
		latency:     &latencyStats{size: c.cfg.ReservoirSize},
	}
	c.days[date] = d
	return d
}

func (c *Collector) encodeLocked() ([]byte, error) {
	out := make(map[string]dayRecord, len(c.days))
	for date, d := range c.days {
		out[date] = d.record()
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, Error.Wrap(err)
	}
	return encoded, nil
}

// load restores the previous snapshot. A missing file is a fresh
// start; an unreadable one is logged and skipped rather than blocking
// startup.
func (c *Collector) load() {
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warn().Err(err).Str("path", c.path).Msg("usage snapshot unreadable")
		}
		return
	}
	var stored map[string]dayRecord
	if err := json.Unmarshal(raw, &stored); err != nil {
		c.log.Warn().Err(err).Str("path", c.path).Msg("usage snapshot corrupt, starting empty")
		return
	}
	for date, rec := range stored {
		if !dateRe.MatchString(date) {
			continue
		}
		c.days[date] = c.dayFromRecord(rec)
	}
	c.log.Info().Int("days", len(c.days)).Msg("usage snapshot loaded")
}

func (d *dayStats) record() dayRecord {
	users := make([]string, 0, len(d.users))
	for h := range d.users {
		users = append(users, h)
	}
	sort.Strings(users)
	rec := dayRecord{
		TotalRequests: d.requests,
		UniqueUsers:   users,
		Endpoints:     cloneCounts(d.endpoints),
		StatusCodes:   cloneCounts(d.statusCodes),
		Sessions: sessionRecord{
			Count:         d.sessions.count,
			TotalDuration: round2(d.sessions.totalDuration),
			MaxDuration:   round2(d.sessions.maxDuration),
		},
	}
	if len(d.actions) > 0 {
		rec.Actions = cloneCounts(d.actions)
	}
	if d.latency.count > 0 {
		rec.Latency = latencyRecord{
			Count: d.latency.count,
			Min:   round2(d.latency.min),
			Max:   round2(d.latency.max),
			Sum:   round2(d.latency.sum),
		}
	}
	return rec
}

func (c *Collector) dayFromRecord(rec dayRecord) *dayStats {
	d := &dayStats{
		requests:    rec.TotalRequests,
		users:       make(map[string]struct{}, len(rec.UniqueUsers)),
		endpoints:   make(map[string]int64, len(rec.Endpoints)),
		statusCodes: make(map[string]int64, len(rec.StatusCodes)),
		actions:     make(map[string]int64, len(rec.Actions)),
		sessions: sessionTally{
			count:         rec.Sessions.Count,
			totalDuration: rec.Sessions.TotalDuration,
			maxDuration:   rec.Sessions.MaxDuration,
		},
		latency: &latencyStats{
			count: rec.Latency.Count,
			sum:   rec.Latency.Sum,
			min:   rec.Latency.Min,
			max:   rec.Latency.Max,
			size:  c.cfg.ReservoirSize,
		},
	}
	for _, h := range rec.UniqueUsers {
		d.users[h] = struct{}{}
	}
	for k, v := range rec.Endpoints {
		d.endpoints[k] = v
	}
	for k, v := range rec.StatusCodes {
		d.statusCodes[k] = v
	}
	for k, v := range rec.Actions {
		d.actions[k] = v
	}
	return d
}

func cloneCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
