// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package usage

import (
	"sort"
	"time"
)

// CurrentStats is the live snapshot: flushed today-stats merged with
// whatever still sits in the buffer, without flushing it.
type CurrentStats struct {
	Timestamp      time.Time      `json:"timestamp"`
	ActiveSessions int            `json:"active_sessions"`
	Today          TodayStats     `json:"today"`
	Latency        LatencySummary `json:"latency"`
}

// TodayStats is the running total for the current UTC day.
type TodayStats struct {
	UniqueUsers       int   `json:"unique_users"`
	TotalRequests     int64 `json:"total_requests"`
	SessionsCompleted int64 `json:"sessions_completed"`
}

// DailyReport is one day's rollup. A day with no traffic carries only
// the date and NoData.
type DailyReport struct {
	Date          string           `json:"date"`
	NoData        bool             `json:"no_data,omitempty"`
	UniqueUsers   int              `json:"unique_users,omitempty"`
	TotalRequests int64            `json:"total_requests,omitempty"`
	Sessions      *SessionReport   `json:"sessions,omitempty"`
	Latency       *LatencySummary  `json:"latency,omitempty"`
	TopEndpoints  []EndpointCount  `json:"top_endpoints,omitempty"`
	StatusCodes   map[string]int64 `json:"status_codes,omitempty"`
	Actions       map[string]int64 `json:"actions,omitempty"`
}

// SessionReport summarizes completed sessions, durations in minutes.
type SessionReport struct {
	Count          int64   `json:"count"`
	AvgDurationMin float64 `json:"avg_duration_min"`
	MaxDurationMin float64 `json:"max_duration_min"`
}

// EndpointCount keeps top-endpoint listings ordered on the wire.
type EndpointCount struct {
	Endpoint string `json:"endpoint"`
	Count    int64  `json:"count"`
}

// WeeklySummary aggregates the last seven days, skipping empty ones.
type WeeklySummary struct {
	NoData           bool           `json:"no_data,omitempty"`
	Period           string         `json:"period,omitempty"`
	Days             int            `json:"days,omitempty"`
	TotalUniqueUsers int64          `json:"total_unique_users,omitempty"`
	TotalRequests    int64          `json:"total_requests,omitempty"`
	TotalSessions    int64          `json:"total_sessions,omitempty"`
	AvgDailyUsers    float64        `json:"avg_daily_users,omitempty"`
	DailyBreakdown   []*DailyReport `json:"daily_breakdown,omitempty"`
}

// Current reports live activity. Buffered requests from today count
// toward totals and unique users; latency covers flushed data only.
func (c *Collector) Current() *CurrentStats {
	now := c.now().UTC()
	today := now.Format(dayFormat)

	var buffered int64
	users := make(map[string]struct{})
	c.bufMu.Lock()
	for i := range c.buffer {
		if c.buffer[i].at.Format(dayFormat) != today {
			continue
		}
		buffered++
		users[c.buffer[i].userHash] = struct{}{}
	}
	c.bufMu.Unlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	cur := &CurrentStats{Timestamp: now, ActiveSessions: len(c.sessions)}
	if d, ok := c.days[today]; ok {
		for h := range d.users {
			users[h] = struct{}{}
		}
		cur.Today = TodayStats{
			UniqueUsers:       len(users),
			TotalRequests:     d.requests + buffered,
			SessionsCompleted: d.sessions.count,
		}
		cur.Latency = d.latency.summary()
	} else {
		cur.Today = TodayStats{UniqueUsers: len(users), TotalRequests: buffered}
	}
	return cur
}

// Daily reports one day, today when date is empty. Flushes first so
// the report includes everything observed so far.
func (c *Collector) Daily(date string) (*DailyReport, error) {
	if date == "" {
		date = c.now().UTC().Format(dayFormat)
	} else if !dateRe.MatchString(date) {
		return nil, ErrBadDate
	}
	if err := c.Flush(); err != nil {
		c.log.Warn().Err(err).Msg("flush before daily report failed")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dailyLocked(date), nil
}

// Weekly summarizes the last seven days, newest first in the
// breakdown.
func (c *Collector) Weekly() *WeeklySummary {
	if err := c.Flush(); err != nil {
		c.log.Warn().Err(err).Msg("flush before weekly report failed")
	}
	now := c.now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()

	var days []*DailyReport
	for i := 0; i < 7; i++ {
		rep := c.dailyLocked(now.AddDate(0, 0, -i).Format(dayFormat))
		if rep.NoData {
			continue
		}
		days = append(days, rep)
	}
	if len(days) == 0 {
		return &WeeklySummary{NoData: true}
	}
	sum := &WeeklySummary{
		Period:         days[len(days)-1].Date + " to " + days[0].Date,
		Days:           len(days),
		DailyBreakdown: days,
	}
	for _, d := range days {
		sum.TotalUniqueUsers += int64(d.UniqueUsers)
		sum.TotalRequests += d.TotalRequests
		sum.TotalSessions += d.Sessions.Count
	}
	sum.AvgDailyUsers = round1(float64(sum.TotalUniqueUsers) / float64(len(days)))
	return sum
}

func (c *Collector) dailyLocked(date string) *DailyReport {
	d, ok := c.days[date]
	if !ok {
		return &DailyReport{Date: date, NoData: true}
	}
	rep := &DailyReport{
		Date:          date,
		UniqueUsers:   len(d.users),
		TotalRequests: d.requests,
		StatusCodes:   cloneCounts(d.statusCodes),
		TopEndpoints:  topEndpoints(d.endpoints, 10),
	}
	lat := d.latency.summary()
	rep.Latency = &lat
	sr := &SessionReport{
		Count:          d.sessions.count,
		MaxDurationMin: round1(d.sessions.maxDuration / 60),
	}
	if d.sessions.count > 0 {
		sr.AvgDurationMin = round1(d.sessions.totalDuration / float64(d.sessions.count) / 60)
	}
	rep.Sessions = sr
	if len(d.actions) > 0 {
		rep.Actions = cloneCounts(d.actions)
	}
	return rep
}

// topEndpoints returns the n busiest endpoints, count descending with
// name as the tie-break.
func topEndpoints(counts map[string]int64, n int) []EndpointCount {
	out := make([]EndpointCount, 0, len(counts))
	for endpoint, count := range counts {
		out = append(out, EndpointCount{Endpoint: endpoint, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Endpoint < out[j].Endpoint
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
