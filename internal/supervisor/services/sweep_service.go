// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package services

import (
	"context"
	"time"
)

// SweepService runs a maintenance function on a fixed interval until
// its context is canceled. The task janitor, the recording-session
// evictor, the expired-token sweep and the usage flusher are all
// instances of it.
type SweepService struct {
	name     string
	interval time.Duration
	sweep    func(ctx context.Context)
}

// NewSweepService wraps sweep as a supervised periodic service. The
// first run happens after one interval, not at startup; startup work
// belongs in main.
func NewSweepService(name string, interval time.Duration, sweep func(ctx context.Context)) *SweepService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweepService{name: name, interval: interval, sweep: sweep}
}

// Serve implements suture.Service.
func (s *SweepService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// String identifies the service in supervisor logs.
func (s *SweepService) String() string {
	return s.name
}
