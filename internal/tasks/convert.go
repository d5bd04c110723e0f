// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package tasks

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/mleclerc/courbe/internal/decode"
)

// convert runs one mf4-to-csv conversion and returns the output path.
// The fast path exports channels already sharing one time base,
// resampling first when a raster was requested; when the channels
// disagree it falls back to per-channel linear interpolation onto a
// uniform raster. Inputs and the DBC catalog are removed on success.
func (m *Manager) convert(id, input, dbc string, raster float64) (string, error) {
	m.progress(id, 5, "Ouverture du fichier MF4...")

	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	outPath := filepath.Join(m.cfg.Dir, stem+".csv")

	rec, err := m.backend.Open(input)
	if err != nil {
		return "", Error.Wrap(err)
	}
	defer func() { _ = rec.Close() }()

	if dbc != "" {
		m.progress(id, 10, "Décodage CAN...")
		decoded, derr := rec.DecodeBus(dbc)
		if derr != nil {
			m.log.Warn().Err(derr).Str("task_id", id).Msg("bus decode failed, keeping raw channels")
		} else {
			_ = rec.Close()
			rec = decoded
		}
	}

	m.progress(id, 15, "Extraction des signaux...")

	header, cols, err := m.extractShared(id, rec, raster)
	writePct := 75
	if err != nil {
		if isConvertFatal(err) {
			return "", err
		}
		m.log.Debug().Err(err).Str("task_id", id).Msg("shared time base unavailable, interpolating")
		if header, cols, err = m.extractInterpolated(id, rec, raster); err != nil {
			return "", err
		}
		writePct = 90
	}

	m.progress(id, writePct, "Écriture CSV...")
	err = writeCSV(outPath, header, cols, m.cfg.CSVChunkRows, func(written, total int) {
		if total == 0 {
			return
		}
		pct := writePct + written*(95-writePct)/total
		m.progress(id, pct, fmt.Sprintf("Écriture CSV: %d/%d lignes...", written, total))
	})
	if err != nil {
		return "", err
	}

	m.removeIfExists(input)
	m.removeIfExists(dbc)
	m.progress(id, 100, "Terminé")
	return outPath, nil
}

// isConvertFatal marks extraction failures the interpolation fallback
// cannot fix either.
func isConvertFatal(err error) bool {
	return errors.Is(err, ErrNoValidChannels)
}

// extractShared exports every channel against one shared time base.
// Column 0 is the base itself.
func (m *Manager) extractShared(id string, rec decode.Recording, raster float64) ([]string, [][]float64, error) {
	channels := convertChannels(rec)
	if len(channels) == 0 {
		return nil, nil, ErrNoValidChannels
	}

	if raster > 0 {
		m.progress(id, 25, fmt.Sprintf("Resampling à %gs...", raster))
		resampled, err := rec.Resample(raster)
		if err != nil {
			return nil, nil, Error.Wrap(err)
		}
		defer func() { _ = resampled.Close() }()
		rec = resampled
		if channels = convertChannels(rec); len(channels) == 0 {
			return nil, nil, ErrNoValidChannels
		}
	}

	m.progress(id, 50, "Export des colonnes...")

	header := make([]string, 1, len(channels)+1)
	header[0] = "timestamps"
	cols := make([][]float64, 1, len(channels)+1)

	var base []float64
	for _, ch := range channels {
		ts, vals, err := rec.Samples(ch.Group, ch.Index)
		if err != nil {
			return nil, nil, Error.Wrap(err)
		}
		if base == nil {
			if len(ts) == 0 {
				return nil, nil, Error.New("channel %q is empty", ch.Name)
			}
			base = ts
			cols[0] = base
		} else if !sameBase(base, ts) {
			return nil, nil, Error.New("channel %q is off the shared time base", ch.Name)
		}
		header = append(header, columnName(ch))
		cols = append(cols, vals)
	}
	return header, cols, nil
}

// extractInterpolated reads channels one by one, skipping unreadable
// ones, and projects the survivors onto a uniform raster starting at
// zero with edge clamping.
func (m *Manager) extractInterpolated(id string, rec decode.Recording, raster float64) ([]string, [][]float64, error) {
	m.progress(id, 20, "Analyse des canaux...")

	channels := convertChannels(rec)
	total := len(channels)
	if total == 0 {
		return nil, nil, ErrNoValidChannels
	}

	m.progress(id, 25, fmt.Sprintf("Lecture de %d canaux...", total))

	type column struct {
		name     string
		ts, vals []float64
	}
	read := make([]column, 0, total)
	tmin, tmax := math.Inf(1), math.Inf(-1)

	for i, ch := range channels {
		ts, vals, err := rec.Samples(ch.Group, ch.Index)
		if err != nil || len(ts) < 2 || len(ts) != len(vals) || !finiteAll(ts) {
			continue
		}
		read = append(read, column{name: columnName(ch), ts: ts, vals: vals})
		if ts[0] < tmin {
			tmin = ts[0]
		}
		if last := ts[len(ts)-1]; last > tmax {
			tmax = last
		}
		if (i+1)%50 == 0 || i+1 == total {
			pct := 25 + (i+1)*40/total
			m.progress(id, pct, fmt.Sprintf("Lecture: %d signaux (%d/%d)...", len(read), i+1, total))
		}
	}

	if len(read) == 0 {
		return nil, nil, ErrNoValidSignals
	}
	if tmin >= tmax {
		return nil, nil, &TimeRangeError{Min: tmin, Max: tmax}
	}

	m.progress(id, 68, "Interpolation...")

	if raster <= 0 {
		raster = m.cfg.DefaultRaster
	}
	duration := tmax - tmin
	n := int(math.Floor(duration/raster+1e-9)) + 1
	common := make([]float64, n)
	for i := range common {
		common[i] = float64(i) * raster
	}

	header := make([]string, 1, len(read)+1)
	header[0] = "timestamps"
	cols := make([][]float64, 1, len(read)+1)
	cols[0] = common

	for i, c := range read {
		shifted := make([]float64, len(c.ts))
		for j, t := range c.ts {
			shifted[j] = t - tmin
		}
		cols = append(cols, decode.Interpolate(common, shifted, c.vals))
		header = append(header, c.name)

		if i%500 == 0 {
			pct := 68 + i*20/len(read)
			m.progress(id, pct, fmt.Sprintf("Interpolation: %d/%d...", i, len(read)))
		}
	}
	return header, cols, nil
}

// convertChannels returns the catalog minus bookkeeping channels: time
// bases, raw CAN frame fields, helper channels.
func convertChannels(rec decode.Recording) []decode.ChannelInfo {
	var kept []decode.ChannelInfo
	for _, ch := range rec.Channels() {
		if convertDenied(ch.Name) {
			continue
		}
		kept = append(kept, ch)
	}
	return kept
}

func convertDenied(name string) bool {
	if name == "" {
		return true
	}
	lower := strings.ToLower(name)
	if strings.Contains(lower, "time") || strings.Contains(lower, "can_dataframe") {
		return true
	}
	if strings.Contains(name, "$") {
		return true
	}
	return strings.HasSuffix(name, "/isx") || strings.HasSuffix(name, "/isy")
}

// columnName renders a CSV header cell as "Name [unit]".
func columnName(ch decode.ChannelInfo) string {
	if ch.Unit == "" {
		return ch.Name
	}
	return fmt.Sprintf("%s [%s]", ch.Name, ch.Unit)
}

func sameBase(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func finiteAll(vals []float64) bool {
	for _, v := range vals {
		if !decode.IsFinite(v) {
			return false
		}
	}
	return true
}
