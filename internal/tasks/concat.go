// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package tasks

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/mleclerc/courbe/internal/decode"
	"github.com/mleclerc/courbe/internal/models"
)

// concatenate chains the inputs onto one continuous timeline restricted
// to their common channels. Each input is filtered to the intersection
// and staged as a temp file, the backend merges the stage, and both the
// stage and the inputs are removed afterwards. Returns the output path
// and merge stats.
func (m *Manager) concatenate(id string, inputs []string) (string, *models.ConcatStats, error) {
	n := len(inputs)
	m.progress(id, 5, fmt.Sprintf("Analyse de %d fichiers...", n))

	var common map[string]struct{}
	for i, p := range inputs {
		m.progress(id, 5+i*15/n, fmt.Sprintf("Analyse fichier %d/%d...", i+1, n))

		rec, err := m.backend.Open(p)
		if err != nil {
			return "", nil, Error.Wrap(err)
		}
		names := make(map[string]struct{})
		for _, ch := range rec.Channels() {
			names[ch.Name] = struct{}{}
		}
		_ = rec.Close()

		if i == 0 {
			common = names
			continue
		}
		for name := range common {
			if _, ok := names[name]; !ok {
				delete(common, name)
			}
		}
	}

	kept := make([]string, 0, len(common))
	for name := range common {
		if !decode.Denied(name, decode.DenyList) {
			kept = append(kept, name)
		}
	}
	sort.Strings(kept)
	if len(kept) == 0 {
		return "", nil, ErrNoCommonSignals
	}

	m.progress(id, 25, fmt.Sprintf("%d signaux communs trouvés", len(kept)))

	temps := make([]string, 0, n)
	dropTemps := func() {
		for _, t := range temps {
			m.removeIfExists(t)
		}
	}

	for i, p := range inputs {
		m.progress(id, 25+i*25/n, fmt.Sprintf("Filtrage fichier %d/%d...", i+1, n))

		rec, err := m.backend.Open(p)
		if err != nil {
			dropTemps()
			return "", nil, Error.Wrap(err)
		}
		filtered := rec.Filter(kept)
		tempPath := filepath.Join(m.cfg.Dir, fmt.Sprintf("temp_filtered_%s_%d.mf4", id, i))
		err = filtered.Save(tempPath)
		_ = filtered.Close()
		_ = rec.Close()
		if err != nil {
			dropTemps()
			return "", nil, Error.Wrap(err)
		}
		temps = append(temps, tempPath)
	}

	m.progress(id, 55, "Concaténation des fichiers...")

	merged, err := m.backend.Concatenate(temps, true, "4.10")
	if err != nil {
		dropTemps()
		return "", nil, Error.Wrap(err)
	}

	m.progress(id, 80, "Sauvegarde du fichier final...")

	outPath := filepath.Join(m.cfg.Dir, fmt.Sprintf("merged_%s.mf4", id))
	if err := merged.Save(outPath); err != nil {
		_ = merged.Close()
		dropTemps()
		return "", nil, Error.Wrap(err)
	}

	duration := 0.0
	if chs := merged.Channels(); len(chs) > 0 {
		if ts, _, err := merged.Samples(chs[0].Group, chs[0].Index); err == nil && len(ts) > 0 {
			duration = ts[len(ts)-1] - ts[0]
		}
	}
	_ = merged.Close()

	m.progress(id, 90, "Nettoyage...")
	dropTemps()
	for _, p := range inputs {
		m.removeIfExists(p)
	}

	return outPath, &models.ConcatStats{Files: n, Signals: len(kept), Duration: duration}, nil
}
