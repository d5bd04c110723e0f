// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package artifact

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mleclerc/courbe/internal/models"
	"github.com/mleclerc/courbe/internal/sandbox"
)

var colorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// ValidateLayout checks a layout body against its schema. Persistence
// is strict: any violation is rejected with a specific message, the
// block-script code generator only clamps.
func ValidateLayout(l *models.Layout) error {
	if l == nil {
		return schemaErrorf("Le layout doit être un objet JSON")
	}
	if strings.TrimSpace(l.Name) == "" {
		return schemaErrorf("Le nom du layout est requis")
	}
	if len(l.Name) > models.MaxArtifactNameLen {
		return schemaErrorf("Le nom est trop long (max %d caractères)", models.MaxArtifactNameLen)
	}
	if len(l.Description) > models.MaxDescriptionLen {
		return schemaErrorf("La description est trop longue (max %d caractères)", models.MaxDescriptionLen)
	}
	if len(l.Tabs) == 0 {
		return schemaErrorf("Le layout doit contenir au moins un onglet")
	}
	if len(l.Tabs) > models.MaxLayoutTabs {
		return schemaErrorf("Trop d'onglets (max %d)", models.MaxLayoutTabs)
	}

	for ti, tab := range l.Tabs {
		if strings.TrimSpace(tab.Name) == "" {
			return schemaErrorf("L'onglet %d doit avoir un nom", ti+1)
		}
		if len(tab.Plots) > models.MaxPlotsPerTab {
			return schemaErrorf("Trop de plots dans l'onglet '%s' (max %d)", tab.Name, models.MaxPlotsPerTab)
		}
		for pi, plot := range tab.Plots {
			if len(plot.Signals) > models.MaxSignalsPerPlot {
				return schemaErrorf("Trop de signaux dans le plot %d (max %d)", pi+1, models.MaxSignalsPerPlot)
			}
			for si, sig := range plot.Signals {
				if strings.TrimSpace(sig.Name) == "" {
					return schemaErrorf("Le signal %d du plot %d de '%s' doit avoir un nom", si+1, pi+1, tab.Name)
				}
				if err := validateStyle(sig.Style); err != nil {
					return err
				}
			}
		}
	}

	for _, cv := range l.ComputedVariables {
		if strings.TrimSpace(cv.Name) == "" || strings.TrimSpace(cv.Formula) == "" {
			return schemaErrorf("Chaque variable calculée doit avoir 'name' et 'formula'")
		}
	}
	return nil
}

// validateStyle accepts zero values: an empty color or dash means the
// frontend default, a zero width means unset.
func validateStyle(st models.SignalStyle) error {
	if st.Color != "" && !colorRe.MatchString(st.Color) {
		return schemaErrorf("Couleur invalide: '%s' (format attendu #RRGGBB)", st.Color)
	}
	if st.Width < 0 {
		return schemaErrorf("Largeur de trait invalide")
	}
	if st.Dash != "" && !oneOf(st.Dash, models.DashStyles) {
		return schemaErrorf("Style de trait invalide: '%s'", st.Dash)
	}
	return nil
}

// ValidateScript checks a block-script body. Custom code blocks go
// through the static sandbox stage; everything else is enum, range and
// color checking per block type.
func ValidateScript(sc *models.Script, cfg sandbox.Config) error {
	if sc == nil {
		return schemaErrorf("Le script doit être un objet JSON")
	}
	if strings.TrimSpace(sc.Name) == "" {
		return schemaErrorf("Le nom du script est requis")
	}
	if len(sc.Name) > models.MaxArtifactNameLen {
		return schemaErrorf("Le nom est trop long (max %d caractères)", models.MaxArtifactNameLen)
	}
	if len(sc.Description) > models.MaxDescriptionLen {
		return schemaErrorf("La description est trop longue (max %d caractères)", models.MaxDescriptionLen)
	}
	if len(sc.Blocks) > models.MaxScriptBlocks {
		return schemaErrorf("Trop de blocs (max %d)", models.MaxScriptBlocks)
	}

	for i, block := range sc.Blocks {
		if err := validateBlock(i, block, cfg); err != nil {
			return err
		}
	}
	return nil
}

func validateBlock(i int, b models.ScriptBlock, cfg sandbox.Config) error {
	fail := func(format string, args ...interface{}) error {
		return schemaErrorf("Bloc %d (%s): %s", i+1, b.Type, fmt.Sprintf(format, args...))
	}

	if !oneOf(b.Type, models.BlockTypes) {
		return schemaErrorf("Bloc %d: type de bloc inconnu: '%s'", i+1, b.Type)
	}
	if depth := configDepth(b.Config); depth > models.MaxArtifactDepth {
		return fail("configuration trop profonde (max %d niveaux)", models.MaxArtifactDepth)
	}

	switch b.Type {
	case models.BlockSection:
		if level := configString(b.Config, "level", "H1"); !oneOf(level, models.SectionLevels) {
			return fail("niveau de section invalide: '%s'", level)
		}

	case models.BlockCallout:
		if kind := configString(b.Config, "type", "info"); !oneOf(kind, models.CalloutTypes) {
			return fail("type d'encadré invalide: '%s'", kind)
		}

	case models.BlockLinePlot, models.BlockScatter:
		if color := configString(b.Config, "color", ""); color != "" && !colorRe.MatchString(color) {
			return fail("couleur invalide: '%s' (format attendu #RRGGBB)", color)
		}

	case models.BlockMetrics:
		if cols := configInt(b.Config, "columns", 4); cols < models.MinColumns || cols > models.MaxColumns {
			return fail("nombre de colonnes hors limites (%d-%d)", models.MinColumns, models.MaxColumns)
		}

	case models.BlockHistogram:
		if bins := configInt(b.Config, "bins", 20); bins < models.MinBins || bins > models.MaxBins {
			return fail("nombre de bins hors limites (%d-%d)", models.MinBins, models.MaxBins)
		}

	case models.BlockCode:
		if check := sandbox.Validate(configString(b.Config, "code", ""), cfg); !check.Safe {
			return fail("code non autorisé: %s", strings.Join(check.Errors, "; "))
		}
	}
	return nil
}

// configDepth measures the nesting of a decoded JSON value. A scalar
// counts one level, each map or array adds one.
func configDepth(v interface{}) int {
	switch t := v.(type) {
	case map[string]interface{}:
		deepest := 0
		for _, child := range t {
			if d := configDepth(child); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	case []interface{}:
		deepest := 0
		for _, child := range t {
			if d := configDepth(child); d > deepest {
				deepest = d
			}
		}
		return deepest + 1
	default:
		return 1
	}
}

func configString(c map[string]interface{}, key, def string) string {
	if c == nil {
		return def
	}
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return def
}

func configInt(c map[string]interface{}, key string, def int) int {
	if c == nil {
		return def
	}
	switch v := c[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	}
	return def
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
