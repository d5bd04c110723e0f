// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package sandbox

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mleclerc/courbe/internal/models"
)

var colorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

const defaultPlotColor = "#6366f1"

// GenerateCode renders a block script into harness source. Every
// string field is escaped, enums are validated against their closed
// sets and numeric knobs are clamped; custom-code blocks go back
// through the static stage before inclusion.
func GenerateCode(script *models.Script, cfg Config) (string, error) {
	var b strings.Builder
	b.WriteString("# Script: ")
	b.WriteString(commentSafe(script.Name))
	b.WriteString("\n# Généré automatiquement à partir des blocs\n\n")

	title, author := "Rapport", ""
	if script.Settings != nil {
		if script.Settings.Title != "" {
			title = script.Settings.Title
		}
		author = script.Settings.Author
	}
	fmt.Fprintf(&b, "report = ReportBuilder(title=%s, author=%s)\n\n", pyString(title), pyString(author))

	for i, block := range script.Blocks {
		if err := renderBlock(&b, i, block, cfg); err != nil {
			return "", err
		}
	}

	b.WriteString("\n__result__ = report.render()\n")
	return b.String(), nil
}

func renderBlock(b *strings.Builder, i int, block models.ScriptBlock, cfg Config) error {
	c := block.Config
	switch block.Type {
	case models.BlockSection:
		level, err := sectionLevel(cfgString(c, "level", "H1"))
		if err != nil {
			return &BlockError{Index: i, Type: block.Type, Reason: err.Error()}
		}
		fmt.Fprintf(b, "report.add(Section(%s, level=%d))\n", pyString(cfgString(c, "title", "")), level)

	case models.BlockText:
		fmt.Fprintf(b, "report.add(Text(%s))\n", pyString(cfgString(c, "content", "")))

	case models.BlockCallout:
		kind := cfgString(c, "type", "info")
		if !oneOf(kind, models.CalloutTypes) {
			return &BlockError{Index: i, Type: block.Type, Reason: fmt.Sprintf("type d'encadré invalide: '%s'", kind)}
		}
		fmt.Fprintf(b, "report.add(Callout(%s, type=%s))\n", pyString(cfgString(c, "content", "")), pyString(kind))

	case models.BlockLinePlot:
		color, err := plotColor(c)
		if err != nil {
			return &BlockError{Index: i, Type: block.Type, Reason: err.Error()}
		}
		fmt.Fprintf(b, "report.add(LinePlot(df, x=%s, y=%s, title=%s, color=%s))\n",
			pyString(cfgString(c, "x", "time")),
			pyString(cfgString(c, "signal", "")),
			pyString(cfgString(c, "title", "")),
			pyString(color))

	case models.BlockTable:
		fmt.Fprintf(b, "report.add(Table(df, caption=%s))\n", pyString(cfgString(c, "caption", "")))

	case models.BlockMetrics:
		cols := clampInt(cfgInt(c, "columns", 4), models.MinColumns, models.MaxColumns)
		fmt.Fprintf(b, "report.add(Metrics(df, columns=%d))\n", cols)

	case models.BlockHistogram:
		bins := clampInt(cfgInt(c, "bins", 20), models.MinBins, models.MaxBins)
		fmt.Fprintf(b, "report.add(Histogram(df, y=%s, bins=%d, title=%s))\n",
			pyString(cfgString(c, "signal", "")), bins, pyString(cfgString(c, "title", "")))

	case models.BlockScatter:
		color, err := plotColor(c)
		if err != nil {
			return &BlockError{Index: i, Type: block.Type, Reason: err.Error()}
		}
		fmt.Fprintf(b, "report.add(ScatterPlot(df, x=%s, y=%s, title=%s, color=%s))\n",
			pyString(cfgString(c, "x", "")),
			pyString(cfgString(c, "y", "")),
			pyString(cfgString(c, "title", "")),
			pyString(color))

	case models.BlockCode:
		code := cfgString(c, "code", "")
		if check := Validate(code, cfg); !check.Safe {
			return &BlockError{Index: i, Type: block.Type, Reason: "code non autorisé: " + strings.Join(check.Errors, "; ")}
		}
		b.WriteString(code)
		if !strings.HasSuffix(code, "\n") {
			b.WriteString("\n")
		}

	default:
		return &BlockError{Index: i, Type: block.Type, Reason: fmt.Sprintf("type de bloc inconnu: '%s'", block.Type)}
	}
	return nil
}

func sectionLevel(level string) (int, error) {
	switch level {
	case "H1":
		return 1, nil
	case "H2":
		return 2, nil
	case "H3":
		return 3, nil
	}
	return 0, fmt.Errorf("niveau de section invalide: '%s'", level)
}

func plotColor(c map[string]interface{}) (string, error) {
	color := cfgString(c, "color", defaultPlotColor)
	if !colorRe.MatchString(color) {
		return "", fmt.Errorf("couleur invalide: '%s' (format attendu #RRGGBB)", color)
	}
	return color, nil
}

// pyString renders s as a double-quoted Python literal.
func pyString(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '"':
			b.WriteString(`\"`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func commentSafe(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "\r", " ")
}

func cfgString(c map[string]interface{}, key, def string) string {
	if c == nil {
		return def
	}
	if v, ok := c[key].(string); ok && v != "" {
		return v
	}
	return def
}

func cfgInt(c map[string]interface{}, key string, def int) int {
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

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func oneOf(v string, set []string) bool {
	for _, s := range set {
		if v == s {
			return true
		}
	}
	return false
}
