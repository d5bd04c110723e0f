// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package models

import "time"

// Layout caps.
const (
	MaxLayoutTabs      = 20
	MaxPlotsPerTab     = 10
	MaxSignalsPerPlot  = 10
	MaxArtifactNameLen = 100
	MaxArtifactDepth   = 10
	MaxScriptBlocks    = 100
)

// ArtifactVersion is the current layout/script format version, stored
// with every artifact for future migrations.
const ArtifactVersion = 1

// SignalStyle is a plot trace's rendering style.
type SignalStyle struct {
	Color string  `json:"color"`
	Width float64 `json:"width"`
	Dash  string  `json:"dash"`
}

// Dash styles allowed in SignalStyle.Dash.
var DashStyles = []string{"solid", "dash", "dot", "dashdot"}

// PlotSignal binds a signal name to its style inside a plot.
type PlotSignal struct {
	Name  string      `json:"name"`
	Style SignalStyle `json:"style"`
}

// LayoutPlot is one plot within a tab. Flex is the splitter ratio the
// frontend restores when the layout loads.
type LayoutPlot struct {
	Title   string       `json:"title,omitempty"`
	Flex    float64      `json:"flex,omitempty"`
	Signals []PlotSignal `json:"signals"`
}

// LayoutTab is one named tab of plots.
type LayoutTab struct {
	Name  string       `json:"name"`
	Plots []LayoutPlot `json:"plots"`
}

// LayoutVariable is a computed-variable definition saved with a
// layout, enough to recreate the signal when the layout is applied to
// a session.
type LayoutVariable struct {
	Name        string            `json:"name"`
	Unit        string            `json:"unit,omitempty"`
	Description string            `json:"description,omitempty"`
	Formula     string            `json:"formula"`
	Mapping     map[string]string `json:"mapping,omitempty"`
}

// Layout is a persisted view layout artifact.
type Layout struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description,omitempty"`
	Tabs              []LayoutTab      `json:"tabs"`
	ComputedVariables []LayoutVariable `json:"computed_variables,omitempty"`
	Version           int              `json:"version"`
	IsDemo            bool             `json:"is_demo"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// Script block types (closed set).
const (
	BlockSection   = "section"
	BlockText      = "text"
	BlockCallout   = "callout"
	BlockLinePlot  = "line_plot"
	BlockTable     = "table"
	BlockMetrics   = "metrics"
	BlockHistogram = "histogram"
	BlockScatter   = "scatter"
	BlockCode      = "code"
)

// BlockTypes is the closed set of script block types.
var BlockTypes = []string{
	BlockSection, BlockText, BlockCallout, BlockLinePlot,
	BlockTable, BlockMetrics, BlockHistogram, BlockScatter, BlockCode,
}

// Section heading levels and callout variants (closed sets).
var (
	SectionLevels = []string{"H1", "H2", "H3"}
	CalloutTypes  = []string{"info", "warning", "success", "error"}
)

// Script numeric knob bounds.
const (
	MinColumns = 1
	MaxColumns = 10
	MinBins    = 1
	MaxBins    = 100
)

// ScriptBlock is one typed block of an analysis script. Config keys
// depend on the block type and are validated by internal/artifact.
type ScriptBlock struct {
	ID     string                 `json:"id"`
	Type   string                 `json:"type"`
	Config map[string]interface{} `json:"config"`
}

// ScriptSettings carries report presentation knobs.
type ScriptSettings struct {
	Title     string `json:"title,omitempty"`
	Author    string `json:"author,omitempty"`
	MappingID string `json:"mapping_id,omitempty"`
}

// Script is a persisted block-script artifact. The LastRun fields are
// stamped after each execution of the saved script.
type Script struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	Blocks          []ScriptBlock   `json:"blocks"`
	Settings        *ScriptSettings `json:"settings,omitempty"`
	Version         int             `json:"version"`
	IsDemo          bool            `json:"is_demo"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	LastRun         *time.Time      `json:"last_run,omitempty"`
	LastRunStatus   string          `json:"last_run_status,omitempty"`
	LastRunDuration float64         `json:"last_run_duration,omitempty"`
}
