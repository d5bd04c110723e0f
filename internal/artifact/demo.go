// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package artifact

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/mleclerc/courbe/internal/models"
)

// DemoLayoutFilename is the demo layout's name in the default tree.
const DemoLayoutFilename = "demo_obd2.json"

// DemoLayout builds the built-in OBD2 overview layout. Its signal
// names match the synthetic demo source.
func DemoLayout() *models.Layout {
	return &models.Layout{
		ID:          "demo_obd2",
		Name:        "OBD2 Overview",
		Description: "Vue d'ensemble des données OBD2 avec vitesse, RPM et températures",
		Version:     models.ArtifactVersion,
		IsDemo:      true,
		Tabs: []models.LayoutTab{
			{
				Name: "Moteur",
				Plots: []models.LayoutPlot{
					{Flex: 1.5, Signals: []models.PlotSignal{
						{Name: "VehicleSpeed", Style: models.SignalStyle{Color: "#fab387", Width: 2}},
					}},
					{Flex: 1, Signals: []models.PlotSignal{
						{Name: "EngineRPM", Style: models.SignalStyle{Color: "#89b4fa", Width: 1.5}},
					}},
					{Flex: 1, Signals: []models.PlotSignal{
						{Name: "ThrottlePosition", Style: models.SignalStyle{Color: "#a6e3a1", Width: 1.5}},
					}},
				},
			},
			{
				Name: "Températures",
				Plots: []models.LayoutPlot{
					{Flex: 1, Signals: []models.PlotSignal{
						{Name: "CoolantTemp", Style: models.SignalStyle{Color: "#f38ba8", Width: 2}},
						{Name: "IntakeAirTemp", Style: models.SignalStyle{Color: "#94e2d5", Width: 1.5}},
					}},
					{Flex: 1, Signals: []models.PlotSignal{
						{Name: "OilTemp", Style: models.SignalStyle{Color: "#f9e2af", Width: 1.5}},
					}},
				},
			},
			{
				Name: "Carburant",
				Plots: []models.LayoutPlot{
					{Flex: 1, Signals: []models.PlotSignal{
						{Name: "MAF", Style: models.SignalStyle{Color: "#cba6f7", Width: 1.5}},
						{Name: "FuelPressure", Style: models.SignalStyle{Color: "#74c7ec", Width: 1.5}},
					}},
					{Flex: 1, Signals: []models.PlotSignal{
						{Name: "O2Voltage", Style: models.SignalStyle{Color: "#f5c2e7", Width: 1.5}},
					}},
				},
			},
		},
	}
}

// RegisterDemoLayout writes the demo layout into the default tree when
// absent and reports whether it wrote. The store's default
// registration pass picks the file up afterwards.
func (s *Service) RegisterDemoLayout() (bool, error) {
	l := DemoLayout()
	now := s.now().UTC().Truncate(time.Second)
	l.CreatedAt, l.UpdatedAt = now, now

	encoded, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return false, Error.Wrap(err)
	}
	wrote, err := s.store.WriteDefault(models.CategoryLayouts, DemoLayoutFilename, encoded)
	if err != nil {
		return false, err
	}
	if wrote {
		s.log.Info().Str("filename", DemoLayoutFilename).Msg("demo layout created")
	}
	return wrote, nil
}
