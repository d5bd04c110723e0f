// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mleclerc/courbe/internal/api"
	"github.com/mleclerc/courbe/internal/artifact"
	"github.com/mleclerc/courbe/internal/auth"
	"github.com/mleclerc/courbe/internal/config"
	"github.com/mleclerc/courbe/internal/database"
	"github.com/mleclerc/courbe/internal/decode"
	"github.com/mleclerc/courbe/internal/eda"
	"github.com/mleclerc/courbe/internal/logging"
	"github.com/mleclerc/courbe/internal/ratelimit"
	"github.com/mleclerc/courbe/internal/sandbox"
	"github.com/mleclerc/courbe/internal/storage"
	"github.com/mleclerc/courbe/internal/supervisor"
	"github.com/mleclerc/courbe/internal/supervisor/services"
	"github.com/mleclerc/courbe/internal/tasks"
	"github.com/mleclerc/courbe/internal/usage"
	"github.com/mleclerc/courbe/internal/view"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Config errors surface through the default logger; Init never ran.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("db_path", cfg.Database.Path).
		Str("storage_root", cfg.Storage.Root).
		Msg("Starting Courbe")

	db, err := database.New(&cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized")

	// Identity: sliding-window lockouts in front of the account store.
	limiter := ratelimit.New(ratelimit.Config{
		Window:      cfg.RateLimit.Window,
		MaxAttempts: cfg.RateLimit.MaxAttempts,
		Lockout:     cfg.RateLimit.Lockout,
	})
	features, err := auth.NewFeatures()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build role/feature model")
	}
	authManager, err := auth.NewManager(db, limiter, features, &cfg.Auth)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize auth manager")
	}

	store, err := storage.New(db, &cfg.Storage)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize file store")
	}

	backend := decode.NewSynthetic()

	sessions := eda.NewManager(backend, eda.Config{
		SessionTTL:     cfg.EDA.SessionTTL,
		MaxSessions:    cfg.EDA.MaxSessions,
		DenyList:       cfg.EDA.ChannelDenyList,
		MaxViewSignals: cfg.EDA.MaxViewSignals,
	})

	taskManager, err := tasks.NewManager(backend, tasks.Config{
		Dir:           cfg.Tasks.Dir,
		Parallelism:   cfg.Tasks.Parallelism,
		ConvertMaxAge: cfg.Tasks.ConvertMaxAge,
		ConcatMaxAge:  cfg.Tasks.ConcatMaxAge,
		DefaultRaster: cfg.Tasks.DefaultRaster,
		CSVChunkRows:  cfg.Tasks.CSVChunkRows,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize task pipeline")
	}

	sandboxCfg := sandbox.Config{
		PythonPath:     cfg.Sandbox.PythonPath,
		WallTimeout:    cfg.Sandbox.WallTimeout,
		MemoryLimit:    cfg.Sandbox.MemoryLimit,
		MaxCodeLength:  cfg.Sandbox.MaxCodeLength,
		MaxNodes:       cfg.Sandbox.MaxNodes,
		MaxStringChars: cfg.Sandbox.MaxStringChars,
	}
	runner := sandbox.NewRunner(sandboxCfg)

	artifacts := artifact.NewService(store, sandboxCfg)

	collector, err := usage.New(cfg.Usage)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize usage collector")
	}

	// Default assets: the demo layout file first, then the registration
	// pass that turns every default file into a catalog row, then a
	// reconciliation for rows whose files vanished between runs.
	startupCtx := context.Background()
	if _, err := artifacts.RegisterDemoLayout(); err != nil {
		logging.Warn().Err(err).Msg("Demo layout registration failed")
	}
	if n, err := store.RegisterDefaults(startupCtx); err != nil {
		logging.Warn().Err(err).Msg("Default file registration failed")
	} else if n > 0 {
		logging.Info().Int("files", n).Msg("Default files registered")
	}
	if n, err := store.CleanupOrphans(startupCtx, ""); err != nil {
		logging.Warn().Err(err).Msg("Orphan reconciliation failed")
	} else if n > 0 {
		logging.Info().Int("rows", n).Msg("Orphaned file rows removed")
	}

	// Demo data source for anonymous exploration.
	views := view.NewRegistry(cfg.EDA.MaxViewSignals)
	demoSource, err := view.NewSource("demo_obd2", "Démo OBD2",
		"Trajet urbain simulé, 20 signaux OBD2", decode.NewDemo(), cfg.EDA.ChannelDenyList)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build demo source")
	}
	views.Register(demoSource)
	logging.Info().Str("source", "demo_obd2").Msg("Demo source registered")

	handlers := api.New(cfg, authManager, store, sessions, taskManager, views,
		runner, sandboxCfg, artifacts, collector)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      handlers.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree, err := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to create supervisor tree")
	}

	// Maintenance loops under the data layer. Each sweep is independent;
	// a panic in one restarts it without touching the others.
	tree.AddDataService(services.NewSweepService("task-janitor", cfg.Tasks.JanitorInterval,
		func(context.Context) {
			if n := taskManager.Cleanup(); n > 0 {
				logging.Info().Int("tasks", n).Msg("Janitor removed finished tasks")
			}
			taskManager.SweepLimiters()
		}))
	tree.AddDataService(services.NewSweepService("session-evictor", cfg.EDA.SessionTTL/4,
		func(context.Context) {
			if n := sessions.Cleanup(); n > 0 {
				logging.Info().Int("sessions", n).Msg("Idle recording sessions evicted")
			}
		}))
	tree.AddDataService(services.NewSweepService("token-sweep", cfg.Auth.SessionSweepInterval,
		func(ctx context.Context) {
			if n, err := authManager.CleanupExpiredSessions(ctx); err != nil {
				logging.Warn().Err(err).Msg("Expired session sweep failed")
			} else if n > 0 {
				logging.Info().Int64("sessions", n).Msg("Expired sessions removed")
			}
			limiter.CleanupExpired()
		}))
	tree.AddDataService(services.NewSweepService("usage-flusher", collector.FlushInterval(),
		func(context.Context) {
			if err := collector.Flush(); err != nil {
				logging.Warn().Err(err).Msg("Usage flush failed")
			}
		}))

	tree.AddAPIService(services.NewHTTPServerService(server, supervisor.DefaultTreeConfig().ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}
	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	// Final flush so the day's rollup survives the restart.
	if err := collector.Flush(); err != nil {
		logging.Warn().Err(err).Msg("Final usage flush failed")
	}

	logging.Info().Msg("Application stopped gracefully")
}
