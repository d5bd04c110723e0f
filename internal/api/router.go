// Courbe - Automotive Time-Series Exploration and Analysis Backend
// Copyright 2026 M. Leclerc (mleclerc)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mleclerc/courbe

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/mleclerc/courbe/internal/artifact"
	"github.com/mleclerc/courbe/internal/auth"
	"github.com/mleclerc/courbe/internal/config"
	"github.com/mleclerc/courbe/internal/eda"
	"github.com/mleclerc/courbe/internal/logging"
	"github.com/mleclerc/courbe/internal/middleware"
	"github.com/mleclerc/courbe/internal/sandbox"
	"github.com/mleclerc/courbe/internal/storage"
	"github.com/mleclerc/courbe/internal/tasks"
	"github.com/mleclerc/courbe/internal/usage"
	"github.com/mleclerc/courbe/internal/view"
)

// Server bundles the services behind the HTTP handlers. Handlers never
// reach around it to global state.
type Server struct {
	cfg        *config.Config
	auth       *auth.Manager
	store      *storage.Store
	eda        *eda.Manager
	tasks      *tasks.Manager
	views      *view.Registry
	runner     *sandbox.Runner
	sandboxCfg sandbox.Config
	artifacts  *artifact.Service
	usage      *usage.Collector
	log        zerolog.Logger
}

// New assembles the handler set. All dependencies are required.
func New(
	cfg *config.Config,
	am *auth.Manager,
	store *storage.Store,
	sessions *eda.Manager,
	tm *tasks.Manager,
	views *view.Registry,
	runner *sandbox.Runner,
	sandboxCfg sandbox.Config,
	artifacts *artifact.Service,
	collector *usage.Collector,
) *Server {
	return &Server{
		cfg:        cfg,
		auth:       am,
		store:      store,
		eda:        sessions,
		tasks:      tm,
		views:      views,
		runner:     runner,
		sandboxCfg: sandboxCfg,
		artifacts:  artifacts,
		usage:      collector,
		log:        logging.WithComponent("api"),
	}
}

// Routes builds the chi router: the global middleware stack, the
// operator surfaces and every API group with its rate-limit class and
// access gate.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	production := s.cfg.Server.Environment == "production"

	r.Use(middleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.SecurityHeaders(production))
	r.Use(CORSHandler(s.cfg.Server.CORSOrigins))
	r.Use(middleware.BodyLimit(s.cfg.Server.MaxBodyBytes))
	r.Use(middleware.Prometheus)
	r.Use(middleware.UsageObserver(s.usage))
	r.Use(middleware.Compression)
	r.Use(s.Authenticate)

	// Operator surfaces. /metrics is the Prometheus exposition, not the
	// anonymized product reports under /api/metrics.
	r.Get("/health", s.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(RateLimit(RateLimitLogin))
				r.Post("/register", s.Register)
				r.Post("/login", s.Login)
			})
			r.Group(func(r chi.Router) {
				r.Use(RateLimit(RateLimitAPI))
				r.Get("/features", s.Features)
				r.Group(func(r chi.Router) {
					r.Use(s.RequireAuth)
					r.Post("/logout", s.Logout)
					r.Get("/me", s.Me)
					r.Put("/me", s.UpdateMe)
					r.Post("/change-password", s.ChangePassword)
				})
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RateLimit(RateLimitAPI), s.RequireAdmin)
			r.Get("/users", s.AdminListUsers)
			r.Get("/users/{id}", s.AdminGetUser)
			r.Put("/users/{id}", s.AdminUpdateUser)
			r.Delete("/users/{id}", s.AdminDeleteUser)
			r.Put("/users/{id}/quota", s.AdminSetQuota)
			r.Post("/sessions/cleanup", s.AdminCleanupSessions)
			r.Get("/storage/stats", s.AdminStorageStats)
		})

		// Demo sources are public; anonymous callers share the default
		// activation scope.
		r.Group(func(r chi.Router) {
			r.Use(RateLimit(RateLimitAPI))
			r.Get("/sources", s.Sources)
			r.Post("/source/{id}", s.ActivateSource)
			r.Get("/info", s.SourceInfo)
			r.Get("/view", s.SourceView)
		})

		r.Route("/eda", func(r chi.Router) {
			r.Use(s.RequireAuth)
			r.With(RateLimit(RateLimitUploads), s.RequireFeature(auth.FeatureUploadFiles)).
				Post("/upload", s.EDAUpload)
			r.Group(func(r chi.Router) {
				r.Use(RateLimit(RateLimitAPI))
				r.Get("/list-signals/{session}", s.EDAListSignals)
				r.Post("/preload-signal/{session}/{index}", s.EDAPreloadSignal)
				r.Get("/view/{session}", s.EDAView)
				r.Get("/session/{session}", s.EDAStatus)
				r.Delete("/session/{session}", s.EDAClose)
				r.Route("/computed/{session}", func(r chi.Router) {
					r.Get("/", s.EDAListComputed)
					r.Post("/", s.EDACreateComputed)
					r.Put("/{index}", s.EDAUpdateComputed)
					r.Delete("/{index}", s.EDADeleteComputed)
				})
			})
		})

		r.Route("/convert", func(r chi.Router) {
			r.With(RateLimit(RateLimitAPI)).Get("/formats", s.ConvertFormats)
			r.Group(func(r chi.Router) {
				r.Use(s.RequireAuth, s.RequireFeature(auth.FeatureConvertFiles))
				r.With(RateLimit(RateLimitUploads)).Post("/upload", s.ConvertUpload)
				r.Group(func(r chi.Router) {
					r.Use(RateLimit(RateLimitAPI))
					r.Post("/start", s.ConvertStart)
					r.Get("/status/{task}", s.ConvertStatus)
					r.Get("/download/{task}", s.ConvertDownload)
					r.With(s.RequireAdmin).Post("/cleanup", s.ConvertCleanup)
				})
			})
		})

		r.Route("/concat", func(r chi.Router) {
			r.Use(s.RequireAuth, s.RequireFeature(auth.FeatureConvertFiles))
			r.With(RateLimit(RateLimitUploads)).Post("/upload-single", s.ConcatUploadSingle)
			r.Group(func(r chi.Router) {
				r.Use(RateLimit(RateLimitAPI))
				r.Post("/start", s.ConcatStart)
				r.Get("/status/{task}", s.ConcatStatus)
				r.Get("/download/{task}", s.ConcatDownload)
			})
		})

		r.Route("/storage", func(r chi.Router) {
			// The demo assets are public.
			r.Group(func(r chi.Router) {
				r.Use(RateLimit(RateLimitAPI))
				r.Get("/default", s.StorageListDefaults)
				r.Get("/default/{id}/download", s.StorageDownloadDefault)
			})
			r.Group(func(r chi.Router) {
				r.Use(s.RequireAuth)
				r.With(RateLimit(RateLimitUploads), s.RequireFeature(auth.FeatureUploadFiles)).
					Post("/files/{category}", s.StorageUpload)
				r.With(RateLimit(RateLimitUploads), s.RequireFeature(auth.FeatureUploadFiles)).
					Post("/json/{category}", s.StorageSaveJSON)
				r.Group(func(r chi.Router) {
					r.Use(RateLimit(RateLimitAPI))
					r.Get("/info", s.StorageInfo)
					r.Get("/files", s.StorageListFiles)
					r.Get("/files/{id}", s.StorageGetFile)
					r.Put("/files/{id}", s.StorageUpdateFile)
					r.Delete("/files/{id}", s.StorageDeleteFile)
					r.Get("/files/{id}/download", s.StorageDownloadFile)
					r.Get("/files/{id}/content", s.StorageFileContent)
				})
			})
		})

		r.Route("/layouts", func(r chi.Router) {
			r.Use(RateLimit(RateLimitAPI))
			r.Get("/", s.ListLayouts)
			r.Get("/{id}", s.GetLayout)
			r.Group(func(r chi.Router) {
				r.Use(s.RequireAuth, s.RequireFeature(auth.FeatureSaveLayouts))
				r.Post("/", s.CreateLayout)
				r.Put("/{id}", s.UpdateLayout)
				r.Delete("/{id}", s.DeleteLayout)
			})
		})

		r.Route("/scripts", func(r chi.Router) {
			r.Use(RateLimit(RateLimitAPI))
			r.Get("/", s.ListScripts)
			r.Get("/allowed-modules", s.ScriptAllowedModules)
			r.Get("/{id}", s.GetScript)
			r.Group(func(r chi.Router) {
				r.Use(s.RequireAuth, s.RequireFeature(auth.FeatureCreateScripts))
				r.Post("/", s.CreateScript)
				r.Put("/{id}", s.UpdateScript)
				r.Delete("/{id}", s.DeleteScript)
			})
			r.Group(func(r chi.Router) {
				r.Use(s.RequireAuth, s.RequireFeature(auth.FeatureRunScripts))
				r.Post("/validate", s.ScriptValidate)
				r.Post("/preview", s.ScriptPreview)
				r.Post("/run", s.ScriptRun)
			})
		})

		r.Route("/reports", func(r chi.Router) {
			r.Use(RateLimit(RateLimitAPI))
			r.With(s.RequireFeature(auth.FeatureViewReports)).Get("/", s.ListReports)
			r.With(s.RequireFeature(auth.FeatureViewReports)).Get("/{id}/download", s.ReportDownload)
			r.With(s.RequireAuth).Post("/", s.SaveReport)
			r.With(s.RequireFeature(auth.FeatureDeleteReports)).Delete("/{id}", s.DeleteReport)
		})

		r.Route("/metrics", func(r chi.Router) {
			r.Use(RateLimit(RateLimitAPI))
			r.Get("/health", s.MetricsHealth)
			r.Group(func(r chi.Router) {
				r.Use(s.RequireFeature(auth.FeatureViewMetrics))
				r.Get("/current", s.MetricsCurrent)
				r.Get("/daily", s.MetricsDaily)
				r.Get("/daily/{date}", s.MetricsDaily)
				r.Get("/weekly", s.MetricsWeekly)
			})
			r.With(s.RequireAdmin).Post("/cleanup", s.MetricsCleanup)
		})
	})

	return r
}
