// Package api provides the HTTP API of the air monitor service.
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/airmonitor/airmonitor/internal/api/handler"
	"github.com/airmonitor/airmonitor/internal/api/middleware"
	"github.com/airmonitor/airmonitor/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	Controller handler.Orchestrator
	Archives   handler.ArchiveReader
	Registry   *resilience.Registry
	Checks     []handler.Check

	// EventHeartbeat is the SSE keep-alive interval (default: 15s).
	EventHeartbeat time.Duration
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "airmonitor-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))
	r.Use(middleware.ContentTypeJSON)

	opsHandler := handler.NewOpsHandler(handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Checks:    cfg.Checks,
	})
	stateHandler := handler.NewStateHandler(cfg.Controller)
	stationHandler := handler.NewStationHandler(cfg.Controller, cfg.Logger)
	sensorHandler := handler.NewSensorHandler(cfg.Controller)
	archiveHandler := handler.NewArchiveHandler(cfg.Controller, cfg.Archives, cfg.Logger)
	eventsHandler := handler.NewEventsHandler(cfg.Controller, cfg.EventHeartbeat, cfg.Logger)

	geocodeRateLimit := middleware.RateLimitByIP(middleware.GeocodeRateLimit)
	remoteRateLimit := middleware.RateLimitByIP(middleware.RemoteRateLimit)
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		r.Group(func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Use(middleware.RequireJSON)

			r.Get("/state", stateHandler.GetState)
			r.Get("/events", eventsHandler.Stream)

			r.Get("/stations", stationHandler.ListStations)
			r.Put("/stations/{stationId}/match", stationHandler.SetMatch)
			r.Get("/sensors", sensorHandler.ListSensors)
			r.Delete("/sensors/{sensorId}/measurements", sensorHandler.RemoveMeasurements)

			r.Route("/archives", func(r chi.Router) {
				r.Get("/", archiveHandler.ListArchives)
				r.Post("/", archiveHandler.SaveArchive)
				r.Post("/{stationId}/restore", archiveHandler.RestoreArchive)
				r.Get("/{stationId}/export", archiveHandler.ExportArchive)
			})

			// Endpoints that call the remote station API.
			r.With(remoteRateLimit).Post("/stations/reload", stationHandler.ReloadStations)
			r.With(remoteRateLimit).Post("/stations/{stationId}/sensors", sensorHandler.FetchSensors)
			r.With(remoteRateLimit).Post("/sensors/{sensorId}/measurements", sensorHandler.FetchMeasurements)

			// Search goes through the public geocoder.
			r.With(geocodeRateLimit).Post("/search", stationHandler.Search)
		})
	})

	return r
}
