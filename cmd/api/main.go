// Package main provides the entrypoint for the airmonitor API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/airquality/gios"
	"github.com/airmonitor/airmonitor/internal/api"
	"github.com/airmonitor/airmonitor/internal/api/handler"
	"github.com/airmonitor/airmonitor/internal/api/middleware"
	"github.com/airmonitor/airmonitor/internal/archive"
	"github.com/airmonitor/airmonitor/internal/config"
	"github.com/airmonitor/airmonitor/internal/controller"
	"github.com/airmonitor/airmonitor/internal/database"
	"github.com/airmonitor/airmonitor/internal/geocoding/nominatim"
	"github.com/airmonitor/airmonitor/internal/provider/resilience"
	"github.com/airmonitor/airmonitor/internal/telemetry"
	"github.com/airmonitor/airmonitor/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "airmonitor-api"

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}
	if cfg.App.Version == "dev" {
		cfg.App.Version = Version
	}

	// Setup structured logging
	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", cfg.App.Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.App.Environment).
		Msg("starting airmonitor API")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize OpenTelemetry
	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}
	providerMetrics, err := telemetry.NewProviderMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize provider metrics")
		os.Exit(1)
	}

	// Remote providers
	registry := resilience.NewRegistry()

	giosClient := gios.NewClient(gios.ClientConfig{
		BaseURL:  cfg.Providers.GIOSBaseURL,
		Timeout:  cfg.Providers.HTTPTimeout,
		Registry: registry,
		Metrics:  providerMetrics,
		Logger:   log,
	})
	geocoder := nominatim.NewClient(nominatim.ClientConfig{
		BaseURL:    cfg.Providers.NominatimBaseURL,
		UserAgent:  cfg.Providers.NominatimUserAgent,
		Timeout:    cfg.Providers.HTTPTimeout,
		RetryCount: cfg.Providers.GeocodeRetries,
		Metrics:    providerMetrics,
		Logger:     log,
	})

	catalog := airquality.NewCatalog(airquality.CatalogConfig{Source: giosClient, Logger: log})
	sensors := airquality.NewSensorService(airquality.SensorServiceConfig{Source: giosClient, Logger: log})
	resolver := airquality.NewResolver(airquality.ResolverConfig{TieBreak: cfg.Map.TieBreak})

	// Archive storage
	var checks []handler.Check
	var repo archive.Repository
	switch cfg.Archive.Backend {
	case config.ArchiveBackendPostgres:
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		log.Info().
			Str("database", cfg.Database.Redacted()).
			Msg("database connected")

		pgRepo := archive.NewPostgresRepository(pool, log)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to prepare archive schema")
		}
		repo = pgRepo
		checks = append(checks, handler.Check{Name: "database", Fn: pool.Ping})
	default:
		repo = archive.NewFileRepository(cfg.Archive.Dir, log)
		log.Info().Str("dir", cfg.Archive.Dir).Msg("using file archive")
	}

	archives := archive.NewService(archive.ServiceConfig{
		Repository: repo,
		Stations:   catalog,
		Logger:     log,
	})
	checks = append(checks, handler.Check{
		Name: "archive",
		Fn: func(ctx context.Context) error {
			_, err := archives.List(ctx)
			return err
		},
	})
	checks = append(checks, handler.Check{
		Name: "catalog",
		Fn: func(context.Context) error {
			if catalog.Len() == 0 {
				return errors.New("station catalog is empty")
			}
			return nil
		},
	})

	// Controller
	ctrl := controller.New(controller.Config{
		Catalog:       catalog,
		Sensors:       sensors,
		Resolver:      resolver,
		Geocoder:      geocoder,
		Archives:      archives,
		DefaultCenter: cfg.Map.DefaultCenter,
		Logger:        log,
	})
	go func() {
		if err := ctrl.Run(ctx); err != nil {
			log.Error().Err(err).Msg("controller stopped")
		}
	}()

	if err := ctrl.Start(ctx); err != nil {
		// The UI can retry through POST /v1/stations/reload.
		log.Warn().Err(err).Msg("initial load incomplete")
	}

	refreshJob := worker.NewCatalogRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Interval: cfg.Worker.CatalogRefreshInterval,
			Timeout:  2 * cfg.Providers.HTTPTimeout,
		},
		Reloader: ctrl,
		Logger:   log,
	})
	go func() {
		_ = refreshJob.Loop(ctx)
	}()

	router := api.NewRouter(api.RouterConfig{
		Version:     cfg.App.Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		RequireTLS:  cfg.App.RequireTLS,
		Controller:  ctrl,
		Archives:    archives,
		Registry:    registry,
		Checks:      checks,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	stop()

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	select {
	case <-ctrl.Done():
	case <-shutdownCtx.Done():
	}

	log.Info().Msg("server stopped")
}
