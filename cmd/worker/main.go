// Package main provides the entrypoint for the airmonitor worker. It
// receives job messages from Pub/Sub and forwards them to the API server.
// Without a Pub/Sub project it refreshes the catalog on a timer instead.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/airmonitor/airmonitor/internal/apiclient"
	"github.com/airmonitor/airmonitor/internal/config"
	"github.com/airmonitor/airmonitor/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "airmonitor-worker"

	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Str("api", cfg.Worker.APIBaseURL).
		Msg("starting airmonitor worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := apiclient.New(apiclient.Config{
		BaseURL:    cfg.Worker.APIBaseURL,
		UserAgent:  serviceName + "/" + Version,
		RetryCount: 2,
		Logger:     log,
	})

	refreshJob := worker.NewCatalogRefreshJob(worker.RefreshJobConfig{
		Config: worker.RefreshConfig{
			Interval: cfg.Worker.CatalogRefreshInterval,
		},
		Reloader: client,
		Logger:   log,
	})
	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		RefreshJob:  refreshJob,
		HealthCheck: client.Ready,
		Logger:      log,
	})

	// Worker also exposes a health endpoint for Cloud Run
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":  "healthy",
			"version": Version,
			"refresh": refreshJob.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	if cfg.Worker.PubSubProjectID != "" {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.Worker.PubSubProjectID,
			SubscriptionName: cfg.Worker.PubSubSubscription,
			Dispatcher:       dispatcher,
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("pubsub receive stopped")
		}
	} else {
		if cfg.Worker.CatalogRefreshInterval <= 0 {
			log.Warn().Msg("no pubsub project and no refresh interval; worker is idle")
		}
		if err := refreshJob.Loop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("refresh loop stopped")
		}
		<-ctx.Done()
	}

	log.Info().Msg("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
