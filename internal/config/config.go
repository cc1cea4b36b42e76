// Package config loads process configuration from the environment and an
// optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/airquality/gios"
	"github.com/airmonitor/airmonitor/internal/database"
	"github.com/airmonitor/airmonitor/internal/geo"
	"github.com/airmonitor/airmonitor/internal/geocoding/nominatim"
)

// Archive backends.
const (
	ArchiveBackendFile     = "file"
	ArchiveBackendPostgres = "postgres"
)

type Config struct {
	App       AppConfig
	Providers ProvidersConfig
	Archive   ArchiveConfig
	Database  database.Config
	Map       MapConfig
	Worker    WorkerConfig
	Telemetry TelemetryConfig
}

type AppConfig struct {
	Port        int
	Environment string
	Version     string
	LogLevel    string
	RequireTLS  bool
}

type ProvidersConfig struct {
	GIOSBaseURL        string
	NominatimBaseURL   string
	NominatimUserAgent string
	HTTPTimeout        time.Duration
	GeocodeRetries     int
}

type ArchiveConfig struct {
	Backend string
	Dir     string
}

type MapConfig struct {
	DefaultCenter geo.Point
	TieBreak      airquality.TieBreak
}

type WorkerConfig struct {
	CatalogRefreshInterval time.Duration
	PubSubProjectID        string
	PubSubSubscription     string
	// APIBaseURL is where cmd/worker forwards jobs to a running API server.
	APIBaseURL string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	SampleRatio  float64
}

// Load reads configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Port:        getEnvAsInt("APP_PORT", 8080),
			Environment: getEnv("APP_ENV", "development"),
			Version:     getEnv("APP_VERSION", "dev"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			RequireTLS:  getEnvAsBool("REQUIRE_TLS", false),
		},
		Providers: ProvidersConfig{
			GIOSBaseURL:        getEnv("GIOS_BASE_URL", gios.DefaultBaseURL),
			NominatimBaseURL:   getEnv("NOMINATIM_BASE_URL", nominatim.DefaultBaseURL),
			NominatimUserAgent: getEnv("NOMINATIM_USER_AGENT", nominatim.DefaultUserAgent),
			HTTPTimeout:        getEnvAsDuration("HTTP_TIMEOUT", 10*time.Second),
			GeocodeRetries:     getEnvAsInt("NOMINATIM_RETRIES", 2),
		},
		Archive: ArchiveConfig{
			Backend: strings.ToLower(getEnv("ARCHIVE_BACKEND", ArchiveBackendFile)),
			Dir:     getEnv("ARCHIVE_DIR", "./archive"),
		},
		Database: database.ConfigFromEnv(),
		Map: MapConfig{
			DefaultCenter: geo.Point{
				Lat: getEnvAsFloat("MAP_CENTER_LAT", 52.4064),
				Lon: getEnvAsFloat("MAP_CENTER_LON", 16.9252),
			},
		},
		Worker: WorkerConfig{
			CatalogRefreshInterval: getEnvAsDuration("CATALOG_REFRESH_INTERVAL", 0),
			PubSubProjectID:        getEnv("PUBSUB_PROJECT_ID", ""),
			PubSubSubscription:     getEnv("PUBSUB_SUBSCRIPTION", "airmonitor-jobs"),
			APIBaseURL:             getEnv("WORKER_API_BASE_URL", "http://localhost:8080"),
		},
		Telemetry: TelemetryConfig{
			Enabled:      getEnvAsBool("OTEL_ENABLED", false),
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SampleRatio:  getEnvAsFloat("OTEL_SAMPLE_RATIO", 1),
		},
	}

	switch strings.ToLower(getEnv("NEAREST_TIE_BREAK", "first")) {
	case "first":
		cfg.Map.TieBreak = airquality.TieBreakFirst
	case "last":
		cfg.Map.TieBreak = airquality.TieBreakLast
	default:
		return nil, fmt.Errorf("NEAREST_TIE_BREAK must be first or last")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that have no safe fallback.
func (c *Config) Validate() error {
	if c.App.Port <= 0 || c.App.Port > 65535 {
		return fmt.Errorf("APP_PORT %d out of range", c.App.Port)
	}
	switch c.Archive.Backend {
	case ArchiveBackendFile:
		if c.Archive.Dir == "" {
			return fmt.Errorf("ARCHIVE_DIR is required for the file backend")
		}
	case ArchiveBackendPostgres:
		if err := c.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	default:
		return fmt.Errorf("ARCHIVE_BACKEND must be %q or %q, got %q", ArchiveBackendFile, ArchiveBackendPostgres, c.Archive.Backend)
	}
	if !c.Map.DefaultCenter.Valid() {
		return fmt.Errorf("MAP_CENTER_LAT/MAP_CENTER_LON out of range: %s", c.Map.DefaultCenter)
	}
	if c.Providers.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.Worker.CatalogRefreshInterval < 0 {
		return fmt.Errorf("CATALOG_REFRESH_INTERVAL must not be negative")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return value
	}
	return defaultValue
}
