package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/airmonitor/airmonitor/internal/airquality"
)

// ErrTooFewStations is returned when a reload yields a suspiciously small
// catalog.
var ErrTooFewStations = errors.New("catalog refresh returned too few stations")

// CatalogReloader re-downloads the station catalog. Both the in-process
// controller and the API client satisfy it.
type CatalogReloader interface {
	ReloadCatalog(ctx context.Context) ([]airquality.Station, error)
}

// CatalogRefreshJob reloads the station catalog on demand or on a schedule.
type CatalogRefreshJob struct {
	config   RefreshConfig
	reloader CatalogReloader
	logger   zerolog.Logger

	metrics *RefreshMetrics
}

// RefreshMetrics tracks refresh job statistics.
type RefreshMetrics struct {
	mu sync.RWMutex

	TotalRefreshes    int64
	SuccessfulRefresh int64
	FailedRefreshes   int64

	LastRefreshAt       time.Time
	LastRefreshDuration time.Duration
	LastStationCount    int
	LastError           string
}

// RefreshJobConfig holds configuration for creating a CatalogRefreshJob.
type RefreshJobConfig struct {
	Config   RefreshConfig
	Reloader CatalogReloader
	Logger   zerolog.Logger
}

// NewCatalogRefreshJob creates a new refresh job.
func NewCatalogRefreshJob(cfg RefreshJobConfig) *CatalogRefreshJob {
	return &CatalogRefreshJob{
		config:   cfg.Config.withDefaults(),
		reloader: cfg.Reloader,
		logger:   cfg.Logger.With().Str("job", JobCatalogRefresh).Logger(),
		metrics:  &RefreshMetrics{},
	}
}

// RefreshResult contains the result of a refresh operation.
type RefreshResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Stations  int
	Err       error
}

// Run performs one catalog reload.
func (j *CatalogRefreshJob) Run(ctx context.Context) *RefreshResult {
	startTime := time.Now()
	result := &RefreshResult{StartTime: startTime}

	j.logger.Debug().Msg("starting catalog refresh")

	runCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	stations, err := j.reloader.ReloadCatalog(runCtx)
	switch {
	case err != nil:
		result.Err = err
	case len(stations) < j.config.MinStations:
		result.Err = fmt.Errorf("%w: got %d, want at least %d", ErrTooFewStations, len(stations), j.config.MinStations)
	default:
		result.Stations = len(stations)
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	if result.Err != nil {
		j.logger.Error().
			Err(result.Err).
			Dur("duration", result.Duration).
			Msg("catalog refresh failed")
		return result
	}

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("stations", result.Stations).
		Msg("catalog refresh completed")

	return result
}

// Loop runs the job every Interval until ctx is cancelled. A failed run is
// logged and retried at the next tick. With no interval Loop returns at once.
func (j *CatalogRefreshJob) Loop(ctx context.Context) error {
	if j.config.Interval <= 0 {
		return nil
	}

	j.logger.Info().Dur("interval", j.config.Interval).Msg("catalog refresh loop started")

	ticker := time.NewTicker(j.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			j.logger.Info().Msg("catalog refresh loop stopped")
			return ctx.Err()
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}

func (j *CatalogRefreshJob) updateMetrics(result *RefreshResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRefreshes++
	if result.Err != nil {
		j.metrics.FailedRefreshes++
		j.metrics.LastError = result.Err.Error()
	} else {
		j.metrics.SuccessfulRefresh++
		j.metrics.LastStationCount = result.Stations
		j.metrics.LastError = ""
	}
	j.metrics.LastRefreshAt = result.EndTime
	j.metrics.LastRefreshDuration = result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *CatalogRefreshJob) GetMetrics() RefreshMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return RefreshMetrics{
		TotalRefreshes:      j.metrics.TotalRefreshes,
		SuccessfulRefresh:   j.metrics.SuccessfulRefresh,
		FailedRefreshes:     j.metrics.FailedRefreshes,
		LastRefreshAt:       j.metrics.LastRefreshAt,
		LastRefreshDuration: j.metrics.LastRefreshDuration,
		LastStationCount:    j.metrics.LastStationCount,
		LastError:           j.metrics.LastError,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *CatalogRefreshJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_refreshes":       m.TotalRefreshes,
		"successful_refreshes":  m.SuccessfulRefresh,
		"failed_refreshes":      m.FailedRefreshes,
		"last_refresh_at":       m.LastRefreshAt,
		"last_refresh_duration": m.LastRefreshDuration.String(),
		"last_station_count":    m.LastStationCount,
		"last_error":            m.LastError,
	}
}
