package airquality

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// SensorSource fetches sensor metadata and measurement series.
type SensorSource interface {
	// FetchSensors lists the sensors hosted at a station.
	FetchSensors(ctx context.Context, stationID int) ([]SensorDescriptor, error)

	// FetchMeasurements returns the measurement series of a sensor.
	FetchMeasurements(ctx context.Context, sensorID int) ([]Measurement, error)
}

// Provider is a complete air quality data source.
type Provider interface {
	StationSource
	SensorSource
}

// SensorServiceConfig holds configuration for the sensor service.
type SensorServiceConfig struct {
	// Source is the remote sensor API.
	Source SensorSource

	// Logger for service operations.
	Logger zerolog.Logger
}

// SensorService holds the sensor list of the selected station and a cache
// of measurement series keyed by sensor id. Cache entries are replaced
// wholesale and never expire.
type SensorService struct {
	source SensorSource
	logger zerolog.Logger

	mu        sync.RWMutex
	stationID int
	sensors   []SensorDescriptor
	cache     SensorCache
}

// NewSensorService creates a new sensor service.
func NewSensorService(cfg SensorServiceConfig) *SensorService {
	return &SensorService{
		source: cfg.Source,
		logger: cfg.Logger,
		cache:  make(SensorCache),
	}
}

// FetchSensors fetches the sensors of a station and makes them the current
// sensor list. A failed fetch clears the list.
func (s *SensorService) FetchSensors(ctx context.Context, stationID int) ([]SensorDescriptor, error) {
	sensors, err := s.source.FetchSensors(ctx, stationID)
	if err != nil {
		s.mu.Lock()
		s.stationID = 0
		s.sensors = nil
		s.mu.Unlock()

		s.logger.Error().Err(err).Int("station_id", stationID).Msg("failed to fetch sensors")
		return nil, asRemoteError(err)
	}

	list := make([]SensorDescriptor, len(sensors))
	copy(list, sensors)

	s.mu.Lock()
	s.stationID = stationID
	s.sensors = list
	s.mu.Unlock()

	s.logger.Debug().
		Int("station_id", stationID).
		Int("sensors", len(list)).
		Msg("sensors fetched")

	return s.Sensors(), nil
}

// FetchMeasurements fetches the series of a sensor and replaces its cache
// entry. A failed fetch removes the entry.
func (s *SensorService) FetchMeasurements(ctx context.Context, sensorID int) ([]Measurement, error) {
	measurements, err := s.source.FetchMeasurements(ctx, sensorID)
	if err != nil {
		s.mu.Lock()
		delete(s.cache, sensorID)
		s.mu.Unlock()

		s.logger.Error().Err(err).Int("sensor_id", sensorID).Msg("failed to fetch measurements")
		return nil, asRemoteError(err)
	}

	series := CloneMeasurements(measurements)

	s.mu.Lock()
	s.cache[sensorID] = series
	s.mu.Unlock()

	s.logger.Debug().
		Int("sensor_id", sensorID).
		Int("points", len(series)).
		Msg("measurements fetched")

	return CloneMeasurements(series), nil
}

// RemoveMeasurements evicts the cache entry of a sensor, if any.
func (s *SensorService) RemoveMeasurements(sensorID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, sensorID)
}

// StationID returns the station whose sensors are current, or 0.
func (s *SensorService) StationID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stationID
}

// Sensors returns a copy of the current sensor list.
func (s *SensorService) Sensors() []SensorDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]SensorDescriptor, len(s.sensors))
	copy(out, s.sensors)
	return out
}

// Measurements returns a copy of the cached series of a sensor.
func (s *SensorService) Measurements(sensorID int) ([]Measurement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ms, ok := s.cache[sensorID]
	if !ok {
		return nil, false
	}
	return CloneMeasurements(ms), true
}

// Cache returns a deep copy of the measurement cache.
func (s *SensorService) Cache() SensorCache {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache.Clone()
}

// Replace swaps the sensor list and the whole cache, as when restoring an
// archived snapshot.
func (s *SensorService) Replace(stationID int, sensors []SensorDescriptor, cache SensorCache) {
	list := make([]SensorDescriptor, len(sensors))
	copy(list, sensors)
	clone := cache.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stationID = stationID
	s.sensors = list
	s.cache = clone
}

func asRemoteError(err error) error {
	if errors.Is(err, ErrRemoteUnavailable) || errors.Is(err, ErrMalformedResponse) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
}
