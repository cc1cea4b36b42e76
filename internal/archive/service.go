package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/airmonitor/airmonitor/internal/airquality"
)

// StationLookup finds catalog stations by id.
type StationLookup interface {
	Lookup(id int) (airquality.Station, bool)
}

// ServiceConfig holds configuration for the archive service.
type ServiceConfig struct {
	Repository Repository
	Stations   StationLookup

	// Now returns the save time. Defaults to time.Now.
	Now func() time.Time

	Logger zerolog.Logger
}

// SaveRequest names the station to snapshot. Empty CityName or Address
// fall back to the catalog values.
type SaveRequest struct {
	StationID int
	CityName  string
	Address   string
}

// Service saves, lists and restores archive records.
type Service struct {
	repo     Repository
	stations StationLookup
	now      func() time.Time
	logger   zerolog.Logger
}

// NewService creates a new archive service.
func NewService(cfg ServiceConfig) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:     cfg.Repository,
		stations: cfg.Stations,
		now:      now,
		logger:   cfg.Logger,
	}
}

// Save snapshots sensors and their cached series for the requested station.
// Sensors without a cache entry are saved with an empty series. The record
// is a deep copy, so later changes to cache do not reach it.
func (s *Service) Save(ctx context.Context, req SaveRequest, sensors []airquality.SensorDescriptor, cache airquality.SensorCache) (*Record, error) {
	station, ok := s.stations.Lookup(req.StationID)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrStationNotFound, req.StationID)
	}

	rec := &Record{
		StationID:   station.ID,
		StationName: station.Name,
		CityName:    firstNonEmpty(req.CityName, station.City),
		Address:     firstNonEmpty(req.Address, station.Address),
		Latitude:    station.Location.Lat,
		Longitude:   station.Location.Lon,
		SaveDate:    FormatSaveDate(s.now()),
		Sensors:     make([]SensorRecord, 0, len(sensors)),
	}
	for _, d := range sensors {
		rec.Sensors = append(rec.Sensors, SensorRecord{
			SensorID:     d.SensorID,
			ParamName:    d.ParamName,
			Measurements: airquality.CloneMeasurements(cache[d.SensorID]),
		})
	}

	if err := s.repo.Create(ctx, rec); err != nil {
		s.logger.Error().
			Err(err).
			Int("station_id", rec.StationID).
			Str("save_date", rec.SaveDate).
			Msg("failed to save archive record")
		if errors.Is(err, ErrRecordExists) || errors.Is(err, ErrPersistence) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	s.logger.Info().
		Int("station_id", rec.StationID).
		Str("save_date", rec.SaveDate).
		Int("sensors", len(rec.Sensors)).
		Msg("archive record saved")

	return rec.Clone(), nil
}

// List returns summaries of all saved records.
func (s *Service) List(ctx context.Context) ([]Summary, error) {
	out, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []Summary{}
	}
	return out, nil
}

// Load returns the record saved for stationID at saveDate. saveDate may use
// any RFC 3339 offset. A value that is not RFC 3339, such as a local time
// written by another tool, must match the stored saveDate exactly.
func (s *Service) Load(ctx context.Context, stationID int, saveDate string) (*Record, error) {
	normalized, err := NormalizeSaveDate(saveDate)
	if err != nil {
		if saveDate == "" {
			return nil, fmt.Errorf("%w: %v", ErrRecordNotFound, err)
		}
		s.logger.Debug().Err(err).Int("station_id", stationID).Msg("loading archive record by raw save date")
		normalized = saveDate
	}
	return s.repo.Get(ctx, stationID, normalized)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
