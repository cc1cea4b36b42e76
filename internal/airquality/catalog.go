package airquality

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// StationSource lists every known monitoring station.
type StationSource interface {
	FetchStations(ctx context.Context) ([]Station, error)
}

// CatalogConfig holds configuration for the station catalog.
type CatalogConfig struct {
	// Source is the remote station listing.
	Source StationSource

	// Logger for catalog operations.
	Logger zerolog.Logger
}

// Catalog is the in-memory collection of all known stations.
// A load replaces the whole collection or nothing.
type Catalog struct {
	source StationSource
	logger zerolog.Logger

	mu       sync.RWMutex
	stations []Station
	index    map[int]int
	loadedAt time.Time
}

// NewCatalog creates an empty catalog.
func NewCatalog(cfg CatalogConfig) *Catalog {
	return &Catalog{
		source: cfg.Source,
		logger: cfg.Logger,
		index:  make(map[int]int),
	}
}

// Load fetches the full station listing and replaces the catalog with it.
// On failure the previous catalog is left untouched.
func (c *Catalog) Load(ctx context.Context) ([]Station, error) {
	c.logger.Debug().Msg("loading station catalog")

	fetched, err := c.source.FetchStations(ctx)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to load station catalog")
		return nil, asRemoteError(err)
	}

	stations := make([]Station, 0, len(fetched))
	index := make(map[int]int, len(fetched))
	for _, s := range fetched {
		if _, dup := index[s.ID]; dup {
			c.logger.Warn().Int("station_id", s.ID).Msg("duplicate station id in listing, keeping first")
			continue
		}
		index[s.ID] = len(stations)
		stations = append(stations, s)
	}

	c.mu.Lock()
	c.stations = stations
	c.index = index
	c.loadedAt = time.Now()
	c.mu.Unlock()

	c.logger.Info().
		Int("stations", len(stations)).
		Msg("station catalog loaded")

	return c.Stations(), nil
}

// Stations returns a copy of the catalog in listing order.
func (c *Catalog) Stations() []Station {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Station, len(c.stations))
	copy(out, c.stations)
	return out
}

// Lookup returns the station with the given id.
func (c *Catalog) Lookup(id int) (Station, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	i, ok := c.index[id]
	if !ok {
		return Station{}, false
	}
	return c.stations[i], true
}

// Len returns the number of stations in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.stations)
}

// LoadedAt returns when the catalog was last replaced, or the zero time.
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}
