// Package controller sequences catalog loading, city search, sensor
// fetches and archive operations, and owns the state shown to the user.
//
// All controller-owned state is mutated on a single goroutine started by
// Run. Remote calls run on the caller's goroutine; their results are handed
// to the loop, which applies them one at a time and notifies subscribers.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/archive"
	"github.com/airmonitor/airmonitor/internal/geo"
	"github.com/airmonitor/airmonitor/internal/geocoding"
)

var (
	// ErrEmptyQuery is returned by SearchCity for a blank city name.
	ErrEmptyQuery = errors.New("city name is empty")

	// ErrStopped is returned once the event loop has exited.
	ErrStopped = errors.New("controller stopped")

	// ErrAlreadyRunning is returned by a second call to Run.
	ErrAlreadyRunning = errors.New("controller already running")
)

// DefaultCenter is the map center before the first search (Poznań).
var DefaultCenter = geo.Point{Lat: 52.4064, Lon: 16.9252}

// InitialStatus is shown until the first operation reports progress.
const InitialStatus = "Enter a city name and press Search"

// ArchiveStore saves, lists and restores archive records.
type ArchiveStore interface {
	Save(ctx context.Context, req archive.SaveRequest, sensors []airquality.SensorDescriptor, cache airquality.SensorCache) (*archive.Record, error)
	List(ctx context.Context) ([]archive.Summary, error)
	Load(ctx context.Context, stationID int, saveDate string) (*archive.Record, error)
}

// Config holds the controller's collaborators.
type Config struct {
	Catalog  *airquality.Catalog
	Sensors  *airquality.SensorService
	Resolver *airquality.Resolver
	Geocoder geocoding.Geocoder
	Archives ArchiveStore

	// DefaultCenter overrides the initial map center when valid and non-zero.
	DefaultCenter geo.Point

	// EventBuffer is the per-subscriber event buffer (default: 64).
	EventBuffer int

	Logger zerolog.Logger
}

// Controller is the single owner of the application state.
type Controller struct {
	catalog  *airquality.Catalog
	sensors  *airquality.SensorService
	resolver *airquality.Resolver
	geocoder geocoding.Geocoder
	archives ArchiveStore
	logger   zerolog.Logger

	ops     chan func()
	stopped chan struct{}
	running atomic.Bool
	events  *hub

	// Owned by the loop goroutine.
	mapCenter  geo.Point
	status     string
	matches    airquality.MatchSet
	lastSearch *searchInfo
	archiveSet []archive.Summary
}

type searchInfo struct {
	query    string
	outcome  airquality.Outcome
	distance float64
	at       time.Time
}

// New creates a controller. Call Run to start its event loop.
func New(cfg Config) *Controller {
	center := DefaultCenter
	if cfg.DefaultCenter != (geo.Point{}) && cfg.DefaultCenter.Valid() {
		center = cfg.DefaultCenter
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = airquality.NewResolver(airquality.ResolverConfig{})
	}

	return &Controller{
		catalog:    cfg.Catalog,
		sensors:    cfg.Sensors,
		resolver:   resolver,
		geocoder:   cfg.Geocoder,
		archives:   cfg.Archives,
		logger:     cfg.Logger,
		ops:        make(chan func()),
		stopped:    make(chan struct{}),
		events:     newHub(cfg.EventBuffer),
		mapCenter:  center,
		status:     InitialStatus,
		matches:    make(airquality.MatchSet),
		archiveSet: []archive.Summary{},
	}
}

// Run processes state updates until ctx is canceled. Subscriber channels
// are closed when it returns.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		c.events.closeAll()
		close(c.stopped)
	}()

	c.logger.Debug().Msg("controller loop started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Debug().Msg("controller loop stopped")
			return nil
		case fn := <-c.ops:
			fn()
		}
	}
}

// Done is closed after Run returns.
func (c *Controller) Done() <-chan struct{} {
	return c.stopped
}

// do runs fn on the loop and waits for it to finish.
func (c *Controller) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	op := func() {
		defer close(done)
		fn()
	}

	select {
	case c.ops <- op:
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-done:
		return nil
	case <-c.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers for change notifications.
func (c *Controller) Subscribe() *Subscription {
	return c.events.add()
}

// Subscribers returns the number of active subscriptions.
func (c *Controller) Subscribers() int {
	return c.events.count()
}

// Start loads the station catalog and the archive listing. Both are
// attempted; the first failure is returned.
func (c *Controller) Start(ctx context.Context) error {
	_, catalogErr := c.ReloadCatalog(ctx)
	_, archiveErr := c.RefreshArchives(ctx)
	if catalogErr != nil {
		return catalogErr
	}
	return archiveErr
}

// setStatus must run on the loop.
func (c *Controller) setStatus(format string, args ...any) {
	c.status = fmt.Sprintf(format, args...)
	c.events.publish(EventStatus, c.status)
}

func (c *Controller) reportStatus(ctx context.Context, format string, args ...any) {
	_ = c.do(ctx, func() { c.setStatus(format, args...) })
}

// ReloadCatalog fetches the station listing and replaces the catalog.
// Matched ids that no longer exist are dropped from the match set.
func (c *Controller) ReloadCatalog(ctx context.Context) ([]airquality.Station, error) {
	c.reportStatus(ctx, "Loading stations...")

	stations, err := c.catalog.Load(ctx)
	if err != nil {
		c.reportStatus(ctx, "Failed to load stations: %v", err)
		return nil, err
	}

	err = c.do(ctx, func() {
		for id := range c.matches {
			if _, ok := c.catalog.Lookup(id); !ok {
				c.matches.Remove(id)
			}
		}
		c.events.publish(EventCatalog, len(stations))
		c.events.publish(EventStations, c.matches.IDs())
		c.setStatus("Loaded %d stations.", len(stations))
	})
	if err != nil {
		return nil, err
	}
	return stations, nil
}

// SearchCity geocodes city and selects matching stations, falling back to
// the nearest one. A geocoding failure leaves the current result untouched.
func (c *Controller) SearchCity(ctx context.Context, city string) (airquality.SearchResult, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		c.reportStatus(ctx, InitialStatus)
		return airquality.SearchResult{}, ErrEmptyQuery
	}

	c.reportStatus(ctx, "Searching: %s...", city)

	point, err := c.geocoder.Resolve(ctx, city)
	if err != nil {
		c.logger.Warn().Err(err).Str("city", city).Msg("geocoding failed")
		if errors.Is(err, geocoding.ErrNotFound) {
			c.reportStatus(ctx, "City not found.")
		} else {
			c.reportStatus(ctx, "Search failed: %v", err)
		}
		return airquality.SearchResult{}, err
	}

	result := c.resolver.Search(city, c.catalog.Stations(), point)

	err = c.do(ctx, func() {
		c.matches = result.Matches.Clone()
		c.lastSearch = &searchInfo{
			query:    city,
			outcome:  result.Outcome,
			distance: result.NearestDistance,
			at:       time.Now(),
		}
		c.mapCenter = result.Center
		c.events.publish(EventMapCenter, c.mapCenter)
		c.events.publish(EventStations, c.matches.IDs())
		c.setStatus("%s", result.Message)
	})
	if err != nil {
		return airquality.SearchResult{}, err
	}

	c.logger.Info().
		Str("city", city).
		Str("outcome", string(result.Outcome)).
		Int("matched", len(result.Matched)).
		Msg("city search completed")

	return result, nil
}

// SetStationMatched adds or removes one station from the current result.
func (c *Controller) SetStationMatched(ctx context.Context, stationID int, matched bool) error {
	if _, ok := c.catalog.Lookup(stationID); !ok {
		return fmt.Errorf("%w: %d", airquality.ErrStationNotFound, stationID)
	}

	return c.do(ctx, func() {
		if matched {
			c.matches.Add(stationID)
		} else {
			c.matches.Remove(stationID)
		}
		c.events.publish(EventStations, c.matches.IDs())
	})
}

// FetchSensors loads the sensor list of a station. A failure clears the
// current list.
func (c *Controller) FetchSensors(ctx context.Context, stationID int) ([]airquality.SensorDescriptor, error) {
	c.reportStatus(ctx, "Loading sensors for station %d...", stationID)

	sensors, err := c.sensors.FetchSensors(ctx, stationID)

	doErr := c.do(ctx, func() {
		c.events.publish(EventSensors, stationID)
		if err != nil {
			c.setStatus("Failed to load sensors: %v", err)
			return
		}
		c.setStatus("Loaded %d sensors for station %d.", len(sensors), stationID)
	})
	if err != nil {
		return nil, err
	}
	if doErr != nil {
		return nil, doErr
	}
	return sensors, nil
}

// FetchSensorData loads the measurement series of a sensor into the cache.
// A failure evicts any cached series for that sensor.
func (c *Controller) FetchSensorData(ctx context.Context, sensorID int) ([]airquality.Measurement, error) {
	measurements, err := c.sensors.FetchMeasurements(ctx, sensorID)

	doErr := c.do(ctx, func() {
		c.events.publish(EventSensorData, sensorID)
		if err != nil {
			c.setStatus("Failed to load data for sensor %d: %v", sensorID, err)
		}
	})
	if err != nil {
		return nil, err
	}
	if doErr != nil {
		return nil, doErr
	}
	return measurements, nil
}

// RemoveSensorData evicts one sensor's series from the cache.
func (c *Controller) RemoveSensorData(ctx context.Context, sensorID int) error {
	c.sensors.RemoveMeasurements(sensorID)
	return c.do(ctx, func() {
		c.events.publish(EventSensorData, sensorID)
	})
}

// SaveStation archives the current sensor list and cached series under the
// given station, then refreshes the archive listing.
func (c *Controller) SaveStation(ctx context.Context, req archive.SaveRequest) (*archive.Record, error) {
	rec, err := c.archives.Save(ctx, req, c.sensors.Sensors(), c.sensors.Cache())
	if err != nil {
		if errors.Is(err, archive.ErrStationNotFound) {
			c.reportStatus(ctx, "Error: station %d not found.", req.StationID)
		} else {
			c.reportStatus(ctx, "Error: could not save archive: %v", err)
		}
		return nil, err
	}

	c.reportStatus(ctx, "Saved archive for station %d at %s.", rec.StationID, rec.SaveDate)

	if _, err := c.RefreshArchives(ctx); err != nil {
		c.logger.Warn().Err(err).Msg("archive listing refresh after save failed")
	}
	return rec, nil
}

// RefreshArchives re-reads the archive listing.
func (c *Controller) RefreshArchives(ctx context.Context) ([]archive.Summary, error) {
	list, err := c.archives.List(ctx)
	if err != nil {
		c.reportStatus(ctx, "Error: could not list archives: %v", err)
		return nil, err
	}

	err = c.do(ctx, func() {
		c.archiveSet = list
		c.events.publish(EventArchives, len(list))
	})
	if err != nil {
		return nil, err
	}
	return cloneSummaries(list), nil
}

// LoadArchive restores an archived snapshot: its sensors and series replace
// the live ones and the map recenters on the archived station.
func (c *Controller) LoadArchive(ctx context.Context, stationID int, saveDate string) (*archive.Record, error) {
	rec, err := c.archives.Load(ctx, stationID, saveDate)
	if err != nil {
		if errors.Is(err, archive.ErrRecordNotFound) {
			c.reportStatus(ctx, "No archived data for station %d at %s.", stationID, saveDate)
		} else {
			c.reportStatus(ctx, "Error: could not load archive: %v", err)
		}
		return nil, err
	}

	err = c.do(ctx, func() {
		c.sensors.Replace(rec.StationID, rec.Descriptors(), rec.Cache())
		c.mapCenter = rec.Location()
		c.events.publish(EventMapCenter, c.mapCenter)
		c.events.publish(EventSensors, rec.StationID)
		c.events.publish(EventSensorData, nil)
		c.setStatus("Loaded archived data for station %d saved at %s.", rec.StationID, rec.SaveDate)
		c.events.publish(EventArchiveLoaded, rec.Summary())
	})
	if err != nil {
		return nil, err
	}

	c.logger.Info().
		Int("station_id", rec.StationID).
		Str("save_date", rec.SaveDate).
		Msg("archive restored")

	return rec, nil
}

func cloneSummaries(in []archive.Summary) []archive.Summary {
	out := make([]archive.Summary, len(in))
	copy(out, in)
	return out
}
