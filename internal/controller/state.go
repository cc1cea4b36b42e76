package controller

import (
	"context"
	"time"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/archive"
	"github.com/airmonitor/airmonitor/internal/geo"
)

// StationView is a catalog station with its match flag.
type StationView struct {
	airquality.Station
	Matched bool `json:"matched"`
}

// SearchSummary describes the most recent successful search.
type SearchSummary struct {
	Query           string             `json:"query"`
	Outcome         airquality.Outcome `json:"outcome"`
	NearestDistance float64            `json:"nearestDistance,omitempty"`
	At              time.Time          `json:"at"`
}

// State is a consistent copy of everything the user interface displays.
type State struct {
	MapCenter       geo.Point                     `json:"mapCenter"`
	Status          string                        `json:"status"`
	Stations        []StationView                 `json:"stations"`
	Matched         []airquality.Station          `json:"matched"`
	LastSearch      *SearchSummary                `json:"lastSearch,omitempty"`
	StationID       int                           `json:"stationId,omitempty"`
	Sensors         []airquality.SensorDescriptor `json:"sensors"`
	SensorData      airquality.SensorCache        `json:"sensorData"`
	Archives        []archive.Summary             `json:"archives"`
	CatalogLoadedAt *time.Time                    `json:"catalogLoadedAt,omitempty"`
}

// State returns a snapshot of the current state.
func (c *Controller) State(ctx context.Context) (State, error) {
	var st State
	err := c.do(ctx, func() {
		st = c.snapshot()
	})
	return st, err
}

// IsMatched reports whether a station is in the current result.
func (c *Controller) IsMatched(ctx context.Context, stationID int) (bool, error) {
	var matched bool
	err := c.do(ctx, func() {
		matched = c.matches.Has(stationID)
	})
	return matched, err
}

// snapshot must run on the loop.
func (c *Controller) snapshot() State {
	catalog := c.catalog.Stations()

	st := State{
		MapCenter:  c.mapCenter,
		Status:     c.status,
		Stations:   make([]StationView, len(catalog)),
		Matched:    make([]airquality.Station, 0, len(c.matches)),
		StationID:  c.sensors.StationID(),
		Sensors:    c.sensors.Sensors(),
		SensorData: c.sensors.Cache(),
		Archives:   cloneSummaries(c.archiveSet),
	}

	for i, s := range catalog {
		matched := c.matches.Has(s.ID)
		st.Stations[i] = StationView{Station: s, Matched: matched}
		if matched {
			st.Matched = append(st.Matched, s)
		}
	}

	if c.lastSearch != nil {
		st.LastSearch = &SearchSummary{
			Query:           c.lastSearch.query,
			Outcome:         c.lastSearch.outcome,
			NearestDistance: c.lastSearch.distance,
			At:              c.lastSearch.at,
		}
	}

	if at := c.catalog.LoadedAt(); !at.IsZero() {
		st.CatalogLoadedAt = &at
	}

	return st
}
