package models

import (
	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/archive"
	"github.com/airmonitor/airmonitor/internal/geo"
)

// SearchResponse is returned by POST /v1/search.
type SearchResponse struct {
	Query           string               `json:"query"`
	Outcome         airquality.Outcome   `json:"outcome"`
	Center          geo.Point            `json:"center"`
	Matched         []airquality.Station `json:"matched"`
	NearestDistance float64              `json:"nearestDistanceMeters,omitempty"`
	Message         string               `json:"message"`
}

// NewSearchResponse converts a resolver result.
func NewSearchResponse(res airquality.SearchResult) SearchResponse {
	matched := res.Matched
	if matched == nil {
		matched = []airquality.Station{}
	}
	return SearchResponse{
		Query:           res.Query,
		Outcome:         res.Outcome,
		Center:          res.Center,
		Matched:         matched,
		NearestDistance: res.NearestDistance,
		Message:         res.Message,
	}
}

// StationsResponse lists catalog stations.
type StationsResponse struct {
	Items []airquality.Station `json:"items"`
	Count int                  `json:"count"`
}

// SensorsResponse lists the sensors of the current station.
type SensorsResponse struct {
	StationID int                           `json:"stationId"`
	Items     []airquality.SensorDescriptor `json:"items"`
}

// MeasurementsResponse is one sensor's series.
type MeasurementsResponse struct {
	SensorID int                      `json:"sensorId"`
	Items    []airquality.Measurement `json:"items"`
}

// ArchivesResponse lists archive summaries.
type ArchivesResponse struct {
	Items []archive.Summary `json:"items"`
	Count int               `json:"count"`
}
