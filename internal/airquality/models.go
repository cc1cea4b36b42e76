// Package airquality provides the station catalog, city-to-station matching,
// and the sensor measurement cache.
package airquality

import (
	"errors"

	"github.com/airmonitor/airmonitor/internal/geo"
)

// Provider errors.
var (
	ErrRemoteUnavailable = errors.New("air quality provider unavailable")
	ErrMalformedResponse = errors.New("malformed air quality provider response")
	ErrStationNotFound   = errors.New("station not found")
)

// Station represents an air quality monitoring station.
type Station struct {
	ID       int       `json:"id"`
	Name     string    `json:"name"`
	City     string    `json:"city"`
	Address  string    `json:"address"`
	Location geo.Point `json:"location"`
}

// SensorDescriptor identifies one measured parameter at a station.
type SensorDescriptor struct {
	SensorID  int    `json:"sensorId"`
	ParamName string `json:"paramName"`
}

// Measurement is a single reading. A nil Value marks a gap reported by the
// provider.
type Measurement struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// Float returns a pointer to v, for building measurements.
func Float(v float64) *float64 {
	return &v
}

// CloneMeasurements returns a deep copy of ms. A nil input yields an empty,
// non-nil slice.
func CloneMeasurements(ms []Measurement) []Measurement {
	out := make([]Measurement, len(ms))
	for i, m := range ms {
		out[i] = Measurement{Date: m.Date}
		if m.Value != nil {
			v := *m.Value
			out[i].Value = &v
		}
	}
	return out
}

// SensorCache maps a sensor ID to its ordered measurement series.
type SensorCache map[int][]Measurement

// Clone returns a deep copy of the cache.
func (c SensorCache) Clone() SensorCache {
	out := make(SensorCache, len(c))
	for id, ms := range c {
		out[id] = CloneMeasurements(ms)
	}
	return out
}
