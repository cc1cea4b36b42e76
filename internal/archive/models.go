// Package archive persists snapshots of a station's sensor data and
// restores them later.
package archive

import (
	"errors"
	"fmt"
	"time"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/geo"
)

var (
	ErrRecordNotFound = errors.New("archive record not found")
	ErrRecordExists   = errors.New("archive record already exists")
	ErrPersistence    = errors.New("archive storage failure")

	// ErrStationNotFound is returned by Save for ids absent from the catalog.
	ErrStationNotFound = airquality.ErrStationNotFound
)

// SaveDateLayout is the format of Record.SaveDate. Saves have one-second
// granularity and are stored in UTC.
const SaveDateLayout = time.RFC3339

// Record is one saved snapshot. It is identified by (StationID, SaveDate)
// and never modified after it is written.
type Record struct {
	StationID   int            `json:"stationId"`
	StationName string         `json:"stationName"`
	CityName    string         `json:"cityName"`
	Address     string         `json:"address"`
	Latitude    float64        `json:"latitude"`
	Longitude   float64        `json:"longitude"`
	SaveDate    string         `json:"saveDate"`
	Sensors     []SensorRecord `json:"sensors"`
}

// SensorRecord is one sensor and its measurement series at save time.
type SensorRecord struct {
	SensorID     int                      `json:"sensorId"`
	ParamName    string                   `json:"paramName"`
	Measurements []airquality.Measurement `json:"measurements"`
}

// Summary describes a record without its sensor payload.
type Summary struct {
	StationID   int    `json:"stationId"`
	StationName string `json:"stationName"`
	CityName    string `json:"cityName"`
	Address     string `json:"address"`
	SaveDate    string `json:"saveDate"`
}

// Summary returns the record's listing entry.
func (r *Record) Summary() Summary {
	return Summary{
		StationID:   r.StationID,
		StationName: r.StationName,
		CityName:    r.CityName,
		Address:     r.Address,
		SaveDate:    r.SaveDate,
	}
}

// Location returns the station coordinate stored with the record.
func (r *Record) Location() geo.Point {
	return geo.Point{Lat: r.Latitude, Lon: r.Longitude}
}

// Descriptors returns the saved sensor list in save order.
func (r *Record) Descriptors() []airquality.SensorDescriptor {
	out := make([]airquality.SensorDescriptor, len(r.Sensors))
	for i, s := range r.Sensors {
		out[i] = airquality.SensorDescriptor{SensorID: s.SensorID, ParamName: s.ParamName}
	}
	return out
}

// Cache rebuilds a sensor cache from the saved series.
func (r *Record) Cache() airquality.SensorCache {
	cache := make(airquality.SensorCache, len(r.Sensors))
	for _, s := range r.Sensors {
		cache[s.SensorID] = airquality.CloneMeasurements(s.Measurements)
	}
	return cache
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	out := *r
	out.Sensors = make([]SensorRecord, len(r.Sensors))
	for i, s := range r.Sensors {
		out.Sensors[i] = SensorRecord{
			SensorID:     s.SensorID,
			ParamName:    s.ParamName,
			Measurements: airquality.CloneMeasurements(s.Measurements),
		}
	}
	return &out
}

// FormatSaveDate renders t as a record save date.
func FormatSaveDate(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(SaveDateLayout)
}

// NormalizeSaveDate parses an RFC 3339 timestamp in any offset and
// returns it in the stored form.
func NormalizeSaveDate(s string) (string, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return "", fmt.Errorf("invalid save date %q: %w", s, err)
	}
	return FormatSaveDate(t), nil
}
