package airquality_test

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/geo"
)

// fakeProvider is a test provider with configurable responses.
type fakeProvider struct {
	mu           sync.Mutex
	stations     []airquality.Station
	stationsErr  error
	sensors      map[int][]airquality.SensorDescriptor
	sensorsErr   error
	measurements map[int][]airquality.Measurement
	measureErr   map[int]error
	fetchCount   atomic.Int32
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		sensors:      make(map[int][]airquality.SensorDescriptor),
		measurements: make(map[int][]airquality.Measurement),
		measureErr:   make(map[int]error),
	}
}

func (f *fakeProvider) FetchStations(_ context.Context) ([]airquality.Station, error) {
	f.fetchCount.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stationsErr != nil {
		return nil, f.stationsErr
	}
	return f.stations, nil
}

func (f *fakeProvider) FetchSensors(_ context.Context, stationID int) ([]airquality.SensorDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sensorsErr != nil {
		return nil, f.sensorsErr
	}
	return f.sensors[stationID], nil
}

func (f *fakeProvider) FetchMeasurements(_ context.Context, sensorID int) ([]airquality.Measurement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.measureErr[sensorID]; err != nil {
		return nil, err
	}
	return f.measurements[sensorID], nil
}

func (f *fakeProvider) setMeasurements(sensorID int, ms []airquality.Measurement, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.measurements[sensorID] = ms
	f.measureErr[sensorID] = err
}

func testStations() []airquality.Station {
	return []airquality.Station{
		{ID: 1, Name: "Warszawa-Marszałkowska", City: "Warszawa", Address: "ul. Marszałkowska", Location: geo.Point{Lat: 52.2250, Lon: 21.0089}},
		{ID: 2, Name: "Kraków-Aleja Krasińskiego", City: "Kraków", Address: "al. Krasińskiego", Location: geo.Point{Lat: 50.0577, Lon: 19.9265}},
		{ID: 3, Name: "Warszawa-Ursynów", City: "Warszawa", Address: "ul. Wokalna", Location: geo.Point{Lat: 52.1608, Lon: 21.0334}},
		{ID: 4, Name: "Kraków-Nowa Huta", City: "Kraków", Address: "ul. Bulwarowa", Location: geo.Point{Lat: 50.0692, Lon: 20.0534}},
		{ID: 5, Name: "Poznań-Polanka", City: "Poznań", Address: "ul. Polanka", Location: geo.Point{Lat: 52.4201, Lon: 16.9692}},
	}
}
