package controller_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/archive"
	"github.com/airmonitor/airmonitor/internal/controller"
	"github.com/airmonitor/airmonitor/internal/geo"
	"github.com/airmonitor/airmonitor/internal/geocoding"
)

type fakeProvider struct {
	mu           sync.Mutex
	stations     []airquality.Station
	stationsErr  error
	sensors      map[int][]airquality.SensorDescriptor
	sensorsErr   error
	measurements map[int][]airquality.Measurement
	measureErr   map[int]error
}

func (f *fakeProvider) FetchStations(_ context.Context) ([]airquality.Station, error) {
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

func (f *fakeProvider) set(fn func(f *fakeProvider)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

// fakeGeocoder resolves known city names case-insensitively.
type fakeGeocoder struct {
	mu     sync.Mutex
	points map[string]geo.Point
	err    error
}

func (g *fakeGeocoder) Resolve(_ context.Context, city string) (geo.Point, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return geo.Point{}, g.err
	}
	p, ok := g.points[strings.ToLower(city)]
	if !ok {
		return geo.Point{}, geocoding.ErrNotFound
	}
	return p, nil
}

func (g *fakeGeocoder) fail(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
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

type fixture struct {
	ctrl     *controller.Controller
	sensors  *airquality.SensorService
	provider *fakeProvider
	geocoder *fakeGeocoder
	repo     *archive.InMemoryRepository
	clock    *clock
	cancel   context.CancelFunc
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	provider := &fakeProvider{
		stations: testStations(),
		sensors: map[int][]airquality.SensorDescriptor{
			5: {{SensorID: 642, ParamName: "dwutlenek azotu"}, {SensorID: 644, ParamName: "ozon"}},
			1: {{SensorID: 100, ParamName: "pył zawieszony PM10"}},
		},
		measurements: map[int][]airquality.Measurement{
			642: {{Date: "2024-05-01 12:00:00", Value: airquality.Float(21.5)}, {Date: "2024-05-01 11:00:00"}},
			644: {{Date: "2024-05-01 12:00:00", Value: airquality.Float(61)}},
			100: {{Date: "2024-05-01 12:00:00", Value: airquality.Float(30)}},
		},
		measureErr: map[int]error{},
	}
	geocoder := &fakeGeocoder{points: map[string]geo.Point{
		"warszawa":  {Lat: 52.2297, Lon: 21.0122},
		"zabierzów": {Lat: 50.1150, Lon: 19.7910},
		"poznań":    {Lat: 52.4082, Lon: 16.9335},
	}}

	logger := zerolog.Nop()
	catalog := airquality.NewCatalog(airquality.CatalogConfig{Source: provider, Logger: logger})
	sensors := airquality.NewSensorService(airquality.SensorServiceConfig{Source: provider, Logger: logger})
	repo := archive.NewInMemoryRepository()
	clk := &clock{now: time.Date(2024, 5, 1, 12, 30, 5, 0, time.UTC)}
	archives := archive.NewService(archive.ServiceConfig{
		Repository: repo,
		Stations:   catalog,
		Now:        clk.Now,
		Logger:     logger,
	})

	ctrl := controller.New(controller.Config{
		Catalog:  catalog,
		Sensors:  sensors,
		Geocoder: geocoder,
		Archives: archives,
		Logger:   logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = ctrl.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-ctrl.Done()
	})

	return &fixture{
		ctrl:     ctrl,
		sensors:  sensors,
		provider: provider,
		geocoder: geocoder,
		repo:     repo,
		clock:    clk,
		cancel:   cancel,
	}
}

func (f *fixture) start(t *testing.T) {
	t.Helper()
	require.NoError(t, f.ctrl.Start(context.Background()))
}

func (f *fixture) state(t *testing.T) controller.State {
	t.Helper()
	st, err := f.ctrl.State(context.Background())
	require.NoError(t, err)
	return st
}

// collect reads events until one of kind last arrives.
func collect(t *testing.T, sub *controller.Subscription, last controller.EventKind) []controller.Event {
	t.Helper()
	var events []controller.Event
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events:
			if !ok {
				t.Fatalf("subscription closed while waiting for %s", last)
			}
			events = append(events, ev)
			if ev.Kind == last {
				return events
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", last)
		}
	}
}

func kinds(events []controller.Event) []controller.EventKind {
	out := make([]controller.EventKind, len(events))
	for i, ev := range events {
		out[i] = ev.Kind
	}
	return out
}

var errBoom = errors.New("boom")
