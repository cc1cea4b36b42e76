package api_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/api"
	"github.com/airmonitor/airmonitor/internal/api/handler"
	"github.com/airmonitor/airmonitor/internal/api/models"
	"github.com/airmonitor/airmonitor/internal/archive"
	"github.com/airmonitor/airmonitor/internal/archive/export"
	"github.com/airmonitor/airmonitor/internal/controller"
	"github.com/airmonitor/airmonitor/internal/geo"
	"github.com/airmonitor/airmonitor/internal/geocoding"
	"github.com/airmonitor/airmonitor/internal/provider/resilience"
)

type stubProvider struct {
	mu          sync.Mutex
	stations    []airquality.Station
	stationsErr error
}

func (p *stubProvider) FetchStations(context.Context) ([]airquality.Station, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stations, p.stationsErr
}

func (p *stubProvider) FetchSensors(_ context.Context, stationID int) ([]airquality.SensorDescriptor, error) {
	if stationID != 5 {
		return nil, nil
	}
	return []airquality.SensorDescriptor{
		{SensorID: 642, ParamName: "dwutlenek azotu"},
		{SensorID: 644, ParamName: "ozon"},
	}, nil
}

func (p *stubProvider) FetchMeasurements(_ context.Context, sensorID int) ([]airquality.Measurement, error) {
	if sensorID == 666 {
		return nil, errors.New("connection reset")
	}
	return []airquality.Measurement{
		{Date: "2024-05-01 12:00:00", Value: airquality.Float(21.5)},
		{Date: "2024-05-01 11:00:00"},
	}, nil
}

func (p *stubProvider) failStations(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stationsErr = err
}

type testServer struct {
	router   http.Handler
	ctrl     *controller.Controller
	provider *stubProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := zerolog.New(io.Discard)

	provider := &stubProvider{stations: []airquality.Station{
		{ID: 1, Name: "Warszawa-Marszałkowska", City: "Warszawa", Address: "ul. Marszałkowska", Location: geo.Point{Lat: 52.2250, Lon: 21.0089}},
		{ID: 5, Name: "Poznań-Polanka", City: "Poznań", Address: "ul. Polanka", Location: geo.Point{Lat: 52.4201, Lon: 16.9692}},
	}}
	catalog := airquality.NewCatalog(airquality.CatalogConfig{Source: provider, Logger: logger})
	sensors := airquality.NewSensorService(airquality.SensorServiceConfig{Source: provider, Logger: logger})

	geocoder := geocoding.GeocoderFunc(func(_ context.Context, city string) (geo.Point, error) {
		switch strings.ToLower(city) {
		case "poznań":
			return geo.Point{Lat: 52.4064, Lon: 16.9252}, nil
		case "gniezno":
			return geo.Point{Lat: 52.5348, Lon: 17.5826}, nil
		}
		return geo.Point{}, geocoding.ErrNotFound
	})

	saveTime := time.Date(2024, 5, 1, 12, 30, 5, 0, time.UTC)
	archives := archive.NewService(archive.ServiceConfig{
		Repository: archive.NewInMemoryRepository(),
		Stations:   catalog,
		Now:        func() time.Time { return saveTime },
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
	require.NoError(t, ctrl.Start(ctx))

	router := api.NewRouter(api.RouterConfig{
		Version:        "test",
		BuildTime:      "2024-01-01T00:00:00Z",
		Logger:         logger,
		Controller:     ctrl,
		Archives:       archives,
		Registry:       resilience.NewRegistry(),
		EventHeartbeat: 50 * time.Millisecond,
		Checks: []handler.Check{{Name: "catalog", Fn: func(context.Context) error {
			if catalog.Len() == 0 {
				return errors.New("catalog is empty")
			}
			return nil
		}}},
	})

	return &testServer{router: router, ctrl: ctrl, provider: provider}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestRouter_HealthCheck(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/v1/ops/health", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	health := decode[models.Health](t, w)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/v1/ops/ready", "")

	assert.Equal(t, http.StatusOK, w.Code)
	health := decode[models.Health](t, w)
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "OK", health.Details["catalog"])
}

func TestRouter_SystemStatus(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/v1/ops/status", "")

	assert.Equal(t, http.StatusOK, w.Code)
	status := decode[models.SystemStatus](t, w)
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Subsystems, 1)
	assert.Equal(t, "catalog", status.Subsystems[0].Name)
	assert.NotNil(t, status.Providers)
}

func TestRouter_State(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/v1/state", "")

	require.Equal(t, http.StatusOK, w.Code)
	st := decode[controller.State](t, w)
	assert.Equal(t, controller.DefaultCenter, st.MapCenter)
	assert.Equal(t, "Loaded 2 stations.", st.Status)
	assert.Len(t, st.Stations, 2)
	assert.Empty(t, st.Matched)
}

func TestRouter_Search(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/search", `{"city":"Poznań"}`)

	require.Equal(t, http.StatusOK, w.Code)
	res := decode[models.SearchResponse](t, w)
	assert.Equal(t, airquality.OutcomeExact, res.Outcome)
	require.Len(t, res.Matched, 1)
	assert.Equal(t, 5, res.Matched[0].ID)

	w = s.do(t, http.MethodGet, "/v1/stations?matched=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[models.StationsResponse](t, w)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, 5, list.Items[0].ID)
}

func TestRouter_SearchFallsBackToNearest(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/search", `{"city":"Gniezno"}`)

	require.Equal(t, http.StatusOK, w.Code)
	res := decode[models.SearchResponse](t, w)
	assert.Equal(t, airquality.OutcomeNearest, res.Outcome)
	require.Len(t, res.Matched, 1)
	assert.Equal(t, 5, res.Matched[0].ID)
	assert.Greater(t, res.NearestDistance, 0.0)
}

func TestRouter_SearchErrors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name        string
		body        string
		contentType string
		status      int
		problemType string
	}{
		{"unknown city", `{"city":"Atlantis"}`, "application/json", http.StatusNotFound, models.ProblemTypeNotFound},
		{"blank city", `{"city":"  "}`, "application/json", http.StatusBadRequest, models.ProblemTypeValidation},
		{"unknown field", `{"town":"Poznań"}`, "application/json", http.StatusBadRequest, models.ProblemTypeValidation},
		{"wrong content type", `city=Poznań`, "application/x-www-form-urlencoded", http.StatusUnsupportedMediaType, models.ProblemTypeUnsupportedMedia},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			w := httptest.NewRecorder()
			s.router.ServeHTTP(w, req)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
			problem := decode[models.Problem](t, w)
			assert.Equal(t, tt.problemType, problem.Type)
			assert.Equal(t, "/v1/search", problem.Instance)
		})
	}
}

func TestRouter_SetMatch(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/v1/stations/1/match", `{"matched":true}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	matched, err := s.ctrl.IsMatched(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, matched)

	w = s.do(t, http.MethodPut, "/v1/stations/1/match", `{"matched":false}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	matched, err = s.ctrl.IsMatched(context.Background(), 1)
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestRouter_SetMatchErrors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPut, "/v1/stations/99/match", `{"matched":true}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.ProblemTypeStationNotFound, decode[models.Problem](t, w).Type)

	w = s.do(t, http.MethodPut, "/v1/stations/abc/match", `{"matched":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/v1/stations/1/match", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_ReloadStationsFailure(t *testing.T) {
	s := newTestServer(t)
	s.provider.failStations(errors.New("dial tcp: timeout"))

	w := s.do(t, http.MethodPost, "/v1/stations/reload", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, models.ProblemTypeUnavailable, decode[models.Problem](t, w).Type)

	// The previous catalog is still served.
	w = s.do(t, http.MethodGet, "/v1/stations", "")
	assert.Equal(t, 2, decode[models.StationsResponse](t, w).Count)
}

func TestRouter_SensorsAndMeasurements(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/stations/5/sensors", "")
	require.Equal(t, http.StatusOK, w.Code)
	sensors := decode[models.SensorsResponse](t, w)
	assert.Equal(t, 5, sensors.StationID)
	assert.Len(t, sensors.Items, 2)

	w = s.do(t, http.MethodGet, "/v1/sensors", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[models.SensorsResponse](t, w).Items, 2)

	w = s.do(t, http.MethodPost, "/v1/sensors/642/measurements", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"value":null`)
	series := decode[models.MeasurementsResponse](t, w)
	require.Len(t, series.Items, 2)
	assert.InDelta(t, 21.5, *series.Items[0].Value, 1e-9)

	w = s.do(t, http.MethodDelete, "/v1/sensors/642/measurements", "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	st, err := s.ctrl.State(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, st.SensorData, 642)
}

func TestRouter_MeasurementsRemoteFailure(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/sensors/666/measurements", "")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRouter_ArchiveLifecycle(t *testing.T) {
	s := newTestServer(t)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/stations/5/sensors", "").Code)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/sensors/642/measurements", "").Code)

	w := s.do(t, http.MethodPost, "/v1/archives", `{"stationId":5}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rec := decode[archive.Record](t, w)
	assert.Equal(t, "2024-05-01T12:30:05Z", rec.SaveDate)
	assert.Equal(t, "Poznań", rec.CityName)
	assert.Equal(t, "/v1/archives/5/export?saveDate=2024-05-01T12%3A30%3A05Z", w.Header().Get("Location"))

	w = s.do(t, http.MethodPost, "/v1/archives", `{"stationId":5}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(t, http.MethodGet, "/v1/archives", "")
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[models.ArchivesResponse](t, w)
	require.Equal(t, 1, list.Count)
	assert.Equal(t, 5, list.Items[0].StationID)

	w = s.do(t, http.MethodDelete, "/v1/sensors/642/measurements", "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = s.do(t, http.MethodPost, "/v1/archives/5/restore?saveDate=2024-05-01T12:30:05Z", "")
	require.Equal(t, http.StatusOK, w.Code)

	st, err := s.ctrl.State(context.Background())
	require.NoError(t, err)
	assert.Len(t, st.SensorData[642], 2)
	assert.Equal(t, geo.Point{Lat: 52.4201, Lon: 16.9692}, st.MapCenter)
}

func TestRouter_ArchiveErrors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/archives", `{"stationId":99}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, models.ProblemTypeStationNotFound, decode[models.Problem](t, w).Type)

	w = s.do(t, http.MethodPost, "/v1/archives", `{"stationId":0}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/v1/archives/5/restore?saveDate=2020-01-01T00:00:00Z", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodPost, "/v1/archives/5/restore", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_ExportArchive(t *testing.T) {
	s := newTestServer(t)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/v1/stations/5/sensors", "").Code)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/v1/archives", `{"stationId":5}`).Code)

	tests := []struct {
		query       string
		contentType string
		fileName    string
		magic       []byte
	}{
		{"saveDate=2024-05-01T12:30:05Z", export.ContentTypeXLSX, "station_5_20240501_123005.xlsx", []byte("PK")},
		{"saveDate=2024-05-01T14:30:05%2B02:00&format=pdf", export.ContentTypePDF, "station_5_20240501_123005.pdf", []byte("%PDF")},
	}

	for _, tt := range tests {
		t.Run(tt.fileName, func(t *testing.T) {
			w := s.do(t, http.MethodGet, "/v1/archives/5/export?"+tt.query, "")

			require.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.contentType, w.Header().Get("Content-Type"))
			assert.Equal(t, `attachment; filename="`+tt.fileName+`"`, w.Header().Get("Content-Disposition"))
			assert.True(t, bytes.HasPrefix(w.Body.Bytes(), tt.magic))
		})
	}

	w := s.do(t, http.MethodGet, "/v1/archives/5/export?saveDate=2024-05-01T12:30:05Z&format=csv", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/v1/archives/1/export?saveDate=2024-05-01T12:30:05Z", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_NotFoundRoute(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/v1/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_EventStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/events", http.NoBody)
	require.NoError(t, err)
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := make(chan string, 16)
	go func() {
		defer close(events)
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if name, ok := strings.CutPrefix(scanner.Text(), "event: "); ok {
				events <- name
			}
		}
	}()

	next := func() string {
		select {
		case name, ok := <-events:
			require.True(t, ok, "stream closed")
			return name
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for event")
			return ""
		}
	}

	assert.Equal(t, "state", next())

	require.NoError(t, s.ctrl.SetStationMatched(context.Background(), 1, true))
	assert.Equal(t, "stations", next())
}
