package cli_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/api/models"
	"github.com/airmonitor/airmonitor/internal/archive"
	"github.com/airmonitor/airmonitor/internal/cli"
	"github.com/airmonitor/airmonitor/internal/geo"
)

// fakeServer records request paths and serves canned API responses.
type fakeServer struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeServer) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

var poznan = airquality.Station{
	ID:       114,
	Name:     "Poznań, ul. Polanka",
	City:     "Poznań",
	Address:  "ul. Polanka",
	Location: geo.Point{Lat: 52.420319, Lon: 16.953622},
}

func sampleRecord() archive.Record {
	return archive.Record{
		StationID:   114,
		StationName: poznan.Name,
		CityName:    "Poznań",
		Address:     "ul. Polanka",
		Latitude:    poznan.Location.Lat,
		Longitude:   poznan.Location.Lon,
		SaveDate:    "2024-05-01T12:30:05Z",
		Sensors: []archive.SensorRecord{{
			SensorID:  642,
			ParamName: "pył zawieszony PM10",
			Measurements: []airquality.Measurement{
				{Date: "2024-05-01 12:00:00", Value: airquality.Float(21.5)},
				{Date: "2024-05-01 11:00:00"},
			},
		}},
	}
}

func newServer(t *testing.T) (*fakeServer, string) {
	t.Helper()
	f := &fakeServer{}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/search", func(w http.ResponseWriter, r *http.Request) {
		var req models.SearchRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.City != "Poznań" {
			w.Header().Set("Content-Type", "application/problem+json")
			w.WriteHeader(http.StatusNotFound)
			_, _ = io.WriteString(w, `{"title":"Not Found","status":404,"detail":"City not found."}`)
			return
		}
		writeJSON(w, http.StatusOK, models.SearchResponse{
			Query:   "Poznań",
			Outcome: airquality.OutcomeExact,
			Center:  geo.Point{Lat: 52.4064, Lon: 16.9252},
			Matched: []airquality.Station{poznan},
			Message: "Found 1 station(s) in Poznań",
		})
	})
	mux.HandleFunc("POST /v1/stations/{id}/sensors", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.SensorsResponse{
			StationID: 114,
			Items:     []airquality.SensorDescriptor{{SensorID: 642, ParamName: "pył zawieszony PM10"}},
		})
	})
	mux.HandleFunc("POST /v1/sensors/{id}/measurements", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.MeasurementsResponse{SensorID: 642, Items: sampleRecord().Sensors[0].Measurements})
	})
	mux.HandleFunc("GET /v1/archives", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, models.ArchivesResponse{
			Items: []archive.Summary{{StationID: 114, StationName: poznan.Name, CityName: "Poznań", Address: "ul. Polanka", SaveDate: "2024-05-01T12:30:05Z"}},
			Count: 1,
		})
	})
	mux.HandleFunc("POST /v1/archives", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusCreated, sampleRecord())
	})
	mux.HandleFunc("GET /v1/archives/{id}/export", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = io.WriteString(w, "%PDF-1.3 "+r.URL.Query().Get("format"))
	})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.paths = append(f.paths, r.Method+" "+r.URL.Path)
		f.mu.Unlock()
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func run(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	cmd := cli.New("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(append(args, "--server", server))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSearch_Table(t *testing.T) {
	_, url := newServer(t)

	out, err := run(t, url, "search", "Poznań")
	require.NoError(t, err)

	assert.Contains(t, out, "EXACT")
	assert.Contains(t, out, "Found 1 station(s) in Poznań")
	assert.Contains(t, out, "Poznań, ul. Polanka")
}

func TestSearch_NotFound(t *testing.T) {
	_, url := newServer(t)

	_, err := run(t, url, "search", "Atlantis")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "City not found.")
}

func TestArchiveList_YAML(t *testing.T) {
	_, url := newServer(t)

	out, err := run(t, url, "archive", "list", "-o", "yaml")
	require.NoError(t, err)

	var decoded struct {
		Items []struct {
			StationID int    `yaml:"stationId"`
			SaveDate  string `yaml:"saveDate"`
		} `yaml:"items"`
		Count int `yaml:"count"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 1, decoded.Count)
	require.Len(t, decoded.Items, 1)
	assert.Equal(t, 114, decoded.Items[0].StationID)
	assert.Equal(t, "2024-05-01T12:30:05Z", decoded.Items[0].SaveDate)
	assert.NotContains(t, out, "{")
}

func TestArchiveSave_FetchesFirst(t *testing.T) {
	f, url := newServer(t)

	out, err := run(t, url, "archive", "save", "114", "-o", "json")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"POST /v1/stations/114/sensors",
		"POST /v1/sensors/642/measurements",
		"POST /v1/archives",
	}, f.seen())

	var rec archive.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, "2024-05-01T12:30:05Z", rec.SaveDate)
	require.Len(t, rec.Sensors, 1)
	assert.Nil(t, rec.Sensors[0].Measurements[1].Value)
}

func TestArchiveSave_NoFetch(t *testing.T) {
	f, url := newServer(t)

	out, err := run(t, url, "archive", "save", "114", "--fetch=false")
	require.NoError(t, err)

	assert.Equal(t, []string{"POST /v1/archives"}, f.seen())
	assert.Contains(t, out, "pył zawieszony PM10")
	assert.Contains(t, out, "21.50")
}

func TestArchiveExport_WritesFile(t *testing.T) {
	_, url := newServer(t)
	path := filepath.Join(t.TempDir(), "report.pdf")

	out, err := run(t, url, "archive", "export", "114", "2024-05-01T12:30:05Z", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.3 pdf", string(body))
}

func TestArgumentErrors(t *testing.T) {
	_, url := newServer(t)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "bad station id", args: []string{"sensors", "abc"}, want: "stationId must be a positive integer"},
		{name: "bad export format", args: []string{"archive", "export", "114", "2024-05-01T12:30:05Z", "out.csv"}, want: "unsupported export format"},
		{name: "bad output", args: []string{"archive", "list", "-o", "xml"}, want: "unknown output format"},
		{name: "missing args", args: []string{"archive", "show", "114"}, want: "accepts 2 arg(s)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, url, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
