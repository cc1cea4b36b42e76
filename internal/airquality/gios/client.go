// Package gios is a client for the GIOŚ air quality monitoring API
// (Polish Chief Inspectorate of Environmental Protection).
package gios

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/geo"
	"github.com/airmonitor/airmonitor/internal/provider/resilience"
	"github.com/airmonitor/airmonitor/internal/telemetry"
)

const (
	// DefaultBaseURL is the public GIOŚ REST endpoint.
	DefaultBaseURL = "https://api.gios.gov.pl/pjp-api/rest"

	// ProviderName identifies this provider in metrics and health output.
	ProviderName = "gios"
)

// ClientConfig holds configuration for the GIOŚ client.
type ClientConfig struct {
	// BaseURL is the API base URL (defaults to DefaultBaseURL).
	BaseURL string

	// HTTPClient executes requests. If nil, a resilient client is created
	// and registered with Registry.
	HTTPClient HTTPDoer

	// Timeout for individual API requests (default: 10s).
	Timeout time.Duration

	Registry *resilience.Registry
	Metrics  *telemetry.ProviderMetrics
	Logger   zerolog.Logger
}

// HTTPDoer abstracts HTTP request execution.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client is a GIOŚ API client. It implements airquality.Provider.
type Client struct {
	baseURL    string
	httpClient HTTPDoer
	metrics    *telemetry.ProviderMetrics
	logger     zerolog.Logger
}

var _ airquality.Provider = (*Client)(nil)

// NewClient creates a new GIOŚ client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = resilience.NewClient(resilience.ClientConfig{
			Name:            ProviderName,
			Timeout:         timeout,
			MaxRetries:      3,
			InitialInterval: 200 * time.Millisecond,
			MaxInterval:     5 * time.Second,
			Registry:        cfg.Registry,
			Logger:          cfg.Logger,
		})
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// API response types.

// Station and sensor entries are decoded one at a time with lenient field
// types, so a bad field only costs that field and a bad id only that entry.

type stationData struct {
	ID            optionalInt   `json:"id"`
	StationName   lenientString `json:"stationName"`
	GegrLat       numericString `json:"gegrLat"`
	GegrLon       numericString `json:"gegrLon"`
	City          namedObject   `json:"city"`
	AddressStreet lenientString `json:"addressStreet"`
}

type sensorData struct {
	ID    optionalInt `json:"id"`
	Param paramData   `json:"param"`
}

type paramData struct {
	ParamName lenientString `json:"paramName"`
}

// UnmarshalJSON leaves the name empty when param is not an object.
func (p *paramData) UnmarshalJSON(b []byte) error {
	var fields struct {
		ParamName lenientString `json:"paramName"`
	}
	if err := json.Unmarshal(b, &fields); err != nil {
		*p = paramData{}
		return nil
	}
	p.ParamName = fields.ParamName
	return nil
}

// optionalInt is set only when the value is a JSON integer.
type optionalInt struct {
	Value int
	Valid bool
}

func (o *optionalInt) UnmarshalJSON(b []byte) error {
	var v int
	if err := json.Unmarshal(b, &v); err != nil || string(b) == "null" {
		*o = optionalInt{}
		return nil
	}
	*o = optionalInt{Value: v, Valid: true}
	return nil
}

// lenientString decodes anything that is not a JSON string as "".
type lenientString string

func (l *lenientString) UnmarshalJSON(b []byte) error {
	var v string
	if err := json.Unmarshal(b, &v); err != nil {
		*l = ""
		return nil
	}
	*l = lenientString(v)
	return nil
}

// namedObject reads the "name" member of an object such as city.
type namedObject struct {
	Name lenientString
}

func (n *namedObject) UnmarshalJSON(b []byte) error {
	var fields struct {
		Name lenientString `json:"name"`
	}
	if err := json.Unmarshal(b, &fields); err != nil {
		*n = namedObject{}
		return nil
	}
	n.Name = fields.Name
	return nil
}

type measurementsResponse struct {
	Key    string            `json:"key"`
	Values []measurementData `json:"values"`
}

type measurementData struct {
	Date  string   `json:"date"`
	Value *float64 `json:"value"`
}

// numericString accepts coordinates sent either as "52.40" or 52.40.
// Unparseable input decodes to zero.
type numericString float64

func (n *numericString) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		*n = 0
		return nil
	}
	*n = numericString(v)
	return nil
}

// FetchStations retrieves every station known to the service. Entries
// without an integer id are skipped; other bad fields decode as zero values.
func (c *Client) FetchStations(ctx context.Context) ([]airquality.Station, error) {
	var payload []json.RawMessage
	if err := c.getJSON(ctx, "stations", "/station/findAll", &payload); err != nil {
		return nil, err
	}

	stations := make([]airquality.Station, 0, len(payload))
	for i, raw := range payload {
		var s stationData
		if err := json.Unmarshal(raw, &s); err != nil {
			c.logger.Warn().Err(err).Int("index", i).Msg("skipping malformed station entry")
			continue
		}
		if !s.ID.Valid {
			c.logger.Warn().Str("station_name", string(s.StationName)).Msg("skipping station without id")
			continue
		}
		stations = append(stations, toStation(s))
	}
	return stations, nil
}

// FetchSensors retrieves the sensor list of one station.
func (c *Client) FetchSensors(ctx context.Context, stationID int) ([]airquality.SensorDescriptor, error) {
	var payload []json.RawMessage
	path := "/station/sensors/" + strconv.Itoa(stationID)
	if err := c.getJSON(ctx, "sensors", path, &payload); err != nil {
		return nil, err
	}

	sensors := make([]airquality.SensorDescriptor, 0, len(payload))
	for i, raw := range payload {
		var s sensorData
		if err := json.Unmarshal(raw, &s); err != nil {
			c.logger.Warn().Err(err).Int("station_id", stationID).Int("index", i).Msg("skipping malformed sensor entry")
			continue
		}
		if !s.ID.Valid {
			c.logger.Warn().Int("station_id", stationID).Str("param_name", string(s.Param.ParamName)).Msg("skipping sensor without id")
			continue
		}
		sensors = append(sensors, airquality.SensorDescriptor{
			SensorID:  s.ID.Value,
			ParamName: string(s.Param.ParamName),
		})
	}
	return sensors, nil
}

// FetchMeasurements retrieves the measurement series of one sensor in the
// order the service returns it. Null readings are kept as nil values.
func (c *Client) FetchMeasurements(ctx context.Context, sensorID int) ([]airquality.Measurement, error) {
	var payload measurementsResponse
	path := "/data/getData/" + strconv.Itoa(sensorID)
	if err := c.getJSON(ctx, "measurements", path, &payload); err != nil {
		return nil, err
	}

	measurements := make([]airquality.Measurement, 0, len(payload.Values))
	for _, m := range payload.Values {
		measurements = append(measurements, airquality.Measurement{
			Date:  m.Date,
			Value: m.Value,
		})
	}
	return measurements, nil
}

func (c *Client) getJSON(ctx context.Context, operation, path string, dst any) (err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordRequest(ctx, ProviderName, operation, time.Since(start), err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("operation", operation).Msg("request failed")
		return fmt.Errorf("%w: %s: %v", airquality.ErrRemoteUnavailable, operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s: unexpected status %d", airquality.ErrRemoteUnavailable, operation, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: %s: %v", airquality.ErrMalformedResponse, operation, err)
		}
		return fmt.Errorf("%w: %s: %v", airquality.ErrRemoteUnavailable, operation, err)
	}
	return nil
}

func toStation(s stationData) airquality.Station {
	return airquality.Station{
		ID:      s.ID.Value,
		Name:    string(s.StationName),
		City:    string(s.City.Name),
		Address: string(s.AddressStreet),
		Location: geo.Point{
			Lat: float64(s.GegrLat),
			Lon: float64(s.GegrLon),
		},
	}
}
