// Package apiclient talks to a running airmonitor API server. It is used by
// the worker to forward jobs and by the airctl command line tool.
package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/api/models"
	"github.com/airmonitor/airmonitor/internal/archive"
)

// DefaultUserAgent identifies API calls made by this package.
const DefaultUserAgent = "airmonitor-client/1.0"

// ErrUnavailable is returned when the server cannot be reached.
var ErrUnavailable = errors.New("api server unavailable")

// Error is a problem response returned by the server.
type Error struct {
	Status  int
	Problem models.Problem
}

func (e *Error) Error() string {
	if e.Problem.Detail != "" {
		return fmt.Sprintf("%s (%d): %s", e.Problem.Title, e.Status, e.Problem.Detail)
	}
	if e.Problem.Title != "" {
		return fmt.Sprintf("%s (%d)", e.Problem.Title, e.Status)
	}
	return fmt.Sprintf("unexpected status %d", e.Status)
}

// StatusCode extracts the HTTP status from an *Error, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Config holds configuration for the API client.
type Config struct {
	BaseURL   string
	UserAgent string

	// Timeout for a single request (default: 30s).
	Timeout time.Duration

	// RetryCount is the number of retries on transport errors and 502/503/504.
	RetryCount int

	Logger zerolog.Logger
}

// Client calls the airmonitor HTTP API.
type Client struct {
	rest   *resty.Client
	logger zerolog.Logger
}

// New creates a new API client.
func New(cfg Config) *Client {
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	rest := resty.New().
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(250 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			switch r.StatusCode() {
			case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
				return true
			}
			return false
		})

	return &Client{
		rest:   rest,
		logger: cfg.Logger,
	}
}

// do sends req and decodes a successful JSON body into out (if non-nil).
func (c *Client) do(req *resty.Request, method, path string, out any) (*resty.Response, error) {
	resp, err := req.Execute(method, path)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("api request failed")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !resp.IsSuccess() {
		apiErr := &Error{Status: resp.StatusCode()}
		_ = json.Unmarshal(resp.Body(), &apiErr.Problem)
		return resp, apiErr
	}

	if out != nil && len(resp.Body()) > 0 {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return resp, fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
	}
	return resp, nil
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.rest.R().SetContext(ctx)
}

// Ready returns nil when the server reports every dependency as ready.
func (c *Client) Ready(ctx context.Context) error {
	_, err := c.do(c.request(ctx), http.MethodGet, "/v1/ops/ready", nil)
	return err
}

// Status returns the folded provider status.
func (c *Client) Status(ctx context.Context) (*models.SystemStatus, error) {
	var out models.SystemStatus
	if _, err := c.do(c.request(ctx), http.MethodGet, "/v1/ops/status", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ReloadCatalog asks the server to re-download the station catalog.
func (c *Client) ReloadCatalog(ctx context.Context) ([]airquality.Station, error) {
	var out models.StationsResponse
	if _, err := c.do(c.request(ctx), http.MethodPost, "/v1/stations/reload", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Stations lists the catalog; matchedOnly restricts it to the current
// search result.
func (c *Client) Stations(ctx context.Context, matchedOnly bool) ([]airquality.Station, error) {
	req := c.request(ctx)
	if matchedOnly {
		req.SetQueryParam("matched", "true")
	}
	var out models.StationsResponse
	if _, err := c.do(req, http.MethodGet, "/v1/stations", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Search runs a city search.
func (c *Client) Search(ctx context.Context, city string) (*models.SearchResponse, error) {
	req := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(models.SearchRequest{City: city})
	var out models.SearchResponse
	if _, err := c.do(req, http.MethodPost, "/v1/search", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchSensors loads the sensors of a station into the server's live state.
func (c *Client) FetchSensors(ctx context.Context, stationID int) ([]airquality.SensorDescriptor, error) {
	var out models.SensorsResponse
	path := "/v1/stations/" + strconv.Itoa(stationID) + "/sensors"
	if _, err := c.do(c.request(ctx), http.MethodPost, path, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// FetchMeasurements loads one sensor's series.
func (c *Client) FetchMeasurements(ctx context.Context, sensorID int) ([]airquality.Measurement, error) {
	var out models.MeasurementsResponse
	path := "/v1/sensors/" + strconv.Itoa(sensorID) + "/measurements"
	if _, err := c.do(c.request(ctx), http.MethodPost, path, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Archives lists stored archive summaries.
func (c *Client) Archives(ctx context.Context) ([]archive.Summary, error) {
	var out models.ArchivesResponse
	if _, err := c.do(c.request(ctx), http.MethodGet, "/v1/archives", &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// SaveArchive stores the server's live sensors and series for stationID.
func (c *Client) SaveArchive(ctx context.Context, req models.SaveArchiveRequest) (*archive.Record, error) {
	r := c.request(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(req)
	var out archive.Record
	if _, err := c.do(r, http.MethodPost, "/v1/archives", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RestoreArchive replaces the server's live state with a stored record.
func (c *Client) RestoreArchive(ctx context.Context, stationID int, saveDate string) (*archive.Record, error) {
	req := c.request(ctx).SetQueryParam("saveDate", saveDate)
	var out archive.Record
	path := "/v1/archives/" + strconv.Itoa(stationID) + "/restore"
	if _, err := c.do(req, http.MethodPost, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Export downloads a stored record rendered in format ("xlsx" or "pdf").
func (c *Client) Export(ctx context.Context, stationID int, saveDate, format string) ([]byte, error) {
	req := c.request(ctx).
		SetHeader("Accept", "*/*").
		SetQueryParams(map[string]string{
			"saveDate": saveDate,
			"format":   format,
		})
	path := "/v1/archives/" + strconv.Itoa(stationID) + "/export"
	resp, err := c.do(req, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}
