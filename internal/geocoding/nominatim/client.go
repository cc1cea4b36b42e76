// Package nominatim resolves city names through an OpenStreetMap
// Nominatim search endpoint.
package nominatim

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/airmonitor/airmonitor/internal/geo"
	"github.com/airmonitor/airmonitor/internal/geocoding"
	"github.com/airmonitor/airmonitor/internal/telemetry"
)

const (
	// DefaultBaseURL is the public OpenStreetMap Nominatim instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// DefaultUserAgent is sent with every query; the public instance
	// rejects anonymous clients.
	DefaultUserAgent = "ControlStationsApp/1.0"

	// ProviderName identifies this provider in metrics.
	ProviderName = "nominatim"
)

// ClientConfig holds configuration for the Nominatim client.
type ClientConfig struct {
	BaseURL   string
	UserAgent string

	// Timeout for a single request (default: 10s).
	Timeout time.Duration

	// RetryCount is the number of retries on transport errors and 5xx/429.
	RetryCount int

	Metrics *telemetry.ProviderMetrics
	Logger  zerolog.Logger
}

// Client is a Nominatim geocoder.
type Client struct {
	rest    *resty.Client
	metrics *telemetry.ProviderMetrics
	logger  zerolog.Logger
}

var _ geocoding.Geocoder = (*Client)(nil)

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// NewClient creates a new Nominatim client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	rest := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("User-Agent", userAgent).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.RetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= http.StatusInternalServerError || r.StatusCode() == http.StatusTooManyRequests
		})

	return &Client{
		rest:    rest,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

// Resolve returns the coordinate of the single best match for city.
func (c *Client) Resolve(ctx context.Context, city string) (point geo.Point, err error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordRequest(ctx, ProviderName, "search", time.Since(start), err)
	}()

	resp, err := c.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      city,
			"format": "json",
			"limit":  "1",
		}).
		Get("/search")
	if err != nil {
		c.logger.Debug().Err(err).Str("city", city).Msg("geocoding request failed")
		return geo.Point{}, fmt.Errorf("%w: %v", geocoding.ErrRemoteUnavailable, err)
	}

	if !resp.IsSuccess() {
		return geo.Point{}, fmt.Errorf("%w: unexpected status %d", geocoding.ErrRemoteUnavailable, resp.StatusCode())
	}

	var places []place
	if err := json.Unmarshal(resp.Body(), &places); err != nil {
		return geo.Point{}, fmt.Errorf("%w: decode response: %v", geocoding.ErrRemoteUnavailable, err)
	}
	if len(places) == 0 {
		return geo.Point{}, fmt.Errorf("%w: %q", geocoding.ErrNotFound, city)
	}

	lat, errLat := strconv.ParseFloat(places[0].Lat, 64)
	lon, errLon := strconv.ParseFloat(places[0].Lon, 64)
	if errLat != nil || errLon != nil {
		return geo.Point{}, fmt.Errorf("%w: bad coordinates %q,%q", geocoding.ErrRemoteUnavailable, places[0].Lat, places[0].Lon)
	}

	point = geo.Point{Lat: lat, Lon: lon}
	if !point.Valid() {
		return geo.Point{}, fmt.Errorf("%w: coordinate out of range %s", geocoding.ErrRemoteUnavailable, point)
	}

	c.logger.Debug().
		Str("city", city).
		Str("match", places[0].DisplayName).
		Str("point", point.String()).
		Msg("city resolved")

	return point, nil
}
