// Package geocoding resolves free-text place names to coordinates.
package geocoding

import (
	"context"
	"errors"

	"github.com/airmonitor/airmonitor/internal/geo"
)

var (
	// ErrNotFound is returned when the service has no match for the query.
	ErrNotFound = errors.New("place not found")

	// ErrRemoteUnavailable covers transport failures, non-2xx responses and
	// undecodable bodies.
	ErrRemoteUnavailable = errors.New("geocoding service unavailable")
)

// Geocoder resolves a city name to the coordinate of its best match.
type Geocoder interface {
	Resolve(ctx context.Context, city string) (geo.Point, error)
}

// GeocoderFunc adapts a function to the Geocoder interface.
type GeocoderFunc func(ctx context.Context, city string) (geo.Point, error)

// Resolve calls f.
func (f GeocoderFunc) Resolve(ctx context.Context, city string) (geo.Point, error) {
	return f(ctx, city)
}
