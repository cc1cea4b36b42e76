package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/api/models"
	"github.com/airmonitor/airmonitor/internal/api/response"
	"github.com/airmonitor/airmonitor/internal/archive"
	"github.com/airmonitor/airmonitor/internal/controller"
)

// Orchestrator is the controller surface the HTTP API drives.
type Orchestrator interface {
	State(ctx context.Context) (controller.State, error)
	Subscribe() *controller.Subscription
	ReloadCatalog(ctx context.Context) ([]airquality.Station, error)
	SearchCity(ctx context.Context, city string) (airquality.SearchResult, error)
	SetStationMatched(ctx context.Context, stationID int, matched bool) error
	FetchSensors(ctx context.Context, stationID int) ([]airquality.SensorDescriptor, error)
	FetchSensorData(ctx context.Context, sensorID int) ([]airquality.Measurement, error)
	RemoveSensorData(ctx context.Context, sensorID int) error
	SaveStation(ctx context.Context, req archive.SaveRequest) (*archive.Record, error)
	RefreshArchives(ctx context.Context) ([]archive.Summary, error)
	LoadArchive(ctx context.Context, stationID int, saveDate string) (*archive.Record, error)
}

// pathID parses a positive integer URL parameter, writing a 400 problem
// when it is missing or malformed.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		response.BadRequest(w, r, "invalid path parameter", []models.FieldError{
			{Field: name, Message: "must be a positive integer", Code: "INVALID"},
		})
		return 0, false
	}
	return id, true
}

// decodeBody decodes and validates a JSON body, writing a 400 problem on
// failure.
func decodeBody[T interface{ Validate() []models.FieldError }](w http.ResponseWriter, r *http.Request, dst *T) bool {
	if err := response.DecodeJSON(r, dst); err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return false
	}
	if errs := (*dst).Validate(); len(errs) > 0 {
		response.BadRequest(w, r, "request validation failed", errs)
		return false
	}
	return true
}
