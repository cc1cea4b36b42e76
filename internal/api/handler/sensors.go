package handler

import (
	"net/http"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/api/models"
	"github.com/airmonitor/airmonitor/internal/api/response"
)

// SensorHandler handles sensor list and measurement endpoints.
type SensorHandler struct {
	ctrl Orchestrator
}

// NewSensorHandler creates a new SensorHandler.
func NewSensorHandler(ctrl Orchestrator) *SensorHandler {
	return &SensorHandler{ctrl: ctrl}
}

// FetchSensors handles POST /v1/stations/{stationId}/sensors: it loads the
// station's sensors from the remote API and makes them current.
func (h *SensorHandler) FetchSensors(w http.ResponseWriter, r *http.Request) {
	stationID, ok := pathID(w, r, "stationId")
	if !ok {
		return
	}

	sensors, err := h.ctrl.FetchSensors(r.Context(), stationID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	if sensors == nil {
		sensors = []airquality.SensorDescriptor{}
	}
	response.JSON(w, r, http.StatusOK, models.SensorsResponse{StationID: stationID, Items: sensors})
}

// ListSensors handles GET /v1/sensors: the current sensor list.
func (h *SensorHandler) ListSensors(w http.ResponseWriter, r *http.Request) {
	st, err := h.ctrl.State(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	items := st.Sensors
	if items == nil {
		items = []airquality.SensorDescriptor{}
	}
	response.JSON(w, r, http.StatusOK, models.SensorsResponse{StationID: st.StationID, Items: items})
}

// FetchMeasurements handles POST /v1/sensors/{sensorId}/measurements.
func (h *SensorHandler) FetchMeasurements(w http.ResponseWriter, r *http.Request) {
	sensorID, ok := pathID(w, r, "sensorId")
	if !ok {
		return
	}

	measurements, err := h.ctrl.FetchSensorData(r.Context(), sensorID)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	if measurements == nil {
		measurements = []airquality.Measurement{}
	}
	response.JSON(w, r, http.StatusOK, models.MeasurementsResponse{SensorID: sensorID, Items: measurements})
}

// RemoveMeasurements handles DELETE /v1/sensors/{sensorId}/measurements.
func (h *SensorHandler) RemoveMeasurements(w http.ResponseWriter, r *http.Request) {
	sensorID, ok := pathID(w, r, "sensorId")
	if !ok {
		return
	}

	if err := h.ctrl.RemoveSensorData(r.Context(), sensorID); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.NoContent(w, r)
}
