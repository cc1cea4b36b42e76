package handler

import (
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/api/models"
	"github.com/airmonitor/airmonitor/internal/api/response"
)

// StationHandler handles catalog and search endpoints.
type StationHandler struct {
	ctrl   Orchestrator
	logger zerolog.Logger
}

// NewStationHandler creates a new StationHandler.
func NewStationHandler(ctrl Orchestrator, logger zerolog.Logger) *StationHandler {
	return &StationHandler{ctrl: ctrl, logger: logger}
}

// ListStations handles GET /v1/stations. With ?matched=true only the
// stations in the current search result are returned.
func (h *StationHandler) ListStations(w http.ResponseWriter, r *http.Request) {
	onlyMatched := false
	if raw := r.URL.Query().Get("matched"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			response.BadRequest(w, r, "invalid query parameter", []models.FieldError{
				{Field: "matched", Message: "must be true or false", Code: "INVALID"},
			})
			return
		}
		onlyMatched = v
	}

	st, err := h.ctrl.State(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	items := make([]airquality.Station, 0, len(st.Stations))
	for _, s := range st.Stations {
		if onlyMatched && !s.Matched {
			continue
		}
		items = append(items, s.Station)
	}

	response.JSON(w, r, http.StatusOK, models.StationsResponse{Items: items, Count: len(items)})
}

// ReloadStations handles POST /v1/stations/reload.
func (h *StationHandler) ReloadStations(w http.ResponseWriter, r *http.Request) {
	stations, err := h.ctrl.ReloadCatalog(r.Context())
	if err != nil {
		h.logger.Warn().Err(err).Msg("catalog reload failed")
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.StationsResponse{Items: stations, Count: len(stations)})
}

// SetMatch handles PUT /v1/stations/{stationId}/match.
func (h *StationHandler) SetMatch(w http.ResponseWriter, r *http.Request) {
	stationID, ok := pathID(w, r, "stationId")
	if !ok {
		return
	}

	var req models.MatchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.ctrl.SetStationMatched(r.Context(), stationID, *req.Matched); err != nil {
		response.FromError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// Search handles POST /v1/search.
func (h *StationHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req models.SearchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.ctrl.SearchCity(r.Context(), req.City)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, models.NewSearchResponse(result))
}
