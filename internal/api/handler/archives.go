package handler

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/airmonitor/airmonitor/internal/api/models"
	"github.com/airmonitor/airmonitor/internal/api/response"
	"github.com/airmonitor/airmonitor/internal/archive"
	"github.com/airmonitor/airmonitor/internal/archive/export"
)

// ArchiveReader loads a stored record without touching live state.
type ArchiveReader interface {
	Load(ctx context.Context, stationID int, saveDate string) (*archive.Record, error)
}

// ArchiveHandler handles archive endpoints.
type ArchiveHandler struct {
	ctrl     Orchestrator
	archives ArchiveReader
	logger   zerolog.Logger
}

// NewArchiveHandler creates a new ArchiveHandler.
func NewArchiveHandler(ctrl Orchestrator, archives ArchiveReader, logger zerolog.Logger) *ArchiveHandler {
	return &ArchiveHandler{ctrl: ctrl, archives: archives, logger: logger}
}

// ListArchives handles GET /v1/archives. The listing is re-read from the
// store on every call.
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	list, err := h.ctrl.RefreshArchives(r.Context())
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	if list == nil {
		list = []archive.Summary{}
	}
	response.JSON(w, r, http.StatusOK, models.ArchivesResponse{Items: list, Count: len(list)})
}

// SaveArchive handles POST /v1/archives: it snapshots the current sensors
// and cached series under the requested station.
func (h *ArchiveHandler) SaveArchive(w http.ResponseWriter, r *http.Request) {
	var req models.SaveArchiveRequest
	if !decodeBody(w, r, &req) {
		return
	}

	rec, err := h.ctrl.SaveStation(r.Context(), archive.SaveRequest{
		StationID: req.StationID,
		CityName:  req.CityName,
		Address:   req.Address,
	})
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	location := fmt.Sprintf("/v1/archives/%d/export?saveDate=%s", rec.StationID, url.QueryEscape(rec.SaveDate))
	response.Created(w, r, location, rec)
}

// RestoreArchive handles POST /v1/archives/{stationId}/restore?saveDate=.
// The archived sensors and series replace the live ones.
func (h *ArchiveHandler) RestoreArchive(w http.ResponseWriter, r *http.Request) {
	stationID, saveDate, ok := archiveKey(w, r)
	if !ok {
		return
	}

	rec, err := h.ctrl.LoadArchive(r.Context(), stationID, saveDate)
	if err != nil {
		response.FromError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, rec)
}

// ExportArchive handles GET /v1/archives/{stationId}/export?saveDate=&format=.
// The format defaults to xlsx.
func (h *ArchiveHandler) ExportArchive(w http.ResponseWriter, r *http.Request) {
	stationID, saveDate, ok := archiveKey(w, r)
	if !ok {
		return
	}

	formatName := r.URL.Query().Get("format")
	if formatName == "" {
		formatName = string(export.FormatXLSX)
	}
	format, err := export.ParseFormat(formatName)
	if err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "format", Message: "must be xlsx or pdf", Code: "INVALID"},
		})
		return
	}

	rec, err := h.archives.Load(r.Context(), stationID, saveDate)
	if err != nil {
		response.FromError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := format.Write(&buf, rec); err != nil {
		h.logger.Error().Err(err).
			Int("station_id", stationID).
			Str("save_date", rec.SaveDate).
			Str("format", string(format)).
			Msg("archive export failed")
		response.InternalError(w, r, "could not render export")
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, format.FileName(rec)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func archiveKey(w http.ResponseWriter, r *http.Request) (int, string, bool) {
	stationID, ok := pathID(w, r, "stationId")
	if !ok {
		return 0, "", false
	}
	saveDate := r.URL.Query().Get("saveDate")
	if saveDate == "" {
		response.BadRequest(w, r, "saveDate is required", []models.FieldError{
			{Field: "saveDate", Message: "must be an RFC3339 timestamp", Code: "REQUIRED"},
		})
		return 0, "", false
	}
	return stationID, saveDate, true
}
