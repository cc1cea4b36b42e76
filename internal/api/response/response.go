// Package response provides utilities for HTTP response handling.
package response

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/airmonitor/airmonitor/internal/airquality"
	"github.com/airmonitor/airmonitor/internal/api/middleware"
	"github.com/airmonitor/airmonitor/internal/api/models"
	"github.com/airmonitor/airmonitor/internal/archive"
	"github.com/airmonitor/airmonitor/internal/controller"
	"github.com/airmonitor/airmonitor/internal/geocoding"
)

// maxBodyBytes bounds request bodies read by DecodeJSON.
const maxBodyBytes = 1 << 20

// JSON writes a JSON response with the given status code.
// Includes X-Request-Id header for correlation.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	setRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// Created writes a 201 Created response with Location header.
func Created(w http.ResponseWriter, r *http.Request, location string, data any) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	JSON(w, r, http.StatusCreated, data)
}

// NoContent writes a 204 No Content response.
func NoContent(w http.ResponseWriter, r *http.Request) {
	setRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

func setRequestID(w http.ResponseWriter, r *http.Request) {
	if requestID := middleware.GetRequestID(r.Context()); requestID != "" {
		w.Header().Set(middleware.RequestIDHeader, requestID)
	}
}

// Error writes a Problem+JSON error response.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// BadRequest writes a 400 Bad Request error response.
func BadRequest(w http.ResponseWriter, r *http.Request, detail string, errors []models.FieldError) {
	Error(w, r, models.NewBadRequest(middleware.GetRequestID(r.Context()), detail, errors))
}

// NotFound writes a 404 Not Found error response.
func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewNotFound(middleware.GetRequestID(r.Context()), detail))
}

// InternalError writes a 500 Internal Server Error response.
func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewInternalError(middleware.GetRequestID(r.Context()), detail))
}

// ServiceUnavailable writes a 503 Service Unavailable error response.
func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	Error(w, r, models.NewServiceUnavailable(middleware.GetRequestID(r.Context()), detail))
}

// FromError writes the problem response matching a domain error kind.
// Errors of unknown kind become a 500 without leaking their text.
func FromError(w http.ResponseWriter, r *http.Request, err error) {
	Error(w, r, ProblemFor(middleware.GetRequestID(r.Context()), err))
}

// ProblemFor maps a domain error to its problem response.
func ProblemFor(traceID string, err error) *models.Problem {
	switch {
	case errors.Is(err, airquality.ErrStationNotFound):
		return models.NewStationNotFound(traceID, err.Error())
	case errors.Is(err, archive.ErrRecordNotFound):
		return models.NewNotFound(traceID, err.Error())
	case errors.Is(err, geocoding.ErrNotFound):
		return models.NewNotFound(traceID, "City not found.")
	case errors.Is(err, archive.ErrRecordExists):
		return models.NewConflict(traceID, err.Error())
	case errors.Is(err, controller.ErrEmptyQuery):
		return models.NewBadRequest(traceID, "city name is empty", []models.FieldError{
			{Field: "city", Message: "must not be empty", Code: "REQUIRED"},
		})
	case errors.Is(err, airquality.ErrMalformedResponse):
		return models.NewBadGateway(traceID, err.Error())
	case errors.Is(err, airquality.ErrRemoteUnavailable),
		errors.Is(err, geocoding.ErrRemoteUnavailable):
		return models.NewServiceUnavailable(traceID, err.Error())
	case errors.Is(err, controller.ErrStopped),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return models.NewServiceUnavailable(traceID, "the request could not be completed")
	case errors.Is(err, archive.ErrPersistence):
		return models.NewInternalError(traceID, "archive storage failed")
	default:
		return models.NewInternalError(traceID, "an unexpected error occurred")
	}
}

// DecodeJSON reads a JSON request body into dst. Unknown fields and
// trailing data are rejected.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("request body is empty")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if dec.More() {
		return fmt.Errorf("request body must contain a single JSON object")
	}
	return nil
}
