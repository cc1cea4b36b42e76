package models

import "strings"

// SearchRequest is the body of POST /v1/search.
type SearchRequest struct {
	City string `json:"city"`
}

// Validate returns field errors for an invalid request.
func (r SearchRequest) Validate() []FieldError {
	if strings.TrimSpace(r.City) == "" {
		return []FieldError{{Field: "city", Message: "must not be empty", Code: "REQUIRED"}}
	}
	return nil
}

// MatchRequest is the body of PUT /v1/stations/{stationId}/match.
type MatchRequest struct {
	Matched *bool `json:"matched"`
}

// Validate returns field errors for an invalid request.
func (r MatchRequest) Validate() []FieldError {
	if r.Matched == nil {
		return []FieldError{{Field: "matched", Message: "is required", Code: "REQUIRED"}}
	}
	return nil
}

// SaveArchiveRequest is the body of POST /v1/archives. Empty CityName and
// Address fall back to the catalog values.
type SaveArchiveRequest struct {
	StationID int    `json:"stationId"`
	CityName  string `json:"cityName,omitempty"`
	Address   string `json:"address,omitempty"`
}

// Validate returns field errors for an invalid request.
func (r SaveArchiveRequest) Validate() []FieldError {
	if r.StationID <= 0 {
		return []FieldError{{Field: "stationId", Message: "must be a positive station id", Code: "OUT_OF_RANGE"}}
	}
	return nil
}
