// Package worker provides background job processing for airmonitor.
package worker

import (
	"time"
)

// Job types carried in the job_type field of a Pub/Sub message.
const (
	JobCatalogRefresh = "catalog_refresh"
	JobHealthCheck    = "health_check"
)

// RefreshConfig holds configuration for the catalog refresh job.
type RefreshConfig struct {
	// Interval between refreshes in Loop. Zero disables the loop.
	Interval time.Duration

	// Timeout is the timeout for a single refresh.
	// Default: 30 seconds
	Timeout time.Duration

	// MinStations fails a refresh that returns fewer stations.
	// Default: 1
	MinStations int
}

// DefaultRefreshConfig returns the default refresh configuration.
func DefaultRefreshConfig() RefreshConfig {
	return RefreshConfig{
		Timeout:     30 * time.Second,
		MinStations: 1,
	}
}

func (c RefreshConfig) withDefaults() RefreshConfig {
	def := DefaultRefreshConfig()
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MinStations <= 0 {
		c.MinStations = def.MinStations
	}
	return c
}
