package domain

import (
	"context"
	"time"
)

// SeriesSource defines how tank level readings are fetched
// This is a PORT - adapters (MySQL, SQLite, Memory, Mock) will implement it
type SeriesSource interface {
	// FetchReadings returns the readings within [start, end], ordered by
	// timestamp ascending. An empty slice with a nil error is a valid result.
	FetchReadings(ctx context.Context, start, end time.Time) ([]Reading, error)

	// Close releases any resources
	Close() error
}
