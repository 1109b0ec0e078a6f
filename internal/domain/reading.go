package domain

import (
	"sort"
	"time"
)

// Reading represents a single tank level measurement
// This is pure domain logic - no database, no sockets, just business concepts
type Reading struct {
	Level     float64   // meters
	Timestamp time.Time
}

// NewReading creates a reading
// Levels are not validated here: a level <= 0 is sensor noise and is
// filtered out by the metrics engine, not rejected at ingest.
func NewReading(level float64, ts time.Time) Reading {
	return Reading{Level: level, Timestamp: ts}
}

// IsNoise returns true if the level cannot be a real measurement
// Business rule: a level at or below zero is a false negative from the sensor
func (r Reading) IsNoise() bool {
	return r.Level <= 0
}

// Hour returns the local hour of the reading in loc
func (r Reading) Hour(loc *time.Location) int {
	return r.Timestamp.In(loc).Hour()
}

// SortReadings orders readings by timestamp ascending, keeping the
// relative order of equal timestamps.
func SortReadings(readings []Reading) {
	sort.SliceStable(readings, func(i, j int) bool {
		return readings[i].Timestamp.Before(readings[j].Timestamp)
	})
}

// PositiveOnly returns the readings whose level is above zero.
func PositiveOnly(readings []Reading) []Reading {
	out := make([]Reading, 0, len(readings))
	for _, r := range readings {
		if !r.IsNoise() {
			out = append(out, r)
		}
	}
	return out
}

// Latest returns the most recent reading
func Latest(readings []Reading) (Reading, bool) {
	if len(readings) == 0 {
		return Reading{}, false
	}
	latest := readings[0]
	for _, r := range readings[1:] {
		if !r.Timestamp.Before(latest.Timestamp) {
			latest = r
		}
	}
	return latest, true
}

// SeriesRow is the flat representation of a reading persisted in the
// series snapshot and served by the read surfaces.
type SeriesRow struct {
	Level     float64 `json:"level"`
	Timestamp string  `json:"timestamp"`
	Site      string  `json:"site"`
	LocalTime string  `json:"local_time"`
}

// TimestampLayout is the layout used for timestamps in snapshots
const TimestampLayout = "2006-01-02 15:04:05"

// ToRow flattens a reading for the given site
func (r Reading) ToRow(site string, loc *time.Location) SeriesRow {
	return SeriesRow{
		Level:     r.Level,
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
		Site:      site,
		LocalTime: r.Timestamp.In(loc).Format(TimestampLayout),
	}
}

// ToRows flattens a series for the given site
func ToRows(readings []Reading, site string, loc *time.Location) []SeriesRow {
	rows := make([]SeriesRow, len(readings))
	for i, r := range readings {
		rows[i] = r.ToRow(site, loc)
	}
	return rows
}
