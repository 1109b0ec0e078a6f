package mock

import (
	"context"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/quentinrf/tank-monitor/internal/domain"
)

// TankSimulator simulates the level logger of a municipal tank for development
// This implements the domain.SeriesSource interface
type TankSimulator struct {
	baseLevel float64
	variation float64
	step      time.Duration
	loc       *time.Location
}

// NewTankSimulator creates a source that returns realistic series
// baseLevel: average level in meters (e.g., 1.8 for a 3 m tank)
// variation: +/- sensor noise in meters (e.g., 0.01)
func NewTankSimulator(baseLevel, variation float64, step time.Duration, loc *time.Location) *TankSimulator {
	if step <= 0 {
		step = 5 * time.Minute
	}
	if loc == nil {
		loc = time.Local
	}
	return &TankSimulator{
		baseLevel: baseLevel,
		variation: variation,
		step:      step,
		loc:       loc,
	}
}

// FetchReadings returns one simulated reading per step within [start, end]
// The tank fills while pumps run during the day and drains at night.
// The same instant always yields the same level.
func (s *TankSimulator) FetchReadings(ctx context.Context, start, end time.Time) ([]domain.Reading, error) {
	var readings []domain.Reading
	first := start.Truncate(s.step)
	if first.Before(start) {
		first = first.Add(s.step)
	}
	for ts := first; !ts.After(end); ts = ts.Add(s.step) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		readings = append(readings, domain.NewReading(s.levelAt(ts), ts))
	}
	return readings, nil
}

func (s *TankSimulator) levelAt(ts time.Time) float64 {
	local := ts.In(s.loc)
	hour := float64(local.Hour()) + float64(local.Minute())/60

	// +0.4 m at 16:00 after pumping from 06:00, back to -0.4 m by 06:00
	var swing float64
	if hour >= 6 && hour < 16 {
		swing = -0.4 + 0.8*(hour-6)/10
	} else {
		night := math.Mod(hour-16+24, 24)
		swing = 0.4 - 0.8*night/14
	}

	// Random value around the curve +/- variation, seeded by the instant
	h := fnv.New64a()
	_, _ = h.Write([]byte(ts.UTC().Format(time.RFC3339)))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))
	noise := (rng.Float64() - 0.5) * 2 * s.variation

	level := s.baseLevel + swing + noise

	// Ensure non-negative
	if level < 0 {
		level = 0
	}
	return math.Round(level*1000) / 1000
}

// Close is a no-op for the simulator
func (s *TankSimulator) Close() error {
	return nil
}
