package engine

import (
	"fmt"
	"time"

	"github.com/quentinrf/tank-monitor/internal/domain"
)

// Interval scopes for the sampling interval estimate
const (
	IntervalScopeSegment = "segment"
	IntervalScopeSeries  = "series"
)

// Config holds the tank calibration and the tuning of the summaries.
// The drop and alert thresholds are empirical values, kept configurable.
type Config struct {
	Strategy    domain.Strategy
	VolumeModel string
	Site        string

	LevelMax              float64 // m
	RatedCapacity         float64 // m³
	Radius                float64 // m
	BaseArea              float64 // m²
	ReferenceUnitCapacity float64 // m³ carried by one tanker truck

	DayStartHour  int
	DayEndHour    int
	IntervalScope string
	MonthToDate   bool

	DropThreshold  float64 // m, positive
	TrendWindow    int
	AlertMinVolume float64 // m³

	WindowOperatingHours float64
	WindowTolerance      time.Duration

	Location *time.Location
}

// DefaultConfig returns the calibration of the Alcaldes tank
func DefaultConfig() Config {
	return Config{
		Strategy:              domain.StrategySegment,
		VolumeModel:           ModelProportional,
		Site:                  "tanque_alcaldes",
		LevelMax:              3.0,
		RatedCapacity:         5000,
		Radius:                23.4,
		BaseArea:              1720.82,
		ReferenceUnitCapacity: 7.57,
		DayStartHour:          6,
		DayEndHour:            16,
		IntervalScope:         IntervalScopeSegment,
		MonthToDate:           true,
		DropThreshold:         0.05,
		TrendWindow:           3,
		AlertMinVolume:        1.0,
		WindowOperatingHours:  10,
		WindowTolerance:       3 * time.Minute,
		Location:              time.Local,
	}
}

// Validate checks the configuration is usable
func (c Config) Validate() error {
	switch c.Strategy {
	case domain.StrategySegment, domain.StrategyWindow:
	default:
		return fmt.Errorf("%w: unknown strategy %q", domain.ErrInvalidConfig, c.Strategy)
	}
	switch c.VolumeModel {
	case ModelProportional, ModelGeometric:
	default:
		return fmt.Errorf("%w: unknown volume model %q", domain.ErrInvalidConfig, c.VolumeModel)
	}
	switch c.IntervalScope {
	case IntervalScopeSegment, IntervalScopeSeries:
	default:
		return fmt.Errorf("%w: unknown interval scope %q", domain.ErrInvalidConfig, c.IntervalScope)
	}
	positive := map[string]float64{
		"level_max":               c.LevelMax,
		"rated_capacity":          c.RatedCapacity,
		"radius":                  c.Radius,
		"base_area":               c.BaseArea,
		"reference_unit_capacity": c.ReferenceUnitCapacity,
	}
	for name, v := range positive {
		if v <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", domain.ErrInvalidConfig, name, v)
		}
	}
	if c.DayStartHour < 0 || c.DayEndHour > 24 || c.DayStartHour >= c.DayEndHour {
		return fmt.Errorf("%w: day hours must satisfy 0 <= start < end <= 24, got [%d,%d)",
			domain.ErrInvalidConfig, c.DayStartHour, c.DayEndHour)
	}
	if c.DropThreshold < 0 {
		return fmt.Errorf("%w: drop threshold must not be negative", domain.ErrInvalidConfig)
	}
	if c.TrendWindow < 1 {
		return fmt.Errorf("%w: trend window must be at least 1", domain.ErrInvalidConfig)
	}
	if c.WindowOperatingHours < 0 {
		return fmt.Errorf("%w: window operating hours must not be negative", domain.ErrInvalidConfig)
	}
	return nil
}
