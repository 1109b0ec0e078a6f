// Package engine computes tank reports from a series of level readings.
package engine

import (
	"time"

	"github.com/quentinrf/tank-monitor/internal/domain"
)

// Engine turns a reading series into a Report
type Engine struct {
	cfg   Config
	model VolumeModel
}

// NewEngine validates cfg and builds the selected volume model
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var model VolumeModel
	switch cfg.VolumeModel {
	case ModelGeometric:
		model = Geometric{Radius: cfg.Radius}
	default:
		model = Proportional{LevelMax: cfg.LevelMax, Capacity: cfg.RatedCapacity}
	}

	return &Engine{cfg: cfg, model: model}, nil
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Model returns the volume model used by segment summaries
func (e *Engine) Model() VolumeModel {
	return e.model
}

// QueryStart returns the earliest instant the active strategy needs when
// the configured query window ends at now.
func (e *Engine) QueryStart(now time.Time, window time.Duration) time.Time {
	start := now.Add(-window)
	if e.cfg.Strategy == domain.StrategyWindow {
		if ws, _ := e.Window(now); ws.Before(start) {
			start = ws
		}
	}
	return start
}

// Compute builds the report for readings as of now. The input slice is
// not modified.
func (e *Engine) Compute(readings []domain.Reading, now time.Time) domain.Report {
	series := make([]domain.Reading, len(readings))
	copy(series, readings)
	domain.SortReadings(series)
	series = domain.PositiveOnly(series)

	report := domain.Report{
		GeneratedAt: now,
		Strategy:    e.cfg.Strategy,
		Site:        e.cfg.Site,
	}

	if e.cfg.Strategy == domain.StrategyWindow {
		w := e.SummarizeWindow(series, now)
		report.Window = &w
		return report
	}

	if e.cfg.MonthToDate {
		series = e.sinceMonthStart(series, now)
	}

	day, night := e.Split(series)
	daySummary := Summarize(day, e.model, e.interval(day, series))
	nightSummary := Summarize(night, e.model, e.interval(night, series))
	if !nightSummary.IsEmpty() {
		nightSummary.Alerts = e.DetectNocturnalWithdrawals(night).Alerts
	}

	report.Day = &daySummary
	report.Night = &nightSummary
	return report
}

func (e *Engine) interval(segment, series []domain.Reading) float64 {
	if e.cfg.IntervalScope == IntervalScopeSeries {
		return MedianInterval(series)
	}
	return MedianInterval(segment)
}

func (e *Engine) sinceMonthStart(readings []domain.Reading, now time.Time) []domain.Reading {
	local := now.In(e.cfg.Location)
	first := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, e.cfg.Location)
	out := make([]domain.Reading, 0, len(readings))
	for _, r := range readings {
		if !r.Timestamp.Before(first) {
			out = append(out, r)
		}
	}
	return out
}
