package engine

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/quentinrf/tank-monitor/internal/domain"
)

func newTestEngine(t *testing.T, mutate func(*Config)) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Location = time.UTC
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e
}

func at(day, hour, minute int, level float64) domain.Reading {
	return domain.NewReading(level, time.Date(2025, 3, day, hour, minute, 0, 0, time.UTC))
}

func approx(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestProportional_Volume(t *testing.T) {
	model := Proportional{LevelMax: 3.0, Capacity: 5000}

	if got := model.Volume(1.5); got != 2500.0 {
		t.Errorf("expected 2500, got %v", got)
	}

	prev := model.Volume(0)
	for level := 0.1; level <= 3.0; level += 0.1 {
		v := model.Volume(level)
		if v < prev {
			t.Fatalf("volume decreased at level %v: %v < %v", level, v, prev)
		}
		prev = v
	}
}

func TestGeometric_Volume(t *testing.T) {
	model := Geometric{Radius: 23.4}

	want := Round(math.Pi*23.4*23.4, 4)
	if got := model.Volume(1.0); got != want {
		t.Errorf("expected %v, got %v", want, got)
	}

	for _, level := range []float64{0.25, 0.5, 1.0, 1.37} {
		single := model.Volume(level)
		double := model.Volume(2 * level)
		if !approx(double, 2*single, 1e-3) {
			t.Errorf("level %v: volume(2L)=%v, 2*volume(L)=%v", level, double, 2*single)
		}
	}
}

func TestRound_HalfEven(t *testing.T) {
	tests := []struct {
		v      float64
		places int32
		want   float64
	}{
		{v: 2.5, places: 0, want: 2},
		{v: 3.5, places: 0, want: 4},
		{v: 0.125, places: 2, want: 0.12},
		{v: 1666.6667, places: 0, want: 1667},
		{v: math.NaN(), places: 1, want: 0},
	}

	for _, tt := range tests {
		if got := Round(tt.v, tt.places); got != tt.want {
			t.Errorf("Round(%v, %d) = %v, want %v", tt.v, tt.places, got, tt.want)
		}
	}
}

func TestSplit_HourBoundaries(t *testing.T) {
	e := newTestEngine(t, nil)

	readings := []domain.Reading{
		at(3, 5, 59, 1),
		at(3, 6, 0, 1),
		at(3, 15, 59, 1),
		at(3, 16, 0, 1),
		at(3, 23, 30, 1),
		at(4, 0, 10, 1),
	}

	day, night := e.Split(readings)
	if len(day) != 2 {
		t.Errorf("expected 2 day readings, got %d", len(day))
	}
	if len(night) != 4 {
		t.Errorf("expected 4 night readings, got %d", len(night))
	}
}

func TestSplit_UsesLocation(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.Location = time.FixedZone("CST", -6*3600)
	})

	// 13:00 UTC is 07:00 in CST
	day, night := e.Split([]domain.Reading{at(3, 13, 0, 1)})
	if len(day) != 1 || len(night) != 0 {
		t.Errorf("expected the reading in the day segment, got day=%d night=%d", len(day), len(night))
	}
}

func TestSummarize_DaySegment(t *testing.T) {
	model := Proportional{LevelMax: 3.0, Capacity: 5000}
	segment := []domain.Reading{
		at(3, 8, 0, 1.0),
		at(3, 9, 0, 1.2),
		at(3, 10, 0, 1.1),
	}

	s := Summarize(segment, model, MedianInterval(segment))

	if s.StartLevel != 1.0 || s.EndLevel != 1.1 {
		t.Errorf("unexpected levels: start=%v end=%v", s.StartLevel, s.EndLevel)
	}
	if !approx(s.StartVolume, 1666.7, 1) {
		t.Errorf("expected start volume near 1666.7, got %v", s.StartVolume)
	}
	if !approx(s.EndVolume, 1833.3, 1) {
		t.Errorf("expected end volume near 1833.3, got %v", s.EndVolume)
	}
	if !approx(s.NetPumped, 166.7, 1) {
		t.Errorf("expected net pumped near 166.7, got %v", s.NetPumped)
	}
	if s.OperatingHours != 1.0 {
		t.Errorf("expected 1 operating hour, got %v", s.OperatingHours)
	}
	if s.FlowRateLPS != 46.3 {
		t.Errorf("expected flow 46.3 l/s, got %v", s.FlowRateLPS)
	}
	if s.Samples != 3 {
		t.Errorf("expected 3 samples, got %d", s.Samples)
	}
}

func TestSummarize_NetPumpedNeverNegative(t *testing.T) {
	model := Proportional{LevelMax: 3.0, Capacity: 5000}
	segment := []domain.Reading{
		at(3, 8, 0, 2.0),
		at(3, 9, 0, 2.1),
		at(3, 10, 0, 1.2),
	}

	s := Summarize(segment, model, 1)

	if s.NetPumped != 0 {
		t.Errorf("expected net pumped 0 for a falling segment, got %v", s.NetPumped)
	}
	if s.OperatingHours != 1 {
		t.Errorf("expected 1 operating hour, got %v", s.OperatingHours)
	}
	if s.FlowRateLPS != 0 {
		t.Errorf("expected flow 0 with no net pumped volume, got %v", s.FlowRateLPS)
	}
}

func TestSummarize_ZeroOperatingHours(t *testing.T) {
	model := Proportional{LevelMax: 3.0, Capacity: 5000}

	tests := []struct {
		name    string
		segment []domain.Reading
	}{
		{name: "single reading", segment: []domain.Reading{at(3, 8, 0, 1.0)}},
		{name: "flat", segment: []domain.Reading{at(3, 8, 0, 1.0), at(3, 9, 0, 1.0)}},
		{name: "falling", segment: []domain.Reading{at(3, 8, 0, 1.0), at(3, 9, 0, 0.8)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Summarize(tt.segment, model, MedianInterval(tt.segment))
			if s.OperatingHours != 0 {
				t.Errorf("expected 0 operating hours, got %v", s.OperatingHours)
			}
			if s.FlowRateLPS != 0 || math.IsNaN(s.FlowRateLPS) || math.IsInf(s.FlowRateLPS, 0) {
				t.Errorf("expected flow 0, got %v", s.FlowRateLPS)
			}
		})
	}
}

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil, Geometric{Radius: 23.4}, 1)
	if !s.IsEmpty() {
		t.Errorf("expected empty summary, got %+v", s)
	}
}

func TestMedianInterval(t *testing.T) {
	tests := []struct {
		name     string
		readings []domain.Reading
		want     float64
	}{
		{name: "empty falls back to one", readings: nil, want: 1},
		{name: "single falls back to one", readings: []domain.Reading{at(3, 8, 0, 1)}, want: 1},
		{name: "odd gaps", readings: []domain.Reading{at(3, 8, 0, 1), at(3, 8, 5, 1), at(3, 8, 10, 1), at(3, 9, 10, 1)}, want: 5.0 / 60},
		{name: "even gaps", readings: []domain.Reading{at(3, 8, 0, 1), at(3, 8, 10, 1), at(3, 8, 40, 1)}, want: 20.0 / 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MedianInterval(tt.readings); !approx(got, tt.want, 1e-9) {
				t.Errorf("MedianInterval() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDetectNocturnalWithdrawals_SingleDrop(t *testing.T) {
	e := newTestEngine(t, nil)
	night := []domain.Reading{
		at(3, 20, 0, 1.0),
		at(3, 20, 5, 1.0),
		at(3, 20, 10, 1.0),
		at(3, 20, 15, 1.0),
		at(3, 20, 20, 0.9),
	}

	w := e.DetectNocturnalWithdrawals(night)

	if w.Events != 1 {
		t.Fatalf("expected 1 event, got %d", w.Events)
	}
	if !approx(w.Volume, 172.082, 1e-6) {
		t.Errorf("expected extracted volume 172.082, got %v", w.Volume)
	}
	if !approx(w.UnitEquivalent, 172.082/7.57, 1e-6) {
		t.Errorf("unexpected unit equivalent %v", w.UnitEquivalent)
	}
	if len(w.Alerts) != 3 {
		t.Fatalf("expected 3 alert lines, got %d: %v", len(w.Alerts), w.Alerts)
	}
	if !strings.Contains(w.Alerts[0], "1 events") {
		t.Errorf("expected event count in first alert, got %q", w.Alerts[0])
	}
	if !strings.Contains(w.Alerts[1], "172.08 m³") || !strings.Contains(w.Alerts[1], "172082 litres") {
		t.Errorf("expected volume in second alert, got %q", w.Alerts[1])
	}
	if !strings.Contains(w.Alerts[2], "22.7") {
		t.Errorf("expected tanker equivalent in third alert, got %q", w.Alerts[2])
	}
}

func TestDetectNocturnalWithdrawals_NoAlerts(t *testing.T) {
	e := newTestEngine(t, nil)

	tests := []struct {
		name  string
		night []domain.Reading
	}{
		{
			name: "all deltas within threshold",
			night: []domain.Reading{
				at(3, 20, 0, 1.0), at(3, 20, 5, 1.2), at(3, 20, 10, 1.4),
				at(3, 20, 15, 1.6), at(3, 20, 20, 1.56), at(3, 20, 25, 1.52),
			},
		},
		{
			name: "gradual draw-down",
			night: []domain.Reading{
				at(3, 20, 0, 1.0), at(3, 20, 5, 0.9), at(3, 20, 10, 0.8),
				at(3, 20, 15, 0.7), at(3, 20, 20, 0.6),
			},
		},
		{
			name: "drop without a full trend window",
			night: []domain.Reading{
				at(3, 20, 0, 1.0), at(3, 20, 5, 1.0), at(3, 20, 10, 0.5),
			},
		},
		{
			name:  "single reading",
			night: []domain.Reading{at(3, 20, 0, 1.0)},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := e.DetectNocturnalWithdrawals(tt.night)
			if len(w.Alerts) != 0 {
				t.Errorf("expected no alerts, got %v", w.Alerts)
			}
			if w.Alerts == nil {
				t.Error("expected an empty, non-nil alert list")
			}
		})
	}
}

func TestDetectNocturnalWithdrawals_BelowAlertVolume(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.BaseArea = 5
	})
	night := []domain.Reading{
		at(3, 20, 0, 1.0), at(3, 20, 5, 1.0), at(3, 20, 10, 1.0),
		at(3, 20, 15, 1.0), at(3, 20, 20, 0.9),
	}

	w := e.DetectNocturnalWithdrawals(night)

	if w.Events != 1 {
		t.Errorf("expected the event to be counted, got %d", w.Events)
	}
	if len(w.Alerts) != 0 {
		t.Errorf("expected no alert for 0.5 m³, got %v", w.Alerts)
	}
}

func TestCompute_SegmentStrategy(t *testing.T) {
	e := newTestEngine(t, nil)
	now := time.Date(2025, 3, 4, 7, 0, 0, 0, time.UTC)

	readings := []domain.Reading{
		at(3, 20, 20, 0.9), // out of order on purpose
		at(3, 8, 0, 1.0),
		at(3, 9, 0, 1.2),
		at(3, 9, 30, 0), // sensor noise
		at(3, 10, 0, 1.1),
		at(3, 20, 0, 1.0),
		at(3, 20, 5, 1.0),
		at(3, 20, 10, 1.0),
		at(3, 20, 15, 1.0),
		domain.NewReading(2.9, time.Date(2025, 2, 28, 9, 0, 0, 0, time.UTC)), // previous month
	}
	input := append([]domain.Reading(nil), readings...)

	r := e.Compute(readings, now)

	if r.Strategy != domain.StrategySegment {
		t.Errorf("expected segment strategy, got %q", r.Strategy)
	}
	if r.Window != nil {
		t.Error("expected no window summary")
	}
	if r.Day == nil || r.Day.Samples != 3 {
		t.Fatalf("expected 3 day samples, got %+v", r.Day)
	}
	if r.Day.StartLevel != 1.0 {
		t.Errorf("expected day to start at 1.0 (previous month dropped), got %v", r.Day.StartLevel)
	}
	if len(r.Day.Alerts) != 0 {
		t.Errorf("expected no day alerts, got %v", r.Day.Alerts)
	}
	if r.Night == nil || r.Night.Samples != 5 {
		t.Fatalf("expected 5 night samples, got %+v", r.Night)
	}
	if len(r.Night.Alerts) != 3 {
		t.Errorf("expected night alerts, got %v", r.Night.Alerts)
	}
	if len(r.Alerts()) != 3 {
		t.Errorf("expected report alerts to aggregate segments, got %v", r.Alerts())
	}
	for i := range readings {
		if readings[i] != input[i] {
			t.Fatal("Compute must not reorder the caller's slice")
		}
	}
}

func TestCompute_EmptySegments(t *testing.T) {
	e := newTestEngine(t, nil)
	now := time.Date(2025, 3, 4, 7, 0, 0, 0, time.UTC)

	r := e.Compute([]domain.Reading{at(3, 8, 0, 0), at(3, 21, 0, -1)}, now)

	if r.Day == nil || !r.Day.IsEmpty() {
		t.Errorf("expected empty day summary, got %+v", r.Day)
	}
	if r.Night == nil || !r.Night.IsEmpty() {
		t.Errorf("expected empty night summary, got %+v", r.Night)
	}
}

func TestCompute_SeriesIntervalScope(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.IntervalScope = IntervalScopeSeries
		c.MonthToDate = false
	})
	now := time.Date(2025, 3, 4, 7, 0, 0, 0, time.UTC)

	// day has a single rising step one hour apart, the series median is 5 minutes
	readings := []domain.Reading{
		at(3, 5, 50, 1.0), at(3, 5, 55, 1.0),
		at(3, 8, 0, 1.0), at(3, 9, 0, 1.2),
		at(3, 16, 0, 1.2), at(3, 16, 5, 1.2), at(3, 16, 10, 1.2),
		at(3, 16, 15, 1.2), at(3, 16, 20, 1.2), at(3, 16, 25, 1.2),
	}

	r := e.Compute(readings, now)

	want := Round(5.0/60, 1)
	if r.Day.OperatingHours != want {
		t.Errorf("expected %v operating hours with series interval, got %v", want, r.Day.OperatingHours)
	}
}

func TestSummarizeWindow(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.Strategy = domain.StrategyWindow
	})
	now := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)
	model := Geometric{Radius: 23.4}

	readings := []domain.Reading{
		at(9, 5, 50, 3.0),  // before the window
		at(9, 5, 58, 2.0),  // nearest to 06:00
		at(9, 6, 10, 2.1),
		at(9, 15, 50, 1.5), // nearest to 16:00
		at(9, 16, 20, 1.6),
		at(10, 0, 30, 2.5), // first reading of today
		at(10, 5, 0, 2.6),
		at(10, 6, 30, 2.7), // after the window
	}

	r := e.Compute(readings, now)
	w := r.Window
	if w == nil {
		t.Fatal("expected a window summary")
	}
	if r.Day != nil || r.Night != nil {
		t.Error("expected no segment summaries for the window strategy")
	}

	if w.Prev0600 == nil || w.Prev0600.Level != 2.0 {
		t.Errorf("expected previous 06:00 level 2.0, got %+v", w.Prev0600)
	}
	if w.Prev1600 == nil || w.Prev1600.Level != 1.5 {
		t.Errorf("expected previous 16:00 level 1.5, got %+v", w.Prev1600)
	}
	if w.Current0600 == nil || w.Current0600.Level != 2.5 {
		t.Fatalf("expected current 06:00 level 2.5, got %+v", w.Current0600)
	}
	if w.Current0600.Volume != model.Volume(2.5) {
		t.Errorf("expected geometric volume %v, got %v", model.Volume(2.5), w.Current0600.Volume)
	}

	wantNet := Round(model.Volume(2.5)-model.Volume(1.5), 2)
	if w.NetPumped == nil || *w.NetPumped != wantNet {
		t.Fatalf("expected net pumped %v, got %v", wantNet, w.NetPumped)
	}
	if w.OperatingHours != 10 {
		t.Errorf("expected the configured 10 operating hours, got %v", w.OperatingHours)
	}
	wantFlow := Round(wantNet*1000/(10*3600), 2)
	if w.FlowRateLPS == nil || *w.FlowRateLPS != wantFlow {
		t.Errorf("expected flow %v, got %v", wantFlow, w.FlowRateLPS)
	}
}

func TestSummarizeWindow_Pending(t *testing.T) {
	e := newTestEngine(t, func(c *Config) {
		c.Strategy = domain.StrategyWindow
	})
	now := time.Date(2025, 3, 10, 0, 5, 0, 0, time.UTC)

	w := e.SummarizeWindow([]domain.Reading{at(9, 16, 0, 1.5)}, now)

	if !w.Pending() {
		t.Error("expected a pending summary")
	}
	if w.NetPumped != nil || w.FlowRateLPS != nil {
		t.Errorf("expected nil derived fields, got net=%v flow=%v", w.NetPumped, w.FlowRateLPS)
	}
	if w.Prev1600 == nil {
		t.Error("expected the previous 16:00 reading to be present")
	}
}

func TestSummarizeWindow_TieKeepsFirst(t *testing.T) {
	e := newTestEngine(t, nil)
	now := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)

	w := e.SummarizeWindow([]domain.Reading{
		at(9, 15, 50, 1.4),
		at(9, 16, 10, 1.8),
	}, now)

	if w.Prev1600 == nil || w.Prev1600.Level != 1.4 {
		t.Errorf("expected the earlier reading on a tie, got %+v", w.Prev1600)
	}
}

func TestSummarizeWindow_DaylightSavingDay(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Fatalf("failed to load location: %v", err)
	}
	e := newTestEngine(t, func(c *Config) {
		c.Strategy = domain.StrategyWindow
		c.Location = loc
	})
	local := func(day, hour, minute int, level float64) domain.Reading {
		return domain.NewReading(level, time.Date(2025, 3, day, hour, minute, 0, 0, loc))
	}
	// clocks jump from 02:00 to 03:00 on 2025-03-09
	now := time.Date(2025, 3, 10, 7, 0, 0, 0, loc)
	model := Geometric{Radius: 23.4}

	start, end := e.Window(now)
	if want := time.Date(2025, 3, 9, 5, 57, 0, 0, loc); !start.Equal(want) {
		t.Errorf("expected window start %v, got %v", want, start)
	}
	if want := time.Date(2025, 3, 10, 6, 3, 0, 0, loc); !end.Equal(want) {
		t.Errorf("expected window end %v, got %v", want, end)
	}

	w := e.SummarizeWindow([]domain.Reading{
		local(9, 6, 0, 1.0),
		local(9, 16, 0, 1.5),
		local(9, 17, 0, 1.7),
		local(10, 0, 5, 2.0),
	}, now)

	if w.Prev0600 == nil || w.Prev0600.Level != 1.0 {
		t.Errorf("expected previous 06:00 level 1.0, got %+v", w.Prev0600)
	}
	if w.Prev1600 == nil || w.Prev1600.Level != 1.5 {
		t.Errorf("expected previous 16:00 level 1.5, got %+v", w.Prev1600)
	}
	wantNet := Round(model.Volume(2.0)-model.Volume(1.5), 2)
	if w.NetPumped == nil || *w.NetPumped != wantNet {
		t.Errorf("expected net pumped %v, got %v", wantNet, w.NetPumped)
	}
}

func TestQueryStart(t *testing.T) {
	now := time.Date(2025, 3, 10, 7, 0, 0, 0, time.UTC)

	seg := newTestEngine(t, nil)
	if got := seg.QueryStart(now, 24*time.Hour); !got.Equal(now.Add(-24 * time.Hour)) {
		t.Errorf("segment strategy: unexpected start %v", got)
	}

	win := newTestEngine(t, func(c *Config) { c.Strategy = domain.StrategyWindow })
	want := time.Date(2025, 3, 9, 5, 57, 0, 0, time.UTC)
	if got := win.QueryStart(now, 24*time.Hour); !got.Equal(want) {
		t.Errorf("window strategy: expected %v, got %v", want, got)
	}
	if got := win.QueryStart(now, 72*time.Hour); !got.Equal(now.Add(-72 * time.Hour)) {
		t.Errorf("window strategy keeps a wider query window, got %v", got)
	}
}

func TestNewEngine_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown strategy", mutate: func(c *Config) { c.Strategy = "weekly" }},
		{name: "unknown model", mutate: func(c *Config) { c.VolumeModel = "spherical" }},
		{name: "zero level max", mutate: func(c *Config) { c.LevelMax = 0 }},
		{name: "negative radius", mutate: func(c *Config) { c.Radius = -1 }},
		{name: "inverted day", mutate: func(c *Config) { c.DayStartHour, c.DayEndHour = 16, 6 }},
		{name: "empty trend window", mutate: func(c *Config) { c.TrendWindow = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := NewEngine(cfg); !errors.Is(err, domain.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
