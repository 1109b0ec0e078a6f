package domain

import (
	"encoding/json"
	"time"
)

// Strategy selects how a report summarises a series
type Strategy string

const (
	// StrategySegment splits the series into day and night segments
	StrategySegment Strategy = "segment"
	// StrategyWindow anchors the summary to the 16:00/06:00 reference window
	StrategyWindow Strategy = "window"
)

// Report is the derived value produced once per cycle
type Report struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Strategy    Strategy        `json:"strategy"`
	Site        string          `json:"site,omitempty"`
	Day         *SegmentSummary `json:"day,omitempty"`
	Night       *SegmentSummary `json:"night,omitempty"`
	Window      *WindowSummary  `json:"window,omitempty"`
}

// Alerts returns every alert carried by the report
func (r Report) Alerts() []string {
	var alerts []string
	for _, s := range []*SegmentSummary{r.Day, r.Night} {
		if s != nil {
			alerts = append(alerts, s.Alerts...)
		}
	}
	return alerts
}

// SegmentSummary describes one day or night segment.
// A summary with no samples means "insufficient data" and serialises as {}.
type SegmentSummary struct {
	StartLevel     float64  `json:"start_level"`
	EndLevel       float64  `json:"end_level"`
	StartVolume    float64  `json:"start_volume"`
	EndVolume      float64  `json:"end_volume"`
	NetPumped      float64  `json:"net_pumped"`
	OperatingHours float64  `json:"operating_hours"`
	FlowRateLPS    float64  `json:"flow_rate_lps"`
	Samples        int      `json:"samples"`
	Alerts         []string `json:"alerts"`
}

// IsEmpty reports whether the segment had no readings
func (s SegmentSummary) IsEmpty() bool {
	return s.Samples == 0
}

// MarshalJSON renders an empty summary as an empty object
func (s SegmentSummary) MarshalJSON() ([]byte, error) {
	if s.IsEmpty() {
		return []byte("{}"), nil
	}
	type plain SegmentSummary
	p := plain(s)
	if p.Alerts == nil {
		p.Alerts = []string{}
	}
	return json.Marshal(p)
}

// WindowPoint is a reading picked as a reference point of the window
type WindowPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Level     float64   `json:"level"`
	Volume    float64   `json:"volume"`
}

// WindowSummary describes the 16:00 previous day to 06:00 current day cycle.
// Nil fields are pending: the inputs they depend on are not available yet.
type WindowSummary struct {
	WindowStart    time.Time    `json:"window_start"`
	WindowEnd      time.Time    `json:"window_end"`
	Prev1600       *WindowPoint `json:"prev_1600"`
	Prev0600       *WindowPoint `json:"prev_0600"`
	Current0600    *WindowPoint `json:"current_0600"`
	NetPumped      *float64     `json:"net_pumped"`
	OperatingHours float64      `json:"operating_hours"`
	FlowRateLPS    *float64     `json:"flow_rate_lps"`
}

// Pending reports whether the current-day reference reading is still missing
func (w WindowSummary) Pending() bool {
	return w.Current0600 == nil
}
