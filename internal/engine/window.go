package engine

import (
	"time"

	"github.com/quentinrf/tank-monitor/internal/domain"
)

// Window returns the bounds of the operational day ending today at 06:00
// local time, widened by WindowTolerance on both sides.
func (e *Engine) Window(now time.Time) (start, end time.Time) {
	today := midnight(now.In(e.cfg.Location))
	yesterday := today.AddDate(0, 0, -1)
	start = atHour(yesterday, 6).Add(-e.cfg.WindowTolerance)
	end = atHour(today, 6).Add(e.cfg.WindowTolerance)
	return start, end
}

// SummarizeWindow computes the 16:00 previous day to 06:00 current day
// summary. Fields depending on a missing reading are left nil.
func (e *Engine) SummarizeWindow(readings []domain.Reading, now time.Time) domain.WindowSummary {
	loc := e.cfg.Location
	start, end := e.Window(now)
	today := midnight(now.In(loc))
	yesterday := today.AddDate(0, 0, -1)

	var prevDay, currentDay []domain.Reading
	for _, r := range readings {
		if r.IsNoise() || r.Timestamp.Before(start) || r.Timestamp.After(end) {
			continue
		}
		if r.Timestamp.In(loc).Before(today) {
			prevDay = append(prevDay, r)
		} else {
			currentDay = append(currentDay, r)
		}
	}

	model := Geometric{Radius: e.cfg.Radius}
	summary := domain.WindowSummary{
		WindowStart:    start,
		WindowEnd:      end,
		OperatingHours: e.cfg.WindowOperatingHours,
	}

	if r, ok := nearest(prevDay, atHour(yesterday, 16)); ok {
		summary.Prev1600 = point(r, model)
	}
	if r, ok := nearest(prevDay, atHour(yesterday, 6)); ok {
		summary.Prev0600 = point(r, model)
	}
	if len(currentDay) > 0 {
		summary.Current0600 = point(currentDay[0], model)
	}

	if summary.Current0600 != nil && summary.Prev1600 != nil {
		net := Round(summary.Current0600.Volume-summary.Prev1600.Volume, 2)
		summary.NetPumped = &net
		var flow float64
		if e.cfg.WindowOperatingHours > 0 {
			flow = Round(net*1000/(e.cfg.WindowOperatingHours*3600), 2)
		}
		summary.FlowRateLPS = &flow
	}
	return summary
}

// nearest returns the reading closest to target; ties keep the earlier row
func nearest(readings []domain.Reading, target time.Time) (domain.Reading, bool) {
	var best domain.Reading
	var bestDist time.Duration
	found := false
	for _, r := range readings {
		d := r.Timestamp.Sub(target)
		if d < 0 {
			d = -d
		}
		if !found || d < bestDist {
			best, bestDist, found = r, d, true
		}
	}
	return best, found
}

func point(r domain.Reading, model VolumeModel) *domain.WindowPoint {
	return &domain.WindowPoint{
		Timestamp: r.Timestamp,
		Level:     Round(r.Level, 2),
		Volume:    model.Volume(r.Level),
	}
}

func midnight(t time.Time) time.Time {
	return atHour(t, 0)
}

// atHour returns the wall-clock hour on t's calendar day in t's location,
// which is not always midnight plus hour on daylight-saving days.
func atHour(t time.Time, hour int) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, t.Location())
}
