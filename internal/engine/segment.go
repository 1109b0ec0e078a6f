package engine

import (
	"sort"
	"time"

	"github.com/quentinrf/tank-monitor/internal/domain"
)

// Split partitions readings into day ([DayStartHour, DayEndHour) local)
// and night (the remaining hours). Order is preserved.
func (e *Engine) Split(readings []domain.Reading) (day, night []domain.Reading) {
	for _, r := range readings {
		h := r.Hour(e.cfg.Location)
		if h >= e.cfg.DayStartHour && h < e.cfg.DayEndHour {
			day = append(day, r)
		} else {
			night = append(night, r)
		}
	}
	return day, night
}

// Summarize computes the volumetric summary of one segment.
// interval is the representative sampling interval in hours.
func Summarize(segment []domain.Reading, model VolumeModel, interval float64) domain.SegmentSummary {
	if len(segment) == 0 {
		return domain.SegmentSummary{}
	}

	startLevel := segment[0].Level
	endLevel := segment[len(segment)-1].Level
	startVolume := model.Volume(startLevel)
	endVolume := model.Volume(endLevel)

	netPumped := endVolume - startVolume
	if netPumped < 0 {
		netPumped = 0
	}

	operatingHours := float64(risingSteps(segment)) * interval

	var flow float64
	if operatingHours > 0 {
		flow = netPumped * 1000 / (operatingHours * 3600)
	}

	return domain.SegmentSummary{
		StartLevel:     Round(startLevel, 2),
		EndLevel:       Round(endLevel, 2),
		StartVolume:    Round(startVolume, 0),
		EndVolume:      Round(endVolume, 0),
		NetPumped:      Round(netPumped, 0),
		OperatingHours: Round(operatingHours, 1),
		FlowRateLPS:    Round(flow, 1),
		Samples:        len(segment),
		Alerts:         []string{},
	}
}

// risingSteps counts consecutive pairs where the level strictly increases
func risingSteps(readings []domain.Reading) int {
	n := 0
	for i := 1; i < len(readings); i++ {
		if readings[i].Level > readings[i-1].Level {
			n++
		}
	}
	return n
}

// MedianInterval returns the median gap between consecutive readings in
// hours, or 1 when fewer than two readings exist.
func MedianInterval(readings []domain.Reading) float64 {
	if len(readings) < 2 {
		return 1
	}
	gaps := make([]time.Duration, 0, len(readings)-1)
	for i := 1; i < len(readings); i++ {
		gaps = append(gaps, readings[i].Timestamp.Sub(readings[i-1].Timestamp))
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i] < gaps[j] })

	mid := len(gaps) / 2
	if len(gaps)%2 == 1 {
		return gaps[mid].Hours()
	}
	return (gaps[mid-1] + gaps[mid]).Hours() / 2
}
