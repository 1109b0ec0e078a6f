package engine

import (
	"fmt"
	"math"

	"github.com/quentinrf/tank-monitor/internal/domain"
)

// Withdrawal describes unexplained night-time drops in a segment
type Withdrawal struct {
	Events         int
	Volume         float64 // m³
	UnitEquivalent float64
	Alerts         []string
}

// DetectNocturnalWithdrawals flags sudden drops that follow a stable or
// rising trend. A step is significant when its delta is below
// -DropThreshold and the mean of the TrendWindow deltas before it is >= 0.
// Alerts are emitted only when the extracted volume exceeds AlertMinVolume.
func (e *Engine) DetectNocturnalWithdrawals(segment []domain.Reading) Withdrawal {
	w := Withdrawal{Alerts: []string{}}
	if len(segment) < 2 {
		return w
	}

	deltas := make([]float64, len(segment))
	for i := 1; i < len(segment); i++ {
		deltas[i] = segment[i].Level - segment[i-1].Level
	}

	tw := e.cfg.TrendWindow
	var dropped float64
	for i := 1; i < len(deltas); i++ {
		if deltas[i] >= -e.cfg.DropThreshold {
			continue
		}
		// the trend needs a full window of deltas before this step
		if i-tw < 1 {
			continue
		}
		var sum float64
		for _, d := range deltas[i-tw : i] {
			sum += d
		}
		if sum/float64(tw) < 0 {
			continue
		}
		w.Events++
		dropped += math.Abs(deltas[i])
	}

	w.Volume = dropped * e.cfg.BaseArea
	w.UnitEquivalent = w.Volume / e.cfg.ReferenceUnitCapacity

	if w.Events > 0 && w.Volume > e.cfg.AlertMinVolume {
		w.Alerts = append(w.Alerts,
			fmt.Sprintf("Unauthorized night-time withdrawals: %d events", w.Events),
			fmt.Sprintf("Total extracted volume: %.2f m³ (%.0f litres)", w.Volume, w.Volume*1000),
			fmt.Sprintf("Equivalent to %.1f tanker loads", w.UnitEquivalent),
		)
	}
	return w
}
