package engine

import (
	"math"

	"github.com/shopspring/decimal"
)

// Volume model names
const (
	ModelProportional = "proportional"
	ModelGeometric    = "geometric"
)

// VolumeModel converts a level in meters into a volume
type VolumeModel interface {
	Volume(level float64) float64
	Name() string
}

// Proportional scales the level against the calibrated full height:
// volume = level / LevelMax * Capacity, rounded to 2 decimals.
type Proportional struct {
	LevelMax float64
	Capacity float64
}

func (p Proportional) Volume(level float64) float64 {
	return Round(level/p.LevelMax*p.Capacity, 2)
}

func (p Proportional) Name() string { return ModelProportional }

// Geometric models the tank as a vertical cylinder:
// volume = pi * Radius^2 * level, rounded to 4 decimals.
type Geometric struct {
	Radius float64
}

func (g Geometric) Volume(level float64) float64 {
	return Round(math.Pi*g.Radius*g.Radius*level, 4)
}

func (g Geometric) Name() string { return ModelGeometric }

// Round rounds half to even at the given number of decimals
func Round(v float64, places int32) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return decimal.NewFromFloat(v).RoundBank(places).InexactFloat64()
}
