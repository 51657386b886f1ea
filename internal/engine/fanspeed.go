// Package engine holds the pure computation parts of the optimization cycle:
// fan speed banding, temperature history regression, smoothing, room
// balancing, coupling detection, mode decisions and learning math. Nothing in
// this package performs I/O or owns locks; callers serialize access.
package engine

import (
	"aircon_manager/internal/models"
)

// Speeds for deviations inside the deadband and floors/caps of the scale.
const (
	BaselineSpeed = 50.0
	MaxSpeed      = 100.0
	MinSpeed      = 0.0
)

// band maps a lower |deviation| bound (inclusive) to a speed. Bands are
// checked from the largest bound down; the first match wins.
type band struct {
	lower float64
	speed float64
}

// conditioningBands apply when the room needs more conditioning
// (too hot while cooling, too cold while heating).
var conditioningBands = []band{
	{4.0, 100},
	{3.0, 90},
	{2.0, 75},
	{1.5, 65},
	{1.0, 55},
	{0.7, 45},
}

// conditioningFloor is the speed between the deadband and the first band.
const conditioningFloor = 40.0

// overshootBands apply when the room has overshot the target
// (too cold while cooling, too hot while heating).
var overshootBands = []band{
	{3.0, 5},
	{2.0, 12},
	{1.0, 22},
	{0.7, 30},
}

// overshootFloor is the speed between the deadband and the first overshoot band.
const overshootFloor = 35.0

// Thermal-mass thresholds for adaptive band scaling.
const (
	massWideAbove   = 0.7
	massTightBelow  = 0.4
	bandScaleSpread = 0.2 // boundaries move by up to ±20%
)

// Efficiency scaling around the neutral efficiency point.
const (
	efficiencyNeutral = 0.55
	efficiencySlope   = 0.4
	efficiencyMin     = 0.78
	efficiencyMax     = 1.22
)

// FanCalc computes raw zone fan speeds from temperature deviations.
type FanCalc struct {
	Deadband         float64
	AdaptiveBands    bool
	EfficiencyAdjust bool
}

// Speed returns the raw fan speed in [0,100] for a signed deviation
// d = current - effective target and the active conditioning direction.
// The profile may be nil; it only participates when the adaptive options
// are enabled.
func (c FanCalc) Speed(d float64, dir models.HVACMode, profile *models.LearningProfile) float64 {
	abs := d
	if abs < 0 {
		abs = -abs
	}
	if abs <= c.Deadband {
		return BaselineSpeed
	}

	scale := 1.0
	if c.AdaptiveBands && profile != nil {
		scale = bandScale(profile.ThermalMass)
	}

	needsMore := (dir == models.ModeCool && d > 0) || (dir == models.ModeHeat && d < 0)

	var speed float64
	if needsMore {
		speed = lookupBand(abs, conditioningBands, conditioningFloor, scale)
	} else {
		speed = lookupBand(abs, overshootBands, overshootFloor, scale)
	}

	if c.EfficiencyAdjust && profile != nil {
		speed *= efficiencyMultiplier(profile.CoolingEfficiency)
	}
	return clampSpeed(speed)
}

// lookupBand finds the speed for abs |deviation| with band boundaries
// multiplied by scale.
func lookupBand(abs float64, bands []band, floor float64, scale float64) float64 {
	for _, b := range bands {
		if abs >= b.lower*scale {
			return b.speed
		}
	}
	return floor
}

// bandScale maps learned thermal mass to a boundary multiplier: heavy rooms
// (slow to respond) get wider bands, light rooms tighter ones.
func bandScale(mass float64) float64 {
	switch {
	case mass > massWideAbove:
		return 1 + bandScaleSpread
	case mass < massTightBelow:
		return 1 - bandScaleSpread
	default:
		frac := (mass - massTightBelow) / (massWideAbove - massTightBelow)
		return 1 - bandScaleSpread + 2*bandScaleSpread*frac
	}
}

// efficiencyMultiplier reduces airflow for rooms that respond strongly to it
// and raises it for sluggish ones. The net multiplier stays within
// [efficiencyMin, efficiencyMax].
func efficiencyMultiplier(efficiency float64) float64 {
	m := 1 - (efficiency-efficiencyNeutral)*efficiencySlope
	if m < efficiencyMin {
		m = efficiencyMin
	}
	if m > efficiencyMax {
		m = efficiencyMax
	}
	return m
}

func clampSpeed(s float64) float64 {
	if s < MinSpeed {
		return MinSpeed
	}
	if s > MaxSpeed {
		return MaxSpeed
	}
	return s
}
