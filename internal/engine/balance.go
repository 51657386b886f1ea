package engine

import (
	"math"

	"aircon_manager/internal/models"
)

// Convergence-based bias gain and coupling damping constants.
const (
	convergenceBiasGain   = 50.0
	couplingDampThreshold = 0.5
	couplingDampFloor     = 0.5
)

// BalanceRoom is one room's view for a balancing pass.
type BalanceRoom struct {
	Temp      float64
	Deviation float64 // current - effective target
	Override  bool
}

// BalanceOptions configures a balancing pass.
type BalanceOptions struct {
	Direction      models.HVACMode // ModeCool or ModeHeat
	Aggressiveness float64
	PriorityDelta  float64 // rooms deviating more than this keep their full speed
	Deadband       float64
}

// Biases computes per-room additive fan speed biases that pull room
// temperatures toward each other. Balancing only runs while the house
// average sits inside the deadband; rooms with manual overrides or
// deviations beyond the priority delta are left alone. Learned biases and
// convergence rates shift the result further, and strong coupling between
// rooms damps the mutual push. Returns nil when balancing is inactive.
func Biases(rooms map[string]BalanceRoom, houseAvgDeviation float64, opts BalanceOptions, profiles map[string]*models.LearningProfile) map[string]float64 {
	if math.Abs(houseAvgDeviation) > opts.Deadband {
		return nil
	}

	eligible := make([]string, 0, len(rooms))
	var tempSum float64
	for name, r := range rooms {
		if r.Override || math.Abs(r.Deviation) > opts.PriorityDelta {
			continue
		}
		eligible = append(eligible, name)
		tempSum += r.Temp
	}
	if len(eligible) < 2 {
		return nil
	}
	mean := tempSum / float64(len(eligible))

	sign := 1.0
	if opts.Direction == models.ModeHeat {
		sign = -1.0
	}

	houseConv := averageConvergence(eligible, profiles)

	biases := make(map[string]float64, len(eligible))
	for _, name := range eligible {
		r := rooms[name]
		bias := sign * (r.Temp - mean) * opts.Aggressiveness * 100

		p := profiles[name]
		if p != nil {
			bias *= couplingDamp(name, eligible, p)
			bias += p.BalancingBias
			if p.ConvergenceRate > 0 && houseConv > 0 {
				rel := p.ConvergenceRate / houseConv
				bias += (rel - 1) * r.Deviation * opts.Aggressiveness * convergenceBiasGain
			}
		}
		biases[name] = bias
	}
	return biases
}

// ApplyBias adds a balancing bias to a speed and clamps the result to
// [minAirflow, 100] so no zone is ever starved of air.
func ApplyBias(speed, bias, minAirflow float64) float64 {
	out := speed + bias
	if out < minAirflow {
		out = minAirflow
	}
	if out > MaxSpeed {
		out = MaxSpeed
	}
	return out
}

// averageConvergence returns the mean learned convergence rate over rooms
// that have one, or zero when none do.
func averageConvergence(rooms []string, profiles map[string]*models.LearningProfile) float64 {
	var sum float64
	var n int
	for _, name := range rooms {
		if p := profiles[name]; p != nil && p.ConvergenceRate > 0 {
			sum += p.ConvergenceRate
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// couplingDamp scales a room's mean-pull term down when it is strongly
// coupled to another balanced room, since air moved in one shows up in the
// other anyway.
func couplingDamp(room string, eligible []string, p *models.LearningProfile) float64 {
	var maxFactor float64
	for _, other := range eligible {
		if other == room {
			continue
		}
		if f, ok := p.CoupledRooms[other]; ok && f > maxFactor {
			maxFactor = f
		}
	}
	if maxFactor <= couplingDampThreshold {
		return 1
	}
	damp := 1 - (maxFactor - couplingDampThreshold)
	if damp < couplingDampFloor {
		damp = couplingDampFloor
	}
	return damp
}
