package models

import "time"

// Learned-parameter bounds and defaults.
const (
	BalancingBiasLimit = 5.0
	ConfidenceDataGoal = 200 // samples at which confidence reaches 1.0
	DefaultThermalMass = 0.5
	DefaultEfficiency  = 0.6
	ProfileSampleLimit = 1000 // per-room performance sample cap
)

// LearningProfile holds the learned thermal characteristics of one room.
// All fields persist across restarts.
type LearningProfile struct {
	Room                 string             `json:"room"`
	ThermalMass          float64            `json:"thermal_mass"`       // 0..1, higher = slower to respond
	CoolingEfficiency    float64            `json:"cooling_efficiency"` // 0..1
	ConvergenceRate      float64            `json:"convergence_rate"`   // seconds to close a typical deviation
	OvershootRate        float64            `json:"overshoot_rate"`     // events per day
	BalancingBias        float64            `json:"balancing_bias"`     // clamped to ±BalancingBiasLimit
	RelativeHeatGainRate float64            `json:"relative_heat_gain_rate"`
	RelativeCoolRate     float64            `json:"relative_cool_rate"`
	CoupledRooms         map[string]float64 `json:"coupled_rooms,omitempty"` // room -> coupling factor 0..1
	DataPointCount       int                `json:"data_point_count"`
	Confidence           float64            `json:"confidence"` // min(1, DataPointCount/ConfidenceDataGoal)
	UpdatedAt            time.Time          `json:"updated_at"`
}

// NewLearningProfile returns a profile with neutral defaults for a room.
func NewLearningProfile(room string) *LearningProfile {
	return &LearningProfile{
		Room:              room,
		ThermalMass:       DefaultThermalMass,
		CoolingEfficiency: DefaultEfficiency,
		RelativeCoolRate:  1.0,
		CoupledRooms:      map[string]float64{},
	}
}

// ClampBias keeps BalancingBias inside its allowed range.
func (p *LearningProfile) ClampBias() {
	if p.BalancingBias > BalancingBiasLimit {
		p.BalancingBias = BalancingBiasLimit
	}
	if p.BalancingBias < -BalancingBiasLimit {
		p.BalancingBias = -BalancingBiasLimit
	}
}

// RefreshConfidence recomputes Confidence from DataPointCount.
// Confidence only grows with more data.
func (p *LearningProfile) RefreshConfidence() {
	c := float64(p.DataPointCount) / float64(ConfidenceDataGoal)
	if c > 1 {
		c = 1
	}
	if c > p.Confidence {
		p.Confidence = c
	}
}
