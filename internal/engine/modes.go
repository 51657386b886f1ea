package engine

import (
	"math"
	"time"

	"aircon_manager/internal/models"
)

// Gate names reported in ModeDecision.Blocked and PowerDecision.Blocked.
const (
	GateUndercoolMargin = "undercool_margin"
	GateMinModeDuration = "min_mode_duration"
	GateMinRunCycles    = "min_run_cycles"
	GateHysteresis      = "mode_hysteresis"
	GateMinOffTime      = "min_off_time"
	GateMinOnTime       = "min_on_time"
)

// ModeInputs is everything DecideMode needs for one pass. AvgDeviation is
// the house average current minus target.
type ModeInputs struct {
	Now          time.Time
	Current      models.HVACMode
	ModeStart    time.Time
	RunCycles    int
	AvgDeviation float64
	Deadband     float64
	Direction    models.HVACMode // configured conditioning direction, cool or heat
	HumidityHigh bool

	Enhanced        bool
	UndercoolMargin float64
	MinModeDuration time.Duration
	MinRunCycles    int
	BypassEnhanced  bool

	HysteresisWindow time.Duration
	HysteresisDelta  float64
}

// ModeDecision is the outcome of a mode pass. Blocked names the gate that
// held the current mode when a switch was wanted but refused.
type ModeDecision struct {
	Mode    models.HVACMode
	Changed bool
	Blocked string
}

// DecideMode picks the unit mode for this cycle. Temperature need wins over
// humidity, humidity over plain circulation. Switching out of cool or heat
// into fan_only passes the enhanced compressor gate when enabled, and every
// switch except fan_only into a conditioning mode respects the hysteresis
// window unless the deviation has grown past the temperature override.
func DecideMode(in ModeInputs) ModeDecision {
	desired := desiredMode(in)
	if desired == in.Current {
		return ModeDecision{Mode: in.Current}
	}

	leavingCompressor := (in.Current == models.ModeCool || in.Current == models.ModeHeat) && desired == models.ModeFanOnly
	if leavingCompressor && in.Enhanced && !in.BypassEnhanced {
		if gate := enhancedExitGate(in); gate != "" {
			return ModeDecision{Mode: in.Current, Blocked: gate}
		}
	}

	immediate := in.Current == models.ModeFanOnly && (desired == models.ModeCool || desired == models.ModeHeat)
	if !immediate && !hysteresisAllows(in) {
		return ModeDecision{Mode: in.Current, Blocked: GateHysteresis}
	}

	return ModeDecision{Mode: desired, Changed: true}
}

// desiredMode maps the current readings to the mode the house wants,
// ignoring gates.
func desiredMode(in ModeInputs) models.HVACMode {
	needsConditioning := false
	switch in.Direction {
	case models.ModeHeat:
		needsConditioning = in.AvgDeviation < -in.Deadband
	default:
		needsConditioning = in.AvgDeviation > in.Deadband
	}
	if needsConditioning {
		return in.Direction
	}
	if in.HumidityHigh {
		return models.ModeDry
	}
	return models.ModeFanOnly
}

// enhancedExitGate returns the name of the first gate refusing a compressor
// stop, or empty when all gates pass. All three conditions must hold for the
// exit to go through.
func enhancedExitGate(in ModeInputs) string {
	crossed := false
	switch in.Current {
	case models.ModeHeat:
		crossed = in.AvgDeviation >= in.UndercoolMargin
	default:
		crossed = in.AvgDeviation <= -in.UndercoolMargin
	}
	if !crossed {
		return GateUndercoolMargin
	}
	if in.Now.Sub(in.ModeStart) < in.MinModeDuration {
		return GateMinModeDuration
	}
	if in.RunCycles < in.MinRunCycles {
		return GateMinRunCycles
	}
	return ""
}

// hysteresisAllows reports whether enough time has passed in the current
// mode, or the deviation has moved far enough past the deadband to justify
// switching anyway.
func hysteresisAllows(in ModeInputs) bool {
	if in.Now.Sub(in.ModeStart) >= in.HysteresisWindow {
		return true
	}
	abs := in.AvgDeviation
	if abs < 0 {
		abs = -abs
	}
	return abs > in.Deadband+in.HysteresisDelta
}

// PowerInputs is everything DecidePower needs for one pass.
type PowerInputs struct {
	Now     time.Time
	UnitOn  bool
	WantOn  bool
	WantOff bool

	ProtectionEnabled bool
	MinOnTime         time.Duration
	MinOffTime        time.Duration
	LastOn            *time.Time
	LastOff           *time.Time
}

// PowerDecision is the outcome of a power pass.
type PowerDecision struct {
	On      bool
	Changed bool
	Blocked string
}

// DecidePower applies the minimum on and off times to a requested power
// transition. A transition refused by a timer leaves the unit as it is and
// names the timer in Blocked.
func DecidePower(in PowerInputs) PowerDecision {
	switch {
	case !in.UnitOn && in.WantOn:
		if in.ProtectionEnabled && in.LastOff != nil && in.Now.Sub(*in.LastOff) < in.MinOffTime {
			return PowerDecision{On: false, Blocked: GateMinOffTime}
		}
		return PowerDecision{On: true, Changed: true}
	case in.UnitOn && in.WantOff:
		if in.ProtectionEnabled && in.LastOn != nil && in.Now.Sub(*in.LastOn) < in.MinOnTime {
			return PowerDecision{On: true, Blocked: GateMinOnTime}
		}
		return PowerDecision{On: false, Changed: true}
	}
	return PowerDecision{On: in.UnitOn}
}

// Unit fan spread rules beyond the plain average thresholds.
const (
	fanStableVariance = 1.0 // °C room spread treated as even
	fanStableAvgDev   = 0.5 // °C average deviation treated as settled
	fanSpreadHotRoom  = 3.0 // °C single-room deviation that forces high in a spread-out house
	fanSpreadVariance = 2.0 // °C spread that pairs with a runaway room for high
	fanEaseOffDev     = 0.5 // °C past target where the fan falls back to low
	fanCalmRoomDev    = 2.0 // °C worst-room deviation still considered calm
)

// UnitFanInputs describes the spread of room deviations for a fan pick.
// MaxDeviation is the most positive room deviation, MinDeviation the most
// negative, Variance the hottest minus the coldest room temperature.
type UnitFanInputs struct {
	Direction       models.HVACMode
	AvgDeviation    float64
	MaxDeviation    float64
	MinDeviation    float64
	Variance        float64
	HighThreshold   float64
	MediumThreshold float64
}

// UnitFan picks the main unit fan speed. An even, settled house runs low; a
// large average deviation, or one runaway room in a spread-out house, runs
// high; averages past the target ease back to low.
func UnitFan(in UnitFanInputs) models.UnitFanSpeed {
	avgAbs := math.Abs(in.AvgDeviation)
	if in.Variance <= fanStableVariance && avgAbs <= fanStableAvgDev {
		return models.FanLow
	}
	if in.Direction == models.ModeHeat {
		switch {
		case in.AvgDeviation <= -in.HighThreshold || (in.MinDeviation <= -fanSpreadHotRoom && in.Variance >= fanSpreadVariance):
			return models.FanHigh
		case in.AvgDeviation >= fanEaseOffDev || (in.AvgDeviation > -in.MediumThreshold && in.MinDeviation > -fanCalmRoomDev):
			return models.FanLow
		default:
			return models.FanMedium
		}
	}
	switch {
	case in.AvgDeviation >= in.HighThreshold || (in.MaxDeviation >= fanSpreadHotRoom && in.Variance >= fanSpreadVariance):
		return models.FanHigh
	case in.AvgDeviation <= -fanEaseOffDev || (in.AvgDeviation < in.MediumThreshold && in.MaxDeviation < fanCalmRoomDev):
		return models.FanLow
	default:
		return models.FanMedium
	}
}

// UnitSetpointFor picks the unit setpoint from the house average deviation.
// Cooling drives lower setpoints the further the house is above target,
// heating the mirror image.
func UnitSetpointFor(dir models.HVACMode, avgDeviation float64) float64 {
	if dir == models.ModeHeat {
		switch {
		case avgDeviation <= -2.0:
			return 25
		case avgDeviation <= -0.5:
			return 23
		default:
			return 21
		}
	}
	switch {
	case avgDeviation >= 2.0:
		return 19
	case avgDeviation >= 0.5:
		return 21
	default:
		return 23
	}
}
