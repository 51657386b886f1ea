package models

// HVACMode is the operating mode of the main unit.
type HVACMode string

const (
	ModeCool    HVACMode = "cool"
	ModeHeat    HVACMode = "heat"
	ModeDry     HVACMode = "dry"
	ModeFanOnly HVACMode = "fan_only"
	ModeOff     HVACMode = "off"
)

// Valid reports whether m is one of the known modes.
func (m HVACMode) Valid() bool {
	switch m {
	case ModeCool, ModeHeat, ModeDry, ModeFanOnly, ModeOff:
		return true
	}
	return false
}

// Conditioning reports whether the mode actively runs the compressor.
func (m HVACMode) Conditioning() bool {
	return m == ModeCool || m == ModeHeat || m == ModeDry
}

// UnitFanSpeed is the discrete fan speed of the main unit.
type UnitFanSpeed string

const (
	FanLow    UnitFanSpeed = "low"
	FanMedium UnitFanSpeed = "medium"
	FanHigh   UnitFanSpeed = "high"
)

// QuickAction is a temporary whole-house override mode.
type QuickAction string

const (
	ActionNone     QuickAction = "none"
	ActionVacation QuickAction = "vacation"
	ActionBoost    QuickAction = "boost"
	ActionSleep    QuickAction = "sleep"
	ActionParty    QuickAction = "party"
)

// Valid reports whether a names a startable quick action.
func (a QuickAction) Valid() bool {
	switch a {
	case ActionVacation, ActionBoost, ActionSleep, ActionParty:
		return true
	}
	return false
}
