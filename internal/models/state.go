package models

import "time"

// ControllerSnapshot is the persisted and served view of the whole controller.
type ControllerSnapshot struct {
	ID              int                       `json:"id"`
	UnitOn          bool                      `json:"unit_on"`
	Mode            HVACMode                  `json:"mode"`
	UnitFanSpeed    UnitFanSpeed              `json:"unit_fan_speed,omitempty"`
	UnitSetpoint    float64                   `json:"unit_setpoint,omitempty"`
	TargetTemp      float64                   `json:"target_temp"`
	Rooms           []RoomState               `json:"rooms,omitempty"`
	Protection      CompressorProtectionState `json:"protection"`
	QuickAction     QuickActionState          `json:"quick_action"`
	ErrorCount      int                       `json:"error_count"`
	ManualOverride  bool                      `json:"manual_override"`
	LearningEnabled bool                      `json:"learning_enabled"`
	LearningMode    string                    `json:"learning_mode,omitempty"` // passive | active
	LastCycleAt     time.Time                 `json:"last_cycle_at,omitempty"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}
