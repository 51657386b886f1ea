package models

import "time"

// HistoryCapacity bounds the per-room temperature history.
const HistoryCapacity = 10

// TempSample is one timestamped temperature reading.
type TempSample struct {
	At    time.Time `json:"at"`
	Value float64   `json:"value"`
}

// RoomState is the per-room working state of the controller.
// CurrentTemp, Humidity and Occupied are nil when the reading is unavailable.
type RoomState struct {
	Name              string       `json:"name"`
	CurrentTemp       *float64     `json:"current_temp,omitempty"`
	Humidity          *float64     `json:"humidity,omitempty"`
	Occupied          *bool        `json:"occupied,omitempty"`
	EffectiveTarget   float64      `json:"effective_target"`
	LastRawSpeed      float64      `json:"last_raw_speed"`
	LastSmoothedSpeed float64      `json:"last_smoothed_speed"`
	LastCommanded     int          `json:"last_commanded"` // percent actually sent to the zone
	Override          bool         `json:"override"`       // excluded from automation
	History           []TempSample `json:"history,omitempty"`
	LastReadingAt     time.Time    `json:"last_reading_at,omitempty"`
	LastSeenOccupied  time.Time    `json:"last_seen_occupied,omitempty"`
}

// Deviation returns current minus effective target, or false when there is no reading.
func (r *RoomState) Deviation() (float64, bool) {
	if r.CurrentTemp == nil {
		return 0, false
	}
	return *r.CurrentTemp - r.EffectiveTarget, true
}
