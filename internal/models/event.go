package models

import "time"

// Event types recorded in the control log.
const (
	EventModeChange  = "MODE_CHANGE"
	EventSpeedChange = "SPEED_CHANGE"
	EventActionStart = "ACTION_START"
	EventActionEnd   = "ACTION_END"
	EventError       = "ERROR"
	EventLearning    = "LEARNING"
	EventCritical    = "CRITICAL"
)

// ControlEvent is a single log entry.
type ControlEvent struct {
	EventID     string    `json:"event_id"`
	OccurredAt  time.Time `json:"occurred_at"`
	Type        string    `json:"type"`
	Description string    `json:"description"`
	Metadata    any       `json:"metadata,omitempty"`
}
