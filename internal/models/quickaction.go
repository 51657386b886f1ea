package models

import "time"

// QuickActionState is the process-wide quick-action overlay state.
// AppliedSpeeds records what the overlay itself commanded per room so that
// restoration can tell a manual change apart from the overlay's own value.
type QuickActionState struct {
	Active         QuickAction        `json:"active"`
	StartedAt      time.Time          `json:"started_at,omitempty"`
	ExpiresAt      *time.Time         `json:"expires_at,omitempty"` // nil for vacation and none
	PreviousSpeeds map[string]float64 `json:"previous_speeds,omitempty"`
	AppliedSpeeds  map[string]float64 `json:"applied_speeds,omitempty"`
}

// Expired reports whether the action has a deadline that has passed.
func (q *QuickActionState) Expired(now time.Time) bool {
	return q.Active != ActionNone && q.Active != "" && q.ExpiresAt != nil && now.After(*q.ExpiresAt)
}

// Clear resets the overlay to the inactive state.
func (q *QuickActionState) Clear() {
	q.Active = ActionNone
	q.StartedAt = time.Time{}
	q.ExpiresAt = nil
	q.PreviousSpeeds = nil
	q.AppliedSpeeds = nil
}
