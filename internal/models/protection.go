package models

import "time"

// ProtectionTimestampMaxAge is how old a persisted compressor timestamp may be
// before it is discarded on load and treated as absent.
const ProtectionTimestampMaxAge = 24 * time.Hour

// CompressorProtectionState tracks how long the unit has been in its current
// mode and when the compressor last switched, so minimum on/off and
// minimum-runtime gates survive restarts. Only the controller cycle mutates it.
type CompressorProtectionState struct {
	CurrentMode     HVACMode   `json:"current_mode"`
	ModeStartTime   time.Time  `json:"mode_start_time"`
	RunCyclesInMode int        `json:"run_cycles_in_mode"`
	ACLastTurnedOn  *time.Time `json:"ac_last_turned_on,omitempty"`
	ACLastTurnedOff *time.Time `json:"ac_last_turned_off,omitempty"`
}

// DiscardStale drops on/off timestamps older than ProtectionTimestampMaxAge.
// A stale timestamp must never keep blocking transitions after a long outage.
func (p *CompressorProtectionState) DiscardStale(now time.Time) {
	if p.ACLastTurnedOn != nil && now.Sub(*p.ACLastTurnedOn) > ProtectionTimestampMaxAge {
		p.ACLastTurnedOn = nil
	}
	if p.ACLastTurnedOff != nil && now.Sub(*p.ACLastTurnedOff) > ProtectionTimestampMaxAge {
		p.ACLastTurnedOff = nil
	}
}

// EnterMode records a mode change and resets the per-mode cycle counter.
func (p *CompressorProtectionState) EnterMode(mode HVACMode, now time.Time) {
	p.CurrentMode = mode
	p.ModeStartTime = now
	p.RunCyclesInMode = 0
}
