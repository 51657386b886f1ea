package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"aircon_manager/internal/engine"
	"aircon_manager/internal/metrics"
	"aircon_manager/internal/models"
)

// Overlay parameters. Caps and floors are percent fan speed.
const (
	vacationCap      = 30.0
	vacationDeadband = 2.0
	boostMultiplier  = 1.5
	sleepCap         = 40.0
	partyFloorMin    = 60.0
)

// Duration bounds per action, minutes.
const (
	boostMinDuration = 10
	boostMaxDuration = 120
	sleepMinDuration = 60
	sleepMaxDuration = 720
	partyMinDuration = 30
	partyMaxDuration = 360
)

// ActionParams carries the optional duration override for a quick action.
// Zero means the configured default.
type ActionParams struct {
	DurationMinutes int
}

// StartAction activates a quick-action overlay. Only one can be active;
// starting a second returns ErrActionActive. Vacation never expires, the
// rest get a deadline from the requested or configured duration.
func (c *ControllerService) StartAction(ctx context.Context, action models.QuickAction, p ActionParams) error {
	if !action.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureRestored(ctx)
	if active := c.state.quick.Active; active != models.ActionNone && active != "" {
		return fmt.Errorf("%w: %s", ErrActionActive, active)
	}

	now := time.Now().UTC()
	var expires *time.Time
	switch action {
	case models.ActionVacation:
		// Runs until stopped.
	case models.ActionBoost:
		minutes, err := actionDuration(p.DurationMinutes, c.cfg.Actions.BoostMinutes, boostMinDuration, boostMaxDuration)
		if err != nil {
			return err
		}
		t := now.Add(time.Duration(minutes) * time.Minute)
		expires = &t
	case models.ActionSleep:
		minutes, err := actionDuration(p.DurationMinutes, c.cfg.Actions.SleepMinutes, sleepMinDuration, sleepMaxDuration)
		if err != nil {
			return err
		}
		t := now.Add(time.Duration(minutes) * time.Minute)
		expires = &t
	case models.ActionParty:
		minutes, err := actionDuration(p.DurationMinutes, c.cfg.Actions.PartyMinutes, partyMinDuration, partyMaxDuration)
		if err != nil {
			return err
		}
		t := now.Add(time.Duration(minutes) * time.Minute)
		expires = &t
	}

	prev := make(map[string]float64, len(c.state.rooms))
	for name, r := range c.state.rooms {
		prev[name] = float64(r.LastCommanded)
	}
	c.state.quick = models.QuickActionState{
		Active:         action,
		StartedAt:      now,
		ExpiresAt:      expires,
		PreviousSpeeds: prev,
		AppliedSpeeds:  make(map[string]float64),
	}
	metrics.QuickActionActive.WithLabelValues(string(action)).Set(1)

	meta := map[string]any{}
	if expires != nil {
		meta["expires_at"] = expires.Format(time.RFC3339)
	}
	c.appendEvent(ctx, now, models.EventActionStart, fmt.Sprintf("quick action %s started", action), meta)
	c.persist(ctx, now)
	c.log.Infof("quick action %s started", action)
	return nil
}

// StopAction ends the active overlay and restores remembered speeds.
func (c *ControllerService) StopAction(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureRestored(ctx)
	if active := c.state.quick.Active; active == models.ActionNone || active == "" {
		return ErrNoActionActive
	}
	c.finishAction(ctx, time.Now().UTC(), "stopped")
	return nil
}

// expireQuickAction ends an overlay whose deadline passed. It runs under the
// cycle mutex, so a forced cycle racing the schedule still expires the
// action exactly once.
func (c *ControllerService) expireQuickAction(ctx context.Context, now time.Time) {
	if c.state.quick.Expired(now) {
		c.finishAction(ctx, now, "expired")
	}
}

// finishAction clears the overlay and puts remembered speeds back on rooms
// the overlay still controls. A room whose airflow was changed by hand since
// the overlay applied keeps its current value.
func (c *ControllerService) finishAction(ctx context.Context, now time.Time, why string) {
	ended := c.state.quick
	c.state.quick.Clear()
	metrics.QuickActionActive.WithLabelValues(string(ended.Active)).Set(0)

	restored := 0
	for name, prevSpeed := range ended.PreviousSpeeds {
		r, ok := c.state.rooms[name]
		if !ok || r.Override {
			continue
		}
		applied, managed := ended.AppliedSpeeds[name]
		if !managed || float64(r.LastCommanded) != applied {
			continue
		}
		cmd := int(math.Round(prevSpeed))
		err := c.withRetry(ctx, func(callCtx context.Context) error {
			return c.plant.SetZoneAirflow(callCtx, name, float64(cmd))
		})
		if err != nil {
			c.noteFault("actuator", "restore %s airflow %d%%: %v", name, cmd, err)
			continue
		}
		r.LastCommanded = cmd
		metrics.RoomFanSpeed.WithLabelValues(name).Set(float64(cmd))
		restored++
	}

	c.appendEvent(ctx, now, models.EventActionEnd,
		fmt.Sprintf("quick action %s %s", ended.Active, why),
		map[string]any{"rooms_restored": restored})
	c.persist(ctx, now)
	c.log.Infof("quick action %s %s, %d rooms restored", ended.Active, why, restored)
}

// overlayQuickAction reshapes this cycle's speeds according to the active
// overlay and records what it imposed for later restoration.
func (c *ControllerService) overlayQuickAction(speeds map[string]float64) {
	q := &c.state.quick
	switch q.Active {
	case models.ActionVacation:
		for name, s := range speeds {
			if s > vacationCap {
				speeds[name] = vacationCap
			}
		}
	case models.ActionBoost:
		for name, s := range speeds {
			b := s * boostMultiplier
			if b > engine.MaxSpeed {
				b = engine.MaxSpeed
			}
			speeds[name] = b
		}
	case models.ActionSleep:
		for name, s := range speeds {
			if s > sleepCap {
				speeds[name] = sleepCap
			}
		}
	case models.ActionParty:
		floor := medianSpeed(speeds)
		if floor < partyFloorMin {
			floor = partyFloorMin
		}
		for name, s := range speeds {
			if s < floor {
				speeds[name] = floor
			}
		}
	default:
		return
	}

	if q.AppliedSpeeds == nil {
		q.AppliedSpeeds = make(map[string]float64)
	}
	for name, s := range speeds {
		// Stored rounded, matching what commandZones will send.
		q.AppliedSpeeds[name] = math.Round(s)
	}
}

// actionDuration picks the requested duration or the configured default and
// enforces the per-action bounds.
func actionDuration(requested, fallback, lo, hi int) (int, error) {
	minutes := requested
	if minutes == 0 {
		minutes = fallback
	}
	if minutes < lo || minutes > hi {
		return 0, fmt.Errorf("%w: %d minutes, allowed %d..%d", ErrInvalidDuration, minutes, lo, hi)
	}
	return minutes, nil
}

func medianSpeed(speeds map[string]float64) float64 {
	if len(speeds) == 0 {
		return 0
	}
	vals := make([]float64, 0, len(speeds))
	for _, v := range speeds {
		vals = append(vals, v)
	}
	sort.Float64s(vals)
	n := len(vals)
	if n%2 == 1 {
		return vals[n/2]
	}
	return (vals[n/2-1] + vals[n/2]) / 2
}
