package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"aircon_manager/internal/engine"
	"aircon_manager/internal/metrics"
	"aircon_manager/internal/models"
)

// runCycle executes one optimization pass end to end. The whole pass holds
// the mutex: sensor reads, decisions and actuator commands never interleave
// with manual switches or a second cycle.
func (c *ControllerService) runCycle(ctx context.Context, trigger string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureRestored(ctx)

	now := time.Now().UTC()
	if since := now.Sub(c.startedAt); since < c.cfg.Controller.StartupDelay {
		if trigger == triggerForced {
			return fmt.Errorf("%w: %s remaining", ErrStartingUp, (c.cfg.Controller.StartupDelay - since).Round(time.Second))
		}
		c.log.Debugf("cycle skipped, startup delay for another %s", (c.cfg.Controller.StartupDelay - since).Round(time.Second))
		return nil
	}

	c.readSensors(ctx, now)

	if c.state.manualOverride {
		c.state.lastCycleAt = now
		c.persist(ctx, now)
		metrics.CyclesTotal.WithLabelValues(trigger).Inc()
		return nil
	}

	// Overlay expiry runs before anything consumes overlay state, so an
	// expired vacation cannot widen this cycle's deadband.
	c.expireQuickAction(ctx, now)

	c.applyTargets(ctx, now)
	speeds := c.computeSpeeds()
	c.applyBalancing(speeds)
	c.overlayQuickAction(speeds)
	c.decideUnit(ctx, now)
	c.commandZones(ctx, now, speeds)

	if c.state.unitOn && c.state.protection.CurrentMode.Conditioning() {
		c.state.protection.RunCyclesInMode++
	}

	c.feedLearning(now)
	c.learning.MaybeAnalyze(ctx, now)

	c.state.lastCycleAt = now
	c.persist(ctx, now)
	c.publishTelemetry(ctx, now)
	metrics.CyclesTotal.WithLabelValues(trigger).Inc()
	return nil
}

// readSensors refreshes every room's readings. A failed or rejected
// temperature keeps the last known good value until the staleness ceiling
// passes, after which the room drops out of the averages. Humidity and
// occupancy are auxiliary: a single attempt each, absent on failure.
func (c *ControllerService) readSensors(ctx context.Context, now time.Time) {
	for _, name := range c.roomNames() {
		r := c.state.rooms[name]

		temp, err := c.readTemperature(ctx, name)
		switch {
		case err != nil:
			c.noteFault("sensor", "room %s temperature: %v", name, err)
			c.dropIfStale(r, now)
		case temp < c.cfg.Controller.SensorMin || temp > c.cfg.Controller.SensorMax:
			c.noteFault("sensor", "room %s temperature %.1f outside %.0f..%.0f, rejected", name, temp, c.cfg.Controller.SensorMin, c.cfg.Controller.SensorMax)
			c.dropIfStale(r, now)
		case math.Abs(temp) < glitchThreshold:
			c.noteFault("sensor", "room %s temperature %.3f looks like a glitch, rejected", name, temp)
			c.dropIfStale(r, now)
		default:
			t := temp
			r.CurrentTemp = &t
			r.LastReadingAt = now
			r.History = engine.AppendSample(r.History, models.TempSample{At: now, Value: t}, models.HistoryCapacity)
			metrics.RoomTemperature.WithLabelValues(name).Set(t)
		}

		if c.cfg.Humidity.Enabled {
			if h, err := c.readAux(ctx, func(callCtx context.Context) (float64, error) {
				return c.plant.RoomHumidity(callCtx, name)
			}); err != nil {
				c.log.Debugf("room %s humidity: %v", name, err)
				r.Humidity = nil
			} else {
				hv := h
				r.Humidity = &hv
			}
		}

		if c.cfg.Occupancy.Enabled {
			callCtx, cancel := context.WithTimeout(ctx, plantCallTimeout)
			occ, err := c.plant.RoomOccupancy(callCtx, name)
			cancel()
			if err != nil {
				// Unknown occupancy reads as vacant.
				c.log.Debugf("room %s occupancy: %v", name, err)
				r.Occupied = nil
			} else {
				ov := occ
				r.Occupied = &ov
				if occ {
					r.LastSeenOccupied = now
				}
			}
		}
	}
}

func (c *ControllerService) readTemperature(ctx context.Context, room string) (float64, error) {
	var v float64
	err := c.withRetry(ctx, func(callCtx context.Context) error {
		var err error
		v, err = c.plant.RoomTemperature(callCtx, room)
		return err
	})
	return v, err
}

func (c *ControllerService) readAux(ctx context.Context, read func(context.Context) (float64, error)) (float64, error) {
	callCtx, cancel := context.WithTimeout(ctx, plantCallTimeout)
	defer cancel()
	return read(callCtx)
}

// dropIfStale clears a room's temperature once its last good reading is
// older than the staleness ceiling.
func (c *ControllerService) dropIfStale(r *models.RoomState, now time.Time) {
	if engine.StaleAfter(r.LastReadingAt, now, c.cfg.Controller.StalenessCeiling) {
		r.CurrentTemp = nil
	}
}

// applyTargets computes every room's effective target: global base or the
// first matching schedule, weather adjustment, the sleep shift, per-room
// offset and the occupancy setback.
func (c *ControllerService) applyTargets(ctx context.Context, now time.Time) {
	base := c.cfg.Controller.TargetTemp
	for _, s := range c.cfg.Schedules {
		if s.ScheduleActive(now.Local()) {
			base = s.Target
			break
		}
	}

	if c.cfg.Weather.Enabled {
		if outdoor, err := c.readAux(ctx, c.plant.OutdoorTemperature); err != nil {
			c.log.Debugf("outdoor temperature: %v", err)
		} else {
			base += weatherAdjust(outdoor, c.cfg.Weather.InfluenceFactor)
		}
	}

	heating := c.cfg.Controller.Mode == models.ModeHeat
	if c.state.quick.Active == models.ActionSleep {
		if heating {
			base -= c.cfg.Actions.SleepShift
		} else {
			base += c.cfg.Actions.SleepShift
		}
	}

	for name, r := range c.state.rooms {
		target := base + c.offsets[name]
		if c.cfg.Occupancy.Enabled && c.roomVacant(r, now) {
			if heating {
				target -= c.cfg.Occupancy.Setback
			} else {
				target += c.cfg.Occupancy.Setback
			}
		}
		r.EffectiveTarget = target
	}
}

// weatherAdjust nudges the base target against outdoor extremes. Hot days
// pre-cool slightly, cold days relax the target upward.
func weatherAdjust(outdoor, factor float64) float64 {
	switch {
	case outdoor > 30:
		return -0.5 * factor
	case outdoor > 25:
		return -0.25 * factor
	case outdoor < 15:
		return 0.5 * factor
	case outdoor < 20:
		return 0.25 * factor
	}
	return 0
}

// roomVacant reports whether the setback applies: not seen occupied for
// longer than the vacancy timeout. Unknown occupancy counts as vacant.
func (c *ControllerService) roomVacant(r *models.RoomState, now time.Time) bool {
	if r.Occupied != nil && *r.Occupied {
		return false
	}
	if r.LastSeenOccupied.IsZero() {
		return true
	}
	return now.Sub(r.LastSeenOccupied) > c.cfg.Occupancy.VacancyTimeout
}

// effectiveDeadband widens the configured deadband while vacation is active.
func (c *ControllerService) effectiveDeadband() float64 {
	if c.state.quick.Active == models.ActionVacation && c.cfg.Controller.Deadband < vacationDeadband {
		return vacationDeadband
	}
	return c.cfg.Controller.Deadband
}

// computeSpeeds produces the per-room fan speeds: banded raw speed, the
// predictive blend, then smoothing. Overridden rooms and rooms without a
// usable reading are skipped.
func (c *ControllerService) computeSpeeds() map[string]float64 {
	calc := engine.FanCalc{
		Deadband:         c.effectiveDeadband(),
		AdaptiveBands:    c.cfg.Predictive.AdaptiveBands,
		EfficiencyAdjust: c.cfg.Predictive.EfficiencyAdjust,
	}
	dir := c.cfg.Controller.Mode
	speeds := make(map[string]float64, len(c.state.rooms))
	for name, r := range c.state.rooms {
		if r.Override {
			continue
		}
		d, ok := r.Deviation()
		if !ok {
			continue
		}
		profile := c.learning.ProfileFor(name)
		speed := calc.Speed(d, dir, profile)
		r.LastRawSpeed = speed

		if c.cfg.Predictive.Enabled {
			if rate, ok := engine.RateOfChange(r.History); ok {
				projected := engine.Project(*r.CurrentTemp, rate, c.cfg.Predictive.LookaheadMinutes)
				future := calc.Speed(projected-r.EffectiveTarget, dir, profile)
				speed = engine.BlendPredictive(speed, future, c.predictiveWeight(profile))
			}
		}
		if c.cfg.Smoothing.Enabled {
			speed = c.smoother.Smooth(name, speed)
		}
		r.LastSmoothedSpeed = speed
		speeds[name] = speed
	}
	return speeds
}

// predictiveWeight scales the configured blend weight by how slowly the room
// converges. Rooms that settle fast need less anticipation.
func (c *ControllerService) predictiveWeight(p *models.LearningProfile) float64 {
	w := c.cfg.Predictive.BoostFactor
	if p == nil || p.ConvergenceRate <= 0 {
		return w
	}
	scale := p.ConvergenceRate / convergenceReference
	if scale < 0.5 {
		scale = 0.5
	} else if scale > 1.5 {
		scale = 1.5
	}
	return w * scale
}

// applyBalancing shifts speeds toward the house average when enabled and at
// least two rooms are participating.
func (c *ControllerService) applyBalancing(speeds map[string]float64) {
	if !c.cfg.Balancing.Enabled {
		return
	}
	rooms := make(map[string]engine.BalanceRoom, len(c.state.rooms))
	var sum float64
	var n int
	for name, r := range c.state.rooms {
		d, ok := r.Deviation()
		if !ok {
			continue
		}
		rooms[name] = engine.BalanceRoom{Temp: *r.CurrentTemp, Deviation: d, Override: r.Override}
		if !r.Override {
			sum += d
			n++
		}
	}
	if n < 2 {
		return
	}
	biases := engine.Biases(rooms, sum/float64(n), engine.BalanceOptions{
		Direction:      c.cfg.Controller.Mode,
		Aggressiveness: c.cfg.Balancing.Aggressiveness,
		PriorityDelta:  c.cfg.Balancing.PriorityDelta,
		Deadband:       c.effectiveDeadband(),
	}, c.learning.ProfilesView())
	for name, bias := range biases {
		if s, ok := speeds[name]; ok {
			speeds[name] = engine.ApplyBias(s, bias, c.cfg.Balancing.MinAirflow)
		}
	}
}

// decideUnit drives the main unit: operating mode, compressor power, fan
// speed and setpoint, each behind its own gates.
func (c *ControllerService) decideUnit(ctx context.Context, now time.Time) {
	avg, maxDev, minDev, spread, n := c.deviationStats()
	if n == 0 {
		return
	}
	dir := c.cfg.Controller.Mode

	dec := engine.DecideMode(engine.ModeInputs{
		Now:              now,
		Current:          c.state.protection.CurrentMode,
		ModeStart:        c.state.protection.ModeStartTime,
		RunCycles:        c.state.protection.RunCyclesInMode,
		AvgDeviation:     avg,
		Deadband:         c.effectiveDeadband(),
		Direction:        dir,
		HumidityHigh:     c.humidityHigh(),
		Enhanced:         c.cfg.EnhancedProtection.Enabled,
		UndercoolMargin:  c.cfg.EnhancedProtection.UndercoolMargin,
		MinModeDuration:  c.cfg.EnhancedProtection.MinModeDuration,
		MinRunCycles:     c.cfg.EnhancedProtection.MinRunCycles,
		BypassEnhanced:   c.state.quick.Active == models.ActionBoost,
		HysteresisWindow: c.cfg.Hysteresis.Time,
		HysteresisDelta:  c.cfg.Hysteresis.Temp,
	})
	switch {
	case dec.Changed:
		if err := c.plant.SetUnitMode(ctx, dec.Mode); err != nil {
			c.noteFault("actuator", "set unit mode %s: %v", dec.Mode, err)
		} else {
			prev := c.state.protection.CurrentMode
			c.state.protection.EnterMode(dec.Mode, now)
			metrics.ModeChangesTotal.WithLabelValues(string(dec.Mode)).Inc()
			c.appendEvent(ctx, now, models.EventModeChange,
				fmt.Sprintf("mode %s to %s", prev, dec.Mode),
				map[string]any{"from": prev, "to": dec.Mode, "avg_deviation": round1(avg)})
		}
	case dec.Blocked != "":
		c.log.Debugf("mode change held by %s", dec.Blocked)
	}

	if c.cfg.Unit.AutoPower {
		c.decidePower(ctx, now, avg, maxDev, minDev)
	}

	if c.cfg.Unit.AutoFan {
		fan := engine.UnitFan(engine.UnitFanInputs{
			Direction:       dir,
			AvgDeviation:    avg,
			MaxDeviation:    maxDev,
			MinDeviation:    minDev,
			Variance:        spread,
			HighThreshold:   c.cfg.Unit.FanHighThreshold,
			MediumThreshold: c.cfg.Unit.FanMediumThreshold,
		})
		if fan != c.state.unitFan {
			if err := c.plant.SetUnitFanSpeed(ctx, fan); err != nil {
				c.noteFault("actuator", "set unit fan %s: %v", fan, err)
			} else {
				c.state.unitFan = fan
			}
		}
	}

	if c.cfg.Unit.AutoSetpoint {
		want := engine.UnitSetpointFor(dir, avg)
		if math.Abs(want-c.state.unitSetpoint) >= setpointSkipDelta {
			if err := c.plant.SetUnitSetpoint(ctx, want); err != nil {
				c.noteFault("actuator", "set unit setpoint %.1f: %v", want, err)
			} else {
				c.state.unitSetpoint = want
			}
		}
	}
}

// decidePower requests compressor power transitions. Turning on needs the
// average past the on threshold; turning off additionally needs every room
// at or past its target, so one warm room keeps the unit running.
func (c *ControllerService) decidePower(ctx context.Context, now time.Time, avg, maxDev, minDev float64) {
	var wantOn, wantOff bool
	if c.cfg.Controller.Mode == models.ModeHeat {
		wantOn = !c.state.unitOn && avg <= -c.cfg.Unit.OnThreshold
		wantOff = c.state.unitOn && avg >= c.cfg.Unit.OffThreshold && minDev >= 0
	} else {
		wantOn = !c.state.unitOn && avg >= c.cfg.Unit.OnThreshold
		wantOff = c.state.unitOn && avg <= -c.cfg.Unit.OffThreshold && maxDev <= 0
	}

	dec := engine.DecidePower(engine.PowerInputs{
		Now:               now,
		UnitOn:            c.state.unitOn,
		WantOn:            wantOn,
		WantOff:           wantOff,
		ProtectionEnabled: c.cfg.Protection.Enabled,
		MinOnTime:         c.cfg.Protection.MinOnTime,
		MinOffTime:        c.cfg.Protection.MinOffTime,
		LastOn:            c.state.protection.ACLastTurnedOn,
		LastOff:           c.state.protection.ACLastTurnedOff,
	})
	if !dec.Changed {
		if dec.Blocked != "" {
			c.log.Debugf("power change held by %s", dec.Blocked)
		}
		return
	}
	if err := c.plant.SetUnitPower(ctx, dec.On); err != nil {
		c.noteFault("actuator", "set unit power %v: %v", dec.On, err)
		return
	}
	c.setUnitOn(dec.On, now)
	desc := "unit powered off"
	if dec.On {
		desc = "unit powered on"
	}
	c.appendEvent(ctx, now, models.EventModeChange, desc, map[string]any{"avg_deviation": round1(avg)})
}

// commandZones sends changed airflows to the plant. One failing zone is
// counted and skipped; the rest still get their commands.
func (c *ControllerService) commandZones(ctx context.Context, now time.Time, speeds map[string]float64) {
	for _, name := range c.roomNames() {
		speed, ok := speeds[name]
		if !ok {
			continue
		}
		r := c.state.rooms[name]
		cmd := int(math.Round(speed))
		if cmd == r.LastCommanded {
			continue
		}
		err := c.withRetry(ctx, func(callCtx context.Context) error {
			return c.plant.SetZoneAirflow(callCtx, name, float64(cmd))
		})
		if err != nil {
			c.noteFault("actuator", "zone %s airflow %d%%: %v", name, cmd, err)
			continue
		}
		prev := r.LastCommanded
		r.LastCommanded = cmd
		metrics.RoomFanSpeed.WithLabelValues(name).Set(float64(cmd))
		if abs := cmd - prev; abs >= speedEventMinDelta || abs <= -speedEventMinDelta {
			c.appendEvent(ctx, now, models.EventSpeedChange,
				fmt.Sprintf("room %s airflow %d%% to %d%%", name, prev, cmd), nil)
		}
	}
}

// feedLearning records this cycle's samples and overshoot transitions.
func (c *ControllerService) feedLearning(now time.Time) {
	if !c.learning.CollectionEnabled() {
		return
	}
	heating := c.cfg.Controller.Mode == models.ModeHeat
	for name, r := range c.state.rooms {
		if r.Override {
			continue
		}
		d, ok := r.Deviation()
		if !ok {
			continue
		}
		c.learning.Observe(name, engine.PerformanceSample{
			At:       now,
			Temp:     *r.CurrentTemp,
			Target:   r.EffectiveTarget,
			FanSpeed: float64(r.LastCommanded),
		})
		over := d < -overshootMargin
		if heating {
			over = d > overshootMargin
		}
		if over && !c.overshot[name] {
			c.learning.ObserveOvershoot(name, now)
		}
		c.overshot[name] = over
	}
}

// deviationStats aggregates deviations across rooms that participate in
// automation. spread is the gap between the warmest and coldest reading.
func (c *ControllerService) deviationStats() (avg, maxDev, minDev, spread float64, n int) {
	var sum, maxTemp, minTemp float64
	for _, r := range c.state.rooms {
		if r.Override {
			continue
		}
		d, ok := r.Deviation()
		if !ok {
			continue
		}
		t := *r.CurrentTemp
		if n == 0 {
			maxDev, minDev = d, d
			maxTemp, minTemp = t, t
		} else {
			if d > maxDev {
				maxDev = d
			}
			if d < minDev {
				minDev = d
			}
			if t > maxTemp {
				maxTemp = t
			}
			if t < minTemp {
				minTemp = t
			}
		}
		sum += d
		n++
	}
	if n == 0 {
		return 0, 0, 0, 0, 0
	}
	return sum / float64(n), maxDev, minDev, maxTemp - minTemp, n
}

// humidityHigh reports whether the average room humidity sits above the dry
// threshold. Only rooms with a humidity reading participate.
func (c *ControllerService) humidityHigh() bool {
	if !c.cfg.Humidity.Enabled {
		return false
	}
	var sum float64
	var n int
	for _, r := range c.state.rooms {
		if r.Humidity != nil {
			sum += *r.Humidity
			n++
		}
	}
	return n > 0 && sum/float64(n) > c.cfg.Humidity.DryThreshold
}

func (c *ControllerService) publishTelemetry(ctx context.Context, now time.Time) {
	if c.telemetry == nil {
		return
	}
	if err := c.telemetry.Publish(ctx, c.snapshotLocked(now)); err != nil {
		c.log.Warnf("publish cycle telemetry: %v", err)
	}
}
