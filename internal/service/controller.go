package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"aircon_manager/internal/config"
	"aircon_manager/internal/engine"
	"aircon_manager/internal/logger"
	"aircon_manager/internal/metrics"
	"aircon_manager/internal/models"
	"aircon_manager/internal/plant"
	"aircon_manager/internal/repository"
)

// Cycle trigger labels for metrics.
const (
	triggerScheduled = "scheduled"
	triggerForced    = "forced"
)

const (
	// Sensor and actuator calls are retried with exponential backoff, each
	// attempt bounded by its own timeout.
	retryAttempts     = 3
	retryInitialDelay = time.Second
	plantCallTimeout  = 5 * time.Second

	// Readings this close to zero are treated as sensor glitches.
	glitchThreshold = 0.01

	// Setpoint commands within this of the cached value are skipped.
	setpointSkipDelta = 0.5

	// Airflow changes below this many points are commanded but not logged
	// as events, or the smoother would flood the log.
	speedEventMinDelta = 5

	// A room has overshot once it passes its target by this much in the
	// conditioning direction.
	overshootMargin = 0.3

	// Convergence rate treated as typical when scaling the predictive blend.
	convergenceReference = 600.0
)

// controllerState is everything the cycle mutates. Guarded by the service
// mutex so scheduled cycles, forced cycles and manual switches serialize.
type controllerState struct {
	rooms          map[string]*models.RoomState
	protection     models.CompressorProtectionState
	quick          models.QuickActionState
	unitOn         bool
	unitFan        models.UnitFanSpeed
	unitSetpoint   float64
	errorCount     int
	manualOverride bool
	lastCycleAt    time.Time
}

// ControllerService owns the optimization loop. It is also the Actions
// implementation so quick-action changes run under the same mutex as cycles.
type ControllerService struct {
	cfg       *config.Config
	log       *logger.Logger
	plant     plant.Plant
	stateRepo repository.StateRepo
	eventRepo repository.EventRepo
	learning  *LearningService
	telemetry CyclePublisher

	smoother *engine.Smoother
	offsets  map[string]float64

	mu        sync.Mutex
	state     controllerState
	overshot  map[string]bool // rooms currently past their overshoot margin
	restored  bool
	startedAt time.Time
}

func NewControllerService(cfg *config.Config, pl plant.Plant, stateRepo repository.StateRepo, eventRepo repository.EventRepo, learning *LearningService, tele CyclePublisher, log *logger.Logger) *ControllerService {
	rooms := make(map[string]*models.RoomState, len(cfg.Rooms))
	offsets := make(map[string]float64, len(cfg.Rooms))
	for _, rc := range cfg.Rooms {
		rooms[rc.Name] = &models.RoomState{
			Name:            rc.Name,
			EffectiveTarget: cfg.Controller.TargetTemp + rc.TargetOffset,
		}
		offsets[rc.Name] = rc.TargetOffset
	}
	return &ControllerService{
		cfg:       cfg,
		log:       log,
		plant:     pl,
		stateRepo: stateRepo,
		eventRepo: eventRepo,
		learning:  learning,
		telemetry: tele,
		smoother:  engine.NewSmoother(cfg.Smoothing.Factor, cfg.Smoothing.Threshold),
		offsets:   offsets,
		state: controllerState{
			rooms:      rooms,
			protection: models.CompressorProtectionState{CurrentMode: models.ModeFanOnly},
			quick:      models.QuickActionState{Active: models.ActionNone},
			unitFan:    models.FanLow,
		},
		overshot:  make(map[string]bool, len(cfg.Rooms)),
		startedAt: time.Now().UTC(),
	}
}

// Run executes one optimization cycle per update interval until the context
// is cancelled.
func (c *ControllerService) Run(ctx context.Context) {
	c.log.Infof("controller loop started, interval %s", c.cfg.Controller.UpdateInterval)
	ticker := time.NewTicker(c.cfg.Controller.UpdateInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.log.Infof("controller loop stopped")
			return
		case <-ticker.C:
			if err := c.runCycle(ctx, triggerScheduled); err != nil && !errors.Is(err, ErrStartingUp) {
				c.log.Errorf("optimization cycle: %v", err)
			}
		}
	}
}

// ForceOptimize runs one cycle immediately. During the startup delay it
// returns ErrStartingUp instead of acting on possibly unsettled sensors.
func (c *ControllerService) ForceOptimize(ctx context.Context) error {
	return c.runCycle(ctx, triggerForced)
}

// SetManualOverride pauses or resumes automation for the whole house.
// Sensor reads and persistence continue while paused; nothing is commanded.
func (c *ControllerService) SetManualOverride(ctx context.Context, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureRestored(ctx)
	if c.state.manualOverride == enabled {
		return nil
	}
	c.state.manualOverride = enabled
	now := time.Now().UTC()
	desc := "manual override disabled, automation resumed"
	if enabled {
		desc = "manual override enabled, automation paused"
	}
	c.appendEvent(ctx, now, models.EventModeChange, desc, nil)
	c.persist(ctx, now)
	return nil
}

// SetRoomOverride excludes one room from automation, or brings it back.
func (c *ControllerService) SetRoomOverride(ctx context.Context, room string, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureRestored(ctx)
	r, ok := c.state.rooms[room]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, room)
	}
	if r.Override == enabled {
		return nil
	}
	r.Override = enabled
	if !enabled {
		// Rejoining automation restarts smoothing from the next raw value.
		c.smoother.Forget(room)
	}
	now := time.Now().UTC()
	state := "released"
	if enabled {
		state = "set"
	}
	c.appendEvent(ctx, now, models.EventModeChange, fmt.Sprintf("room %s override %s", room, state), nil)
	c.persist(ctx, now)
	return nil
}

// ResetSmoothing drops all smoothing memory so the next cycle's speeds take
// effect unblended.
func (c *ControllerService) ResetSmoothing(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.smoother.Reset()
	c.log.Infof("smoothing state reset")
	return nil
}

// ResetErrors zeroes the cumulative cycle error counter.
func (c *ControllerService) ResetErrors(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureRestored(ctx)
	c.state.errorCount = 0
	c.persist(ctx, time.Now().UTC())
	return nil
}

// EmergencyCool forces the unit on in cool mode and opens the room's zone
// fully, skipping compressor timers and the enhanced gate. The critical
// monitor's cooldown is the only rate limit. Returns whether anything was
// actually commanded.
func (c *ControllerService) EmergencyCool(ctx context.Context, room string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ensureRestored(ctx)
	r, ok := c.state.rooms[room]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrRoomNotFound, room)
	}

	now := time.Now().UTC()
	acted := false
	if !c.state.unitOn {
		if err := c.plant.SetUnitPower(ctx, true); err != nil {
			return false, fmt.Errorf("emergency power on: %w", err)
		}
		c.setUnitOn(true, now)
		acted = true
	}
	if c.state.protection.CurrentMode != models.ModeCool {
		if err := c.plant.SetUnitMode(ctx, models.ModeCool); err != nil {
			return acted, fmt.Errorf("emergency mode switch: %w", err)
		}
		c.state.protection.EnterMode(models.ModeCool, now)
		metrics.ModeChangesTotal.WithLabelValues(string(models.ModeCool)).Inc()
		acted = true
	}
	if r.LastCommanded < int(engine.MaxSpeed) {
		if err := c.plant.SetZoneAirflow(ctx, room, engine.MaxSpeed); err != nil {
			return acted, fmt.Errorf("emergency airflow: %w", err)
		}
		r.LastCommanded = int(engine.MaxSpeed)
		metrics.RoomFanSpeed.WithLabelValues(room).Set(engine.MaxSpeed)
		acted = true
	}
	if acted {
		c.persist(ctx, now)
	}
	return acted, nil
}

// ensureRestored loads the persisted snapshot once, before the first
// operation that needs state. Corrupt or missing state falls back to safe
// defaults: unit assumed off-mode history, no overlay, no protection timers.
func (c *ControllerService) ensureRestored(ctx context.Context) {
	if c.restored {
		return
	}
	c.restored = true
	c.learning.load(ctx)

	snap, err := c.stateRepo.Load(ctx)
	if err != nil {
		c.log.Errorf("restore controller state: %v", err)
		if errors.Is(err, repository.ErrCorruptState) {
			c.appendEvent(ctx, time.Now().UTC(), models.EventError, "persisted state corrupt, starting from defaults", nil)
		}
		return
	}
	if snap.ID == 0 {
		c.log.Infof("no persisted state, starting fresh")
		return
	}

	now := time.Now().UTC()
	snap.Protection.DiscardStale(now)
	if snap.Protection.CurrentMode.Valid() && snap.Protection.CurrentMode != models.ModeOff {
		c.state.protection = snap.Protection
	}
	c.state.quick = snap.QuickAction
	if c.state.quick.Active == "" {
		c.state.quick.Active = models.ActionNone
	}
	c.state.unitOn = snap.UnitOn
	if snap.UnitFanSpeed != "" {
		c.state.unitFan = snap.UnitFanSpeed
	}
	c.state.unitSetpoint = snap.UnitSetpoint
	c.state.errorCount = snap.ErrorCount
	c.state.manualOverride = snap.ManualOverride

	// Rooms dropped from the config are not restored and so age out of the
	// persisted snapshot on the next save.
	for _, rs := range snap.Rooms {
		r, ok := c.state.rooms[rs.Name]
		if !ok {
			continue
		}
		r.LastCommanded = rs.LastCommanded
		r.Override = rs.Override
		r.History = rs.History
		r.LastReadingAt = rs.LastReadingAt
		r.LastSeenOccupied = rs.LastSeenOccupied
	}

	c.learning.restoreRuntime(snap.LearningEnabled, snap.LearningMode)
	if c.state.unitOn {
		metrics.UnitOn.Set(1)
	}
	if c.state.quick.Active != models.ActionNone {
		metrics.QuickActionActive.WithLabelValues(string(c.state.quick.Active)).Set(1)
	}
	c.log.Infof("restored controller state from %s", snap.UpdatedAt.Format(time.RFC3339))
}

// setUnitOn flips the cached power state and stamps the compressor timer.
func (c *ControllerService) setUnitOn(on bool, now time.Time) {
	c.state.unitOn = on
	t := now
	if on {
		c.state.protection.ACLastTurnedOn = &t
		metrics.UnitOn.Set(1)
	} else {
		c.state.protection.ACLastTurnedOff = &t
		metrics.UnitOn.Set(0)
	}
}

// noteFault counts one recoverable fault and logs it.
func (c *ControllerService) noteFault(kind, format string, args ...any) {
	c.state.errorCount++
	metrics.CycleErrorsTotal.WithLabelValues(kind).Inc()
	c.log.Warnf(format, args...)
}

func (c *ControllerService) appendEvent(ctx context.Context, now time.Time, typ, desc string, meta any) {
	e := models.ControlEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  now,
		Type:        typ,
		Description: desc,
		Metadata:    meta,
	}
	if err := c.eventRepo.Append(ctx, e); err != nil {
		c.log.Warnf("append %s event: %v", typ, err)
	}
}

// persist writes the current snapshot. Persistence failures are logged and
// do not interrupt the cycle.
func (c *ControllerService) persist(ctx context.Context, now time.Time) {
	if err := c.stateRepo.Save(ctx, c.snapshotLocked(now)); err != nil {
		c.log.Errorf("persist controller state: %v", err)
	}
}

// snapshotLocked assembles the persisted view. Callers hold the mutex.
func (c *ControllerService) snapshotLocked(now time.Time) models.ControllerSnapshot {
	rooms := make([]models.RoomState, 0, len(c.state.rooms))
	for _, name := range c.roomNames() {
		rooms = append(rooms, *c.state.rooms[name])
	}
	return models.ControllerSnapshot{
		ID:              1,
		UnitOn:          c.state.unitOn,
		Mode:            c.state.protection.CurrentMode,
		UnitFanSpeed:    c.state.unitFan,
		UnitSetpoint:    c.state.unitSetpoint,
		TargetTemp:      c.cfg.Controller.TargetTemp,
		Rooms:           rooms,
		Protection:      c.state.protection,
		QuickAction:     c.state.quick,
		ErrorCount:      c.state.errorCount,
		ManualOverride:  c.state.manualOverride,
		LearningEnabled: c.learning.Enabled(),
		LearningMode:    c.learning.Mode(),
		LastCycleAt:     c.state.lastCycleAt,
		UpdatedAt:       now,
	}
}

// roomNames returns configured room names sorted for stable iteration.
func (c *ControllerService) roomNames() []string {
	names := make([]string, 0, len(c.state.rooms))
	for name := range c.state.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// withRetry runs fn with bounded attempts and exponential backoff. Each
// attempt gets its own timeout so one hung call cannot stall the cycle.
func (c *ControllerService) withRetry(ctx context.Context, fn func(context.Context) error) error {
	var lastErr error
	delay := retryInitialDelay
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		callCtx, cancel := context.WithTimeout(ctx, plantCallTimeout)
		err := fn(callCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
