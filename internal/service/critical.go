package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"aircon_manager/internal/config"
	"aircon_manager/internal/logger"
	"aircon_manager/internal/metrics"
	"aircon_manager/internal/models"
	"aircon_manager/internal/plant"
	"aircon_manager/internal/repository"
)

// CriticalRoomStatus is the alert state of one watched room.
type CriticalRoomStatus string

const (
	CriticalStatusNormal     CriticalRoomStatus = "normal"
	CriticalStatusWarning    CriticalRoomStatus = "warning"
	CriticalStatusCritical   CriticalRoomStatus = "critical"
	CriticalStatusRecovering CriticalRoomStatus = "recovering"
)

// criticalRoom is one room's thresholds and current alert state.
// warning is limit minus the configured offset; safe is where a recovery
// completes and defaults to the warning threshold.
type criticalRoom struct {
	limit    float64
	warning  float64
	safe     float64
	status   CriticalRoomStatus
	lastTemp float64
	checked  time.Time
}

// CriticalMonitor watches rooms with a configured max_temp on its own
// interval and forces emergency cooling when a limit is breached. It reads
// sensors directly so a wedged optimization cycle cannot blind it.
type CriticalMonitor struct {
	cfg     *config.Config
	log     *logger.Logger
	sensors plant.SensorSource
	events  repository.EventRepo
	ctrl    *ControllerService

	mu          sync.Mutex
	rooms       map[string]*criticalRoom
	lastTrigger time.Time
}

func NewCriticalMonitor(cfg *config.Config, sensors plant.SensorSource, events repository.EventRepo, ctrl *ControllerService, log *logger.Logger) *CriticalMonitor {
	rooms := make(map[string]*criticalRoom)
	for _, rc := range cfg.Rooms {
		if rc.MaxTemp == nil {
			continue
		}
		limit := *rc.MaxTemp
		warning := limit - cfg.Critical.WarningOffset
		safe := warning
		if rc.SafeTemp != nil {
			safe = *rc.SafeTemp
		}
		rooms[rc.Name] = &criticalRoom{
			limit:   limit,
			warning: warning,
			safe:    safe,
			status:  CriticalStatusNormal,
		}
	}
	return &CriticalMonitor{
		cfg:     cfg,
		log:     log,
		sensors: sensors,
		events:  events,
		ctrl:    ctrl,
		rooms:   rooms,
	}
}

// Run checks every watched room once per interval until the context is
// cancelled. With the monitor disabled or no limits configured it returns
// immediately.
func (m *CriticalMonitor) Run(ctx context.Context) {
	if !m.cfg.Critical.Enabled || len(m.rooms) == 0 {
		m.log.Infof("critical room monitor inactive")
		return
	}
	m.log.Infof("critical room monitor started, %d rooms, interval %s", len(m.rooms), m.cfg.Critical.Interval)
	ticker := time.NewTicker(m.cfg.Critical.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Infof("critical room monitor stopped")
			return
		case <-ticker.C:
			m.check(ctx, time.Now().UTC())
		}
	}
}

// Statuses returns a copy of every watched room's alert state.
func (m *CriticalMonitor) Statuses() map[string]CriticalRoomStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]CriticalRoomStatus, len(m.rooms))
	for name, cr := range m.rooms {
		out[name] = cr.status
	}
	return out
}

// check reads every watched room and advances its alert state. A room whose
// sensor cannot be read is skipped and keeps its previous state.
func (m *CriticalMonitor) check(ctx context.Context, now time.Time) {
	for _, name := range m.roomNames() {
		cr := m.rooms[name]

		callCtx, cancel := context.WithTimeout(ctx, plantCallTimeout)
		temp, err := m.sensors.RoomTemperature(callCtx, name)
		cancel()
		if err != nil {
			m.log.Warnf("critical monitor: room %s temperature: %v", name, err)
			continue
		}

		m.mu.Lock()
		old := cr.status
		next := nextCriticalStatus(old, temp, cr.limit, cr.warning, cr.safe)
		cr.status = next
		cr.lastTemp = temp
		cr.checked = now
		m.mu.Unlock()

		metrics.CriticalStatus.WithLabelValues(name).Set(criticalGauge(next))
		if next != old {
			m.log.Warnf("room %s %s to %s at %.1f", name, old, next, temp)
			m.appendEvent(ctx, now, fmt.Sprintf("room %s %s to %s", name, old, next),
				map[string]any{"temp": round1(temp), "limit": cr.limit})
		}
		if next == CriticalStatusCritical {
			m.triggerCooling(ctx, now, name, temp)
		}
	}
}

// nextCriticalStatus advances the per-room alert machine. Once a room has
// been critical it stays in recovering until it cools to the safe threshold,
// so flapping around the warning line cannot clear an alert early.
func nextCriticalStatus(old CriticalRoomStatus, temp, limit, warning, safe float64) CriticalRoomStatus {
	recovering := old == CriticalStatusCritical || old == CriticalStatusRecovering
	switch {
	case temp >= limit:
		return CriticalStatusCritical
	case temp >= warning:
		if recovering {
			if temp <= safe {
				return CriticalStatusNormal
			}
			return CriticalStatusRecovering
		}
		return CriticalStatusWarning
	case recovering:
		if temp <= safe {
			return CriticalStatusNormal
		}
		return CriticalStatusRecovering
	default:
		return CriticalStatusNormal
	}
}

// triggerCooling asks the controller for emergency cooling, at most once per
// cooldown across all rooms.
func (m *CriticalMonitor) triggerCooling(ctx context.Context, now time.Time, room string, temp float64) {
	m.mu.Lock()
	if !m.lastTrigger.IsZero() && now.Sub(m.lastTrigger) < m.cfg.Critical.Cooldown {
		remaining := m.cfg.Critical.Cooldown - now.Sub(m.lastTrigger)
		m.mu.Unlock()
		m.log.Debugf("emergency cooling for %s suppressed, cooldown for another %s", room, remaining.Round(time.Second))
		return
	}
	m.mu.Unlock()

	acted, err := m.ctrl.EmergencyCool(ctx, room)
	if err != nil {
		m.log.Errorf("emergency cooling for %s: %v", room, err)
		return
	}
	if !acted {
		return
	}
	m.mu.Lock()
	m.lastTrigger = now
	m.mu.Unlock()
	m.appendEvent(ctx, now, fmt.Sprintf("emergency cooling engaged for room %s", room),
		map[string]any{"temp": round1(temp)})
	m.log.Warnf("emergency cooling engaged for room %s at %.1f", room, temp)
}

func (m *CriticalMonitor) roomNames() []string {
	names := make([]string, 0, len(m.rooms))
	for name := range m.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *CriticalMonitor) appendEvent(ctx context.Context, now time.Time, desc string, meta any) {
	e := models.ControlEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  now,
		Type:        models.EventCritical,
		Description: desc,
		Metadata:    meta,
	}
	if err := m.events.Append(ctx, e); err != nil {
		m.log.Warnf("append critical event: %v", err)
	}
}

// criticalGauge maps an alert status onto the exported gauge scale.
func criticalGauge(s CriticalRoomStatus) float64 {
	switch s {
	case CriticalStatusWarning:
		return 1
	case CriticalStatusCritical:
		return 2
	case CriticalStatusRecovering:
		return 3
	default:
		return 0
	}
}
