package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"aircon_manager/internal/config"
	"aircon_manager/internal/engine"
	"aircon_manager/internal/logger"
	"aircon_manager/internal/models"
	"aircon_manager/internal/repository"
)

// Learning modes. Passive collects samples without touching profiles;
// active additionally applies bounded adjustments once confident.
const (
	LearningModePassive = "passive"
	LearningModeActive  = "active"
)

const (
	// Profile analysis runs at most once per interval.
	analysisInterval = time.Hour

	// Samples this close in time count as simultaneous for coupling.
	couplingAlignTolerance = time.Minute
)

// RoomLearning is one room's slice of the learning report.
type RoomLearning struct {
	Profile models.LearningProfile `json:"profile"`
	Samples int                    `json:"samples"`
}

// LearningReport is the full learning state served to clients.
type LearningReport struct {
	Enabled bool                    `json:"enabled"`
	Mode    string                  `json:"mode"`
	Rooms   map[string]RoomLearning `json:"rooms"`
}

// LearningService owns the per-room thermal profiles and the sample
// tracker feeding them. The controller records observations during cycles;
// handlers read and reset through the same mutex.
type LearningService struct {
	cfg         *config.Config
	profileRepo repository.ProfileRepo
	eventRepo   repository.EventRepo
	log         *logger.Logger

	mu           sync.Mutex
	enabled      bool
	mode         string
	tracker      *engine.Tracker
	profiles     map[string]*models.LearningProfile
	lastAnalysis time.Time
	loaded       bool
}

func NewLearningService(cfg *config.Config, profileRepo repository.ProfileRepo, eventRepo repository.EventRepo, log *logger.Logger) *LearningService {
	mode := cfg.Learning.Mode
	if mode != LearningModeActive {
		mode = LearningModePassive
	}
	return &LearningService{
		cfg:         cfg,
		profileRepo: profileRepo,
		eventRepo:   eventRepo,
		log:         log,
		enabled:     cfg.Learning.Enabled,
		mode:        mode,
		tracker:     engine.NewTracker(),
		profiles:    make(map[string]*models.LearningProfile),
	}
}

// load makes sure profiles are in memory. The controller calls this once
// during its own restore.
func (l *LearningService) load(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureLoadedLocked(ctx)
}

// ensureLoadedLocked pulls persisted profiles in, creates defaults for new
// rooms and deletes profiles of rooms gone from the config.
func (l *LearningService) ensureLoadedLocked(ctx context.Context) {
	if l.loaded {
		return
	}
	l.loaded = true

	stored, err := l.profileRepo.LoadAll(ctx)
	if err != nil {
		l.log.Errorf("load learning profiles: %v", err)
		stored = nil
	}
	configured := make(map[string]bool, len(l.cfg.Rooms))
	for _, rc := range l.cfg.Rooms {
		configured[rc.Name] = true
		if p, ok := stored[rc.Name]; ok {
			if p.CoupledRooms == nil {
				p.CoupledRooms = make(map[string]float64)
			}
			l.profiles[rc.Name] = p
		} else {
			l.profiles[rc.Name] = models.NewLearningProfile(rc.Name)
		}
	}
	for room := range stored {
		if !configured[room] {
			if err := l.profileRepo.Delete(ctx, room); err != nil {
				l.log.Warnf("delete profile for removed room %s: %v", room, err)
			}
		}
	}
}

// restoreRuntime applies the enabled flag and mode from a persisted
// controller snapshot, overriding the config defaults.
func (l *LearningService) restoreRuntime(enabled bool, mode string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = enabled
	if mode == LearningModePassive || mode == LearningModeActive {
		l.mode = mode
	}
}

// CollectionEnabled reports whether cycles should record samples.
func (l *LearningService) CollectionEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Enabled reports the current learning switch.
func (l *LearningService) Enabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Mode returns the current learning mode.
func (l *LearningService) Mode() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// ProfileFor returns the live profile for a room, or nil for an unknown one.
// The engine only reads profiles, so handing out the pointer is safe.
func (l *LearningService) ProfileFor(room string) *models.LearningProfile {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.profiles[room]
}

// ProfilesView returns a copy of the profile map for a balancing pass.
func (l *LearningService) ProfilesView() map[string]*models.LearningProfile {
	l.mu.Lock()
	defer l.mu.Unlock()
	view := make(map[string]*models.LearningProfile, len(l.profiles))
	for room, p := range l.profiles {
		view[room] = p
	}
	return view
}

// Observe records one cycle's sample for a room and grows its confidence.
func (l *LearningService) Observe(room string, s engine.PerformanceSample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return
	}
	l.tracker.Record(room, s)
	if p, ok := l.profiles[room]; ok {
		p.DataPointCount++
		p.RefreshConfidence()
	}
}

// ObserveOvershoot records that a room just crossed its overshoot margin.
func (l *LearningService) ObserveOvershoot(room string, at time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return
	}
	l.tracker.RecordOvershoot(room, at)
}

// MaybeAnalyze runs the hourly profile analysis. Passive mode never mutates
// profiles; active mode applies bounded steps to rooms whose confidence has
// reached the configured threshold.
func (l *LearningService) MaybeAnalyze(ctx context.Context, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled || l.mode != LearningModeActive {
		return
	}
	if !l.lastAnalysis.IsZero() && now.Sub(l.lastAnalysis) < analysisInterval {
		return
	}
	l.ensureLoadedLocked(ctx)
	l.lastAnalysis = now

	dir := l.cfg.Controller.Mode
	var adjusted []string
	for _, room := range l.roomsLocked() {
		p := l.profiles[room]
		if p.Confidence < l.cfg.Learning.ConfidenceThreshold {
			continue
		}
		a := engine.Analyze(l.tracker.Samples(room), l.tracker.Overshoots(room), now, dir)
		engine.ApplyAnalysis(p, a, l.cfg.Learning.MaxAdjustment, p.Confidence)
		l.updateRelativeRateLocked(p, dir)
		l.updateCouplingLocked(room, p)
		p.UpdatedAt = now
		adjusted = append(adjusted, room)
	}
	if len(adjusted) == 0 {
		return
	}
	if err := l.profileRepo.SaveAll(ctx, l.profiles); err != nil {
		l.log.Errorf("save learning profiles: %v", err)
	}
	l.appendEvent(ctx, now, fmt.Sprintf("profiles adjusted for %s", strings.Join(adjusted, ", ")))
	l.log.Infof("learning analysis adjusted %d rooms", len(adjusted))
}

// Report returns the profiles and sample counts for every room.
func (l *LearningService) Report(ctx context.Context) (LearningReport, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureLoadedLocked(ctx)
	rep := LearningReport{
		Enabled: l.enabled,
		Mode:    l.mode,
		Rooms:   make(map[string]RoomLearning, len(l.profiles)),
	}
	for room, p := range l.profiles {
		cp := *p
		cp.CoupledRooms = make(map[string]float64, len(p.CoupledRooms))
		for other, f := range p.CoupledRooms {
			cp.CoupledRooms[other] = f
		}
		rep.Rooms[room] = RoomLearning{Profile: cp, Samples: l.tracker.SampleCount(room)}
	}
	return rep, nil
}

// Enable turns learning on. An empty mode keeps the current one.
func (l *LearningService) Enable(ctx context.Context, mode string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureLoadedLocked(ctx)
	if mode == "" {
		mode = l.mode
	}
	if mode != LearningModePassive && mode != LearningModeActive {
		return fmt.Errorf("%w: %q", ErrInvalidLearningMode, mode)
	}
	l.enabled = true
	l.mode = mode
	l.appendEvent(ctx, time.Now().UTC(), fmt.Sprintf("learning enabled in %s mode", mode))
	return nil
}

// Disable stops both collection and application. Profiles keep their values.
func (l *LearningService) Disable(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.enabled {
		return nil
	}
	l.enabled = false
	l.appendEvent(ctx, time.Now().UTC(), "learning disabled")
	return nil
}

// Reset drops learned state for one room, or for every room when room is
// empty. Profiles return to their neutral defaults.
func (l *LearningService) Reset(ctx context.Context, room string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ensureLoadedLocked(ctx)
	now := time.Now().UTC()

	if room == "" {
		l.tracker.Reset()
		for name := range l.profiles {
			l.profiles[name] = models.NewLearningProfile(name)
		}
		if err := l.profileRepo.SaveAll(ctx, l.profiles); err != nil {
			return fmt.Errorf("reset learning profiles: %w", err)
		}
		l.appendEvent(ctx, now, "all learning profiles reset")
		return nil
	}

	if _, ok := l.profiles[room]; !ok {
		return fmt.Errorf("%w: %s", ErrRoomNotFound, room)
	}
	l.tracker.DropRoom(room)
	l.profiles[room] = models.NewLearningProfile(room)
	for _, p := range l.profiles {
		delete(p.CoupledRooms, room)
	}
	if err := l.profileRepo.SaveAll(ctx, l.profiles); err != nil {
		return fmt.Errorf("reset learning profile: %w", err)
	}
	l.appendEvent(ctx, now, fmt.Sprintf("learning profile reset for %s", room))
	return nil
}

// updateRelativeRateLocked records how fast the room converges compared to
// the house average. Values above 1 mean faster than average.
func (l *LearningService) updateRelativeRateLocked(p *models.LearningProfile, dir models.HVACMode) {
	if p.ConvergenceRate <= 0 {
		return
	}
	var sum float64
	var n int
	for _, other := range l.profiles {
		if other.ConvergenceRate > 0 {
			sum += other.ConvergenceRate
			n++
		}
	}
	if n == 0 {
		return
	}
	rel := (sum / float64(n)) / p.ConvergenceRate
	if dir == models.ModeHeat {
		p.RelativeHeatGainRate = rel
	} else {
		p.RelativeCoolRate = rel
	}
}

// updateCouplingLocked refreshes the room's coupling factors against every
// other tracked room.
func (l *LearningService) updateCouplingLocked(room string, p *models.LearningProfile) {
	series := l.tracker.TempSeries(room)
	if len(series) == 0 {
		return
	}
	for _, other := range l.roomsLocked() {
		if other == room {
			continue
		}
		factor, coupled := engine.CouplingFactor(series, l.tracker.TempSeries(other), couplingAlignTolerance)
		if coupled {
			p.CoupledRooms[other] = factor
		} else {
			delete(p.CoupledRooms, other)
		}
	}
}

// roomsLocked returns profile rooms sorted for stable iteration.
func (l *LearningService) roomsLocked() []string {
	rooms := make([]string, 0, len(l.profiles))
	for room := range l.profiles {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

func (l *LearningService) appendEvent(ctx context.Context, now time.Time, desc string) {
	e := models.ControlEvent{
		EventID:     uuid.NewString(),
		OccurredAt:  now,
		Type:        models.EventLearning,
		Description: desc,
	}
	if err := l.eventRepo.Append(ctx, e); err != nil {
		l.log.Warnf("append learning event: %v", err)
	}
}
