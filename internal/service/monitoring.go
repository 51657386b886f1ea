package service

import (
	"context"
	"time"

	"aircon_manager/internal/config"
	"aircon_manager/internal/models"
	"aircon_manager/internal/repository"
)

type MonitoringService struct {
	cfg       *config.Config
	stateRepo repository.StateRepo
}

func NewMonitoringService(cfg *config.Config, stateRepo repository.StateRepo) *MonitoringService {
	return &MonitoringService{cfg: cfg, stateRepo: stateRepo}
}

// GetState returns the latest persisted controller snapshot. Before the
// first cycle has persisted anything it returns a baseline idle snapshot.
func (s *MonitoringService) GetState(ctx context.Context) (models.ControllerSnapshot, error) {
	snap, err := s.stateRepo.Load(ctx)
	if err != nil {
		return models.ControllerSnapshot{}, err
	}
	if snap.ID == 0 {
		return s.baselineSnapshot(), nil
	}
	snap.UpdatedAt = toUTC(snap.UpdatedAt)
	snap.LastCycleAt = toUTC(snap.LastCycleAt)
	return snap, nil
}

// baselineSnapshot is the view served for an uninitialized database.
func (s *MonitoringService) baselineSnapshot() models.ControllerSnapshot {
	rooms := make([]models.RoomState, 0, len(s.cfg.Rooms))
	for _, rc := range s.cfg.Rooms {
		rooms = append(rooms, models.RoomState{
			Name:            rc.Name,
			EffectiveTarget: s.cfg.Controller.TargetTemp + rc.TargetOffset,
		})
	}
	return models.ControllerSnapshot{
		ID:              1, // DB schema enforces single-row state with id=1
		Mode:            models.ModeFanOnly,
		UnitFanSpeed:    models.FanLow,
		TargetTemp:      s.cfg.Controller.TargetTemp,
		Rooms:           rooms,
		Protection:      models.CompressorProtectionState{CurrentMode: models.ModeFanOnly},
		QuickAction:     models.QuickActionState{Active: models.ActionNone},
		LearningEnabled: s.cfg.Learning.Enabled,
		LearningMode:    s.cfg.Learning.Mode,
		UpdatedAt:       time.Now().UTC(),
	}
}

// toUTC normalizes non-zero time to UTC, preserving zero values.
func toUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
