package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"aircon_manager/internal/models"
)

// ErrCorruptState marks a controller_state row whose JSON columns no longer
// decode. Callers fall back to safe defaults when they see it.
var ErrCorruptState = errors.New("controller state row is corrupt")

type StateSQLite struct {
	db *sql.DB
}

func NewStateSQLite(db *sql.DB) *StateSQLite {
	return &StateSQLite{db: db}
}

const (
	controllerStateRowID = 1

	insertOrUpdateStateSQL = `
		INSERT INTO controller_state (id, unit_on, mode, unit_fan, unit_setpoint, target_c, rooms, protection, quick_action, error_count, manual_override, learning_enabled, learning_mode, last_cycle_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			unit_on=excluded.unit_on,
			mode=excluded.mode,
			unit_fan=excluded.unit_fan,
			unit_setpoint=excluded.unit_setpoint,
			target_c=excluded.target_c,
			rooms=excluded.rooms,
			protection=excluded.protection,
			quick_action=excluded.quick_action,
			error_count=excluded.error_count,
			manual_override=excluded.manual_override,
			learning_enabled=excluded.learning_enabled,
			learning_mode=excluded.learning_mode,
			last_cycle_at=excluded.last_cycle_at,
			updated_at=excluded.updated_at
	`

	selectStateSQL = `
		SELECT id, unit_on, mode, unit_fan, unit_setpoint, target_c, rooms, protection, quick_action, error_count, manual_override, learning_enabled, learning_mode, last_cycle_at, updated_at
		FROM controller_state WHERE id=?
	`
)

// marshalColumn converts a nested structure to its JSON column string.
func marshalColumn(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Save updates or inserts the controller_state row (id always 1).
func (r *StateSQLite) Save(ctx context.Context, s models.ControllerSnapshot) error {
	roomsJSON, err := marshalColumn(s.Rooms)
	if err != nil {
		return fmt.Errorf("marshal rooms: %w", err)
	}
	protectionJSON, err := marshalColumn(s.Protection)
	if err != nil {
		return fmt.Errorf("marshal protection: %w", err)
	}
	actionJSON, err := marshalColumn(s.QuickAction)
	if err != nil {
		return fmt.Errorf("marshal quick action: %w", err)
	}

	// ensure UpdatedAt is always persisted as UTC; set if zero
	tsUTC := s.UpdatedAt
	if tsUTC.IsZero() {
		tsUTC = time.Now().UTC()
	} else {
		tsUTC = tsUTC.UTC()
	}

	_, err = r.db.ExecContext(ctx, insertOrUpdateStateSQL,
		controllerStateRowID,
		s.UnitOn,
		string(s.Mode),
		string(s.UnitFanSpeed),
		s.UnitSetpoint,
		s.TargetTemp,
		roomsJSON,
		protectionJSON,
		actionJSON,
		s.ErrorCount,
		s.ManualOverride,
		s.LearningEnabled,
		s.LearningMode,
		s.LastCycleAt.UTC(),
		tsUTC,
	)
	return err
}

// Load fetches the single controller_state row (id=1). A missing row returns
// a zero snapshot with no error; undecodable JSON columns return
// ErrCorruptState so the caller can rebuild from defaults.
func (r *StateSQLite) Load(ctx context.Context) (models.ControllerSnapshot, error) {
	row := r.db.QueryRowContext(ctx, selectStateSQL, controllerStateRowID)

	var (
		s              models.ControllerSnapshot
		mode, fan      string
		roomsJSON      string
		protectionJSON string
		actionJSON     string
	)
	if err := row.Scan(
		&s.ID,
		&s.UnitOn,
		&mode,
		&fan,
		&s.UnitSetpoint,
		&s.TargetTemp,
		&roomsJSON,
		&protectionJSON,
		&actionJSON,
		&s.ErrorCount,
		&s.ManualOverride,
		&s.LearningEnabled,
		&s.LearningMode,
		&s.LastCycleAt,
		&s.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ControllerSnapshot{}, nil // no state yet
		}
		return models.ControllerSnapshot{}, err
	}
	s.Mode = models.HVACMode(mode)
	s.UnitFanSpeed = models.UnitFanSpeed(fan)

	if roomsJSON != "" {
		if err := json.Unmarshal([]byte(roomsJSON), &s.Rooms); err != nil {
			return models.ControllerSnapshot{}, fmt.Errorf("%w: rooms: %v", ErrCorruptState, err)
		}
	}
	if protectionJSON != "" {
		if err := json.Unmarshal([]byte(protectionJSON), &s.Protection); err != nil {
			return models.ControllerSnapshot{}, fmt.Errorf("%w: protection: %v", ErrCorruptState, err)
		}
	}
	if actionJSON != "" {
		if err := json.Unmarshal([]byte(actionJSON), &s.QuickAction); err != nil {
			return models.ControllerSnapshot{}, fmt.Errorf("%w: quick action: %v", ErrCorruptState, err)
		}
	}
	s.LastCycleAt = s.LastCycleAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()

	return s, nil
}
