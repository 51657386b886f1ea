package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"aircon_manager/internal/models"
)

type ProfileSQLite struct {
	db *sql.DB
}

func NewProfileSQLite(db *sql.DB) *ProfileSQLite {
	return &ProfileSQLite{db: db}
}

// Ensure implementation of ProfileRepo interface at compile time.
var _ ProfileRepo = (*ProfileSQLite)(nil)

const (
	upsertProfileSQL = `
		INSERT INTO learning_profiles (room, profile, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(room) DO UPDATE SET
			profile=excluded.profile,
			updated_at=excluded.updated_at
	`

	selectProfilesSQL = `SELECT room, profile FROM learning_profiles`

	deleteProfileSQL = `DELETE FROM learning_profiles WHERE room = ?`
)

// SaveAll upserts every profile in one transaction so a crash mid-write
// cannot leave half the rooms updated.
func (r *ProfileSQLite) SaveAll(ctx context.Context, profiles map[string]*models.LearningProfile) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin profile transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	for room, p := range profiles {
		if p == nil {
			continue
		}
		b, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshal profile %q: %w", room, err)
		}
		if _, err := tx.ExecContext(ctx, upsertProfileSQL, room, string(b), now); err != nil {
			return fmt.Errorf("upsert profile %q: %w", room, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit profile transaction: %w", err)
	}
	return nil
}

// LoadAll returns every stored profile keyed by room. Rows that no longer
// decode are skipped rather than failing the whole load; the room simply
// relearns.
func (r *ProfileSQLite) LoadAll(ctx context.Context) (map[string]*models.LearningProfile, error) {
	rows, err := r.db.QueryContext(ctx, selectProfilesSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*models.LearningProfile)
	for rows.Next() {
		var room, blob string
		if err := rows.Scan(&room, &blob); err != nil {
			return nil, err
		}
		var p models.LearningProfile
		if err := json.Unmarshal([]byte(blob), &p); err != nil {
			continue
		}
		p.Room = room
		if p.CoupledRooms == nil {
			p.CoupledRooms = map[string]float64{}
		}
		out[room] = &p
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the stored profile for a room.
func (r *ProfileSQLite) Delete(ctx context.Context, room string) error {
	if _, err := r.db.ExecContext(ctx, deleteProfileSQL, room); err != nil {
		return fmt.Errorf("delete profile %q: %w", room, err)
	}
	return nil
}
