package repository

import (
	"context"
	"database/sql"
	"time"

	"aircon_manager/internal/models"
)

type Authorization interface {
	Create(username, hash string) (int, error)
	GetByUsername(username string) (*models.User, error)
}

type StateRepo interface {
	Save(ctx context.Context, s models.ControllerSnapshot) error
	Load(ctx context.Context) (models.ControllerSnapshot, error)
}

type ProfileRepo interface {
	SaveAll(ctx context.Context, profiles map[string]*models.LearningProfile) error
	LoadAll(ctx context.Context) (map[string]*models.LearningProfile, error)
	Delete(ctx context.Context, room string) error
}

type EventRepo interface {
	Append(ctx context.Context, e models.ControlEvent) error
	List(ctx context.Context, from, to time.Time, typ string) ([]models.ControlEvent, error)
}

type Repository struct {
	StateRepo   StateRepo
	ProfileRepo ProfileRepo
	EventRepo   EventRepo
	Auth        Authorization
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		StateRepo:   NewStateSQLite(db),
		ProfileRepo: NewProfileSQLite(db),
		EventRepo:   NewEventSQLite(db),
		Auth:        NewUserRepository(db),
	}
}
