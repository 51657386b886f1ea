package service

import (
	"context"
	"errors"
	"time"

	"aircon_manager/internal/config"
	"aircon_manager/internal/logger"
	"aircon_manager/internal/models"
	"aircon_manager/internal/plant"
	"aircon_manager/internal/repository"
)

// Errors shared by the sub-services. Handlers map these onto HTTP statuses.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrStartingUp          = errors.New("controller is still in its startup delay")
	ErrInvalidAction       = errors.New("unknown quick action")
	ErrActionActive        = errors.New("another quick action is already active")
	ErrNoActionActive      = errors.New("no quick action is active")
	ErrInvalidDuration     = errors.New("duration outside the allowed range")
	ErrInvalidLearningMode = errors.New("learning mode must be passive or active")
)

type Authorization interface {
	SignUp(username, password string) (int, error)
	GenerateToken(username, password string) (string, error)
	ParseToken(accessToken string) (int, error)
}

// Controller runs the periodic optimization loop and exposes the manual
// switches that steer it.
type Controller interface {
	Run(ctx context.Context)
	ForceOptimize(ctx context.Context) error
	SetManualOverride(ctx context.Context, enabled bool) error
	SetRoomOverride(ctx context.Context, room string, enabled bool) error
	ResetSmoothing(ctx context.Context) error
	ResetErrors(ctx context.Context) error
}

// Actions manages the quick-action overlays (vacation, boost, sleep, party).
type Actions interface {
	StartAction(ctx context.Context, action models.QuickAction, p ActionParams) error
	StopAction(ctx context.Context) error
}

// Monitoring exposes the read-only controller snapshot.
type Monitoring interface {
	GetState(ctx context.Context) (models.ControllerSnapshot, error)
}

// Learning exposes the per-room thermal profiles and the switches that
// control collection and application.
type Learning interface {
	Report(ctx context.Context) (LearningReport, error)
	Enable(ctx context.Context, mode string) error
	Disable(ctx context.Context) error
	Reset(ctx context.Context, room string) error
}

// EventLog exposes append-only control events with filtering access.
type EventLog interface {
	List(ctx context.Context, f LogFilter) ([]models.ControlEvent, error)
}

// Critical watches rooms with hard temperature limits on its own interval,
// independent of the optimization cycle.
type Critical interface {
	Run(ctx context.Context)
	Statuses() map[string]CriticalRoomStatus
}

// CyclePublisher receives the controller snapshot after every cycle.
// A nil publisher is valid and means telemetry is off.
type CyclePublisher interface {
	Publish(ctx context.Context, snap models.ControllerSnapshot) error
}

// LogFilter narrows an event listing by time range and type.
type LogFilter struct {
	From time.Time // inclusive; zero means no lower bound
	To   time.Time // inclusive; zero means no upper bound
	Type string    // "" or one of the models.Event* constants
}

type Service struct {
	Controller
	Actions
	Monitoring
	Learning
	EventLog
	Critical
	Authorization
}

// NewService wires the repositories and the plant into the concrete
// sub-services. The controller doubles as the quick-action service so both
// share one cycle mutex.
func NewService(cfg *config.Config, repos *repository.Repository, pl plant.Plant, tele CyclePublisher, log *logger.Logger) *Service {
	learning := NewLearningService(cfg, repos.ProfileRepo, repos.EventRepo, log)
	ctrl := NewControllerService(cfg, pl, repos.StateRepo, repos.EventRepo, learning, tele, log)
	return &Service{
		Controller:    ctrl,
		Actions:       ctrl,
		Monitoring:    NewMonitoringService(cfg, repos.StateRepo),
		Learning:      learning,
		EventLog:      NewEventLogService(repos.EventRepo),
		Critical:      NewCriticalMonitor(cfg, pl, repos.EventRepo, ctrl, log),
		Authorization: NewAuthService(repos.Auth, cfg.Auth.SigningKey, cfg.Auth.TokenTTL),
	}
}
