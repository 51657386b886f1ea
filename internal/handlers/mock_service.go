package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"aircon_manager/internal/models"
	"aircon_manager/internal/service"
)

// ---- Service Mocks ----

type mockAuth struct {
	signUpID      int
	signUpErr     error
	genTokenToken string
	genTokenErr   error
	parseID       int
	parseErr      error

	lastSignUpUsername string
	lastSignUpPassword string
	lastGenUsername    string
	lastGenPassword    string
	lastParseToken     string
}

func (m *mockAuth) SignUp(username, password string) (int, error) {
	m.lastSignUpUsername = username
	m.lastSignUpPassword = password
	return m.signUpID, m.signUpErr
}
func (m *mockAuth) GenerateToken(username, password string) (string, error) {
	m.lastGenUsername = username
	m.lastGenPassword = password
	return m.genTokenToken, m.genTokenErr
}
func (m *mockAuth) ParseToken(token string) (int, error) {
	m.lastParseToken = token
	return m.parseID, m.parseErr
}

type mockController struct {
	optimizeErr error
	manualErr   error
	roomErr     error
	smoothErr   error
	errorsErr   error

	optimizeCalls   int
	smoothCalls     int
	errorResetCalls int
	lastManual      bool
	lastRoom        string
	lastRoomEnabled bool
}

func (m *mockController) Run(ctx context.Context) {}
func (m *mockController) ForceOptimize(ctx context.Context) error {
	m.optimizeCalls++
	return m.optimizeErr
}
func (m *mockController) SetManualOverride(ctx context.Context, enabled bool) error {
	m.lastManual = enabled
	return m.manualErr
}
func (m *mockController) SetRoomOverride(ctx context.Context, room string, enabled bool) error {
	m.lastRoom = room
	m.lastRoomEnabled = enabled
	return m.roomErr
}
func (m *mockController) ResetSmoothing(ctx context.Context) error {
	m.smoothCalls++
	return m.smoothErr
}
func (m *mockController) ResetErrors(ctx context.Context) error {
	m.errorResetCalls++
	return m.errorsErr
}

type mockActions struct {
	startErr   error
	stopErr    error
	lastAction models.QuickAction
	lastParams service.ActionParams
	startCalls int
	stopCalls  int
}

func (m *mockActions) StartAction(ctx context.Context, action models.QuickAction, p service.ActionParams) error {
	m.startCalls++
	m.lastAction = action
	m.lastParams = p
	return m.startErr
}
func (m *mockActions) StopAction(ctx context.Context) error {
	m.stopCalls++
	return m.stopErr
}

type mockMonitoring struct {
	state models.ControllerSnapshot
	err   error
}

func (m *mockMonitoring) GetState(ctx context.Context) (models.ControllerSnapshot, error) {
	return m.state, m.err
}

type mockLearning struct {
	report     service.LearningReport
	reportErr  error
	enableErr  error
	disableErr error
	resetErr   error

	lastMode     string
	lastRoom     string
	disableCalls int
}

func (m *mockLearning) Report(ctx context.Context) (service.LearningReport, error) {
	return m.report, m.reportErr
}
func (m *mockLearning) Enable(ctx context.Context, mode string) error {
	m.lastMode = mode
	return m.enableErr
}
func (m *mockLearning) Disable(ctx context.Context) error {
	m.disableCalls++
	return m.disableErr
}
func (m *mockLearning) Reset(ctx context.Context, room string) error {
	m.lastRoom = room
	return m.resetErr
}

type mockEventLog struct {
	resp     []models.ControlEvent
	err      error
	lastFrom time.Time
	lastTo   time.Time
	lastType string
}

func (m *mockEventLog) List(ctx context.Context, f service.LogFilter) ([]models.ControlEvent, error) {
	m.lastFrom = f.From
	m.lastTo = f.To
	m.lastType = f.Type
	return m.resp, m.err
}

type mockCritical struct {
	statuses map[string]service.CriticalRoomStatus
}

func (m *mockCritical) Run(ctx context.Context) {}
func (m *mockCritical) Statuses() map[string]service.CriticalRoomStatus {
	return m.statuses
}

// ---- Shared Test Helpers ----

func newTestRouter(s *service.Service) *gin.Engine {
	h := NewHandler(s, nil)
	gin.SetMode(gin.TestMode)
	return h.InitRoutes()
}

func authHeader(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}
