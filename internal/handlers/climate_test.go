package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"aircon_manager/internal/models"
	"aircon_manager/internal/service"
)

// doRequest performs a request against the router with an optional bearer
// token and JSON body, returning the recorder.
func doRequest(r *gin.Engine, method, target, token, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vv := range authHeader(token) {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	r.ServeHTTP(w, req)
	return w
}

func TestClimateHandlers_StateAndOptimize(t *testing.T) {
	auth := &mockAuth{parseID: 7}
	temp := 23.4
	mon := &mockMonitoring{state: models.ControllerSnapshot{
		UnitOn:     true,
		Mode:       models.ModeCool,
		TargetTemp: 22.5,
		Rooms: []models.RoomState{
			{Name: "living", CurrentTemp: &temp, EffectiveTarget: 22.5, LastCommanded: 65},
		},
	}}
	ctrl := &mockController{}
	s := &service.Service{
		Authorization: auth,
		Monitoring:    mon,
		Controller:    ctrl,
	}
	r := newTestRouter(s)

	// GET state requires auth → 401 without header
	w := doRequest(r, http.MethodGet, "/api/v1/climate/state", "", "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without auth, got %d", w.Code)
	}

	// With auth → 200 and snapshot body
	w = doRequest(r, http.MethodGet, "/api/v1/climate/state", "valid", "")
	if w.Code != http.StatusOK {
		t.Fatalf("state status=%d, body=%s", w.Code, w.Body.String())
	}
	var st models.ControllerSnapshot
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.Mode != models.ModeCool || !st.UnitOn || st.TargetTemp != 22.5 {
		t.Fatalf("unexpected state: %+v", st)
	}
	if len(st.Rooms) != 1 || st.Rooms[0].Name != "living" || st.Rooms[0].LastCommanded != 65 {
		t.Fatalf("unexpected rooms: %+v", st.Rooms)
	}

	// POST /optimize → 200, runs a cycle and includes state
	w = doRequest(r, http.MethodPost, "/api/v1/climate/optimize", "valid", "")
	if w.Code != http.StatusOK {
		t.Fatalf("optimize status=%d, body=%s", w.Code, w.Body.String())
	}
	if ctrl.optimizeCalls != 1 {
		t.Fatalf("expected ForceOptimize to be called once, got %d", ctrl.optimizeCalls)
	}
	var resp struct {
		Status string                    `json:"status"`
		State  models.ControllerSnapshot `json:"state"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Status != statusOptimized {
		t.Fatalf("expected status %q, got %q", statusOptimized, resp.Status)
	}
	if resp.State.Mode != models.ModeCool {
		t.Fatalf("state missing/invalid in response: %+v", resp.State)
	}

	// During the startup delay a forced cycle is refused with 503.
	ctrl.optimizeErr = service.ErrStartingUp
	w = doRequest(r, http.MethodPost, "/api/v1/climate/optimize", "valid", "")
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 during startup, got %d, body=%s", w.Code, w.Body.String())
	}
}

func TestClimateHandlers_OverridesAndResets(t *testing.T) {
	auth := &mockAuth{parseID: 7}
	mon := &mockMonitoring{state: models.ControllerSnapshot{Mode: models.ModeCool}}
	ctrl := &mockController{}
	s := &service.Service{
		Authorization: auth,
		Monitoring:    mon,
		Controller:    ctrl,
	}
	r := newTestRouter(s)

	// Global override on → 200
	w := doRequest(r, http.MethodPost, "/api/v1/climate/override", "valid", `{"enabled":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("override status=%d, body=%s", w.Code, w.Body.String())
	}
	if !ctrl.lastManual {
		t.Fatalf("expected manual override enabled")
	}

	// Missing body → 400
	w = doRequest(r, http.MethodPost, "/api/v1/climate/override", "valid", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty override body, got %d", w.Code)
	}

	// Room override off; "enabled" must still bind when false.
	w = doRequest(r, http.MethodPost, "/api/v1/rooms/bedroom/override", "valid", `{"enabled":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("room override status=%d, body=%s", w.Code, w.Body.String())
	}
	if ctrl.lastRoom != "bedroom" || ctrl.lastRoomEnabled {
		t.Fatalf("wrong room override call: room=%q enabled=%v", ctrl.lastRoom, ctrl.lastRoomEnabled)
	}

	// Unknown room → 404
	ctrl.roomErr = service.ErrRoomNotFound
	w = doRequest(r, http.MethodPost, "/api/v1/rooms/attic/override", "valid", `{"enabled":true}`)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown room, got %d, body=%s", w.Code, w.Body.String())
	}

	// Smoothing and error-counter resets
	w = doRequest(r, http.MethodPost, "/api/v1/smoothing/reset", "valid", "")
	if w.Code != http.StatusOK || ctrl.smoothCalls != 1 {
		t.Fatalf("smoothing reset status=%d calls=%d", w.Code, ctrl.smoothCalls)
	}
	w = doRequest(r, http.MethodPost, "/api/v1/errors/reset", "valid", "")
	if w.Code != http.StatusOK || ctrl.errorResetCalls != 1 {
		t.Fatalf("errors reset status=%d calls=%d", w.Code, ctrl.errorResetCalls)
	}
}

func TestCriticalHandler_Statuses(t *testing.T) {
	auth := &mockAuth{parseID: 7}
	crit := &mockCritical{statuses: map[string]service.CriticalRoomStatus{
		"living": service.CriticalStatusWarning,
		"attic":  service.CriticalStatusNormal,
	}}
	s := &service.Service{
		Authorization: auth,
		Critical:      crit,
	}
	r := newTestRouter(s)

	w := doRequest(r, http.MethodGet, "/api/v1/critical", "valid", "")
	if w.Code != http.StatusOK {
		t.Fatalf("critical status=%d, body=%s", w.Code, w.Body.String())
	}
	var out struct {
		Statuses map[string]service.CriticalRoomStatus `json:"statuses"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Statuses["living"] != service.CriticalStatusWarning || out.Statuses["attic"] != service.CriticalStatusNormal {
		t.Fatalf("unexpected statuses: %+v", out.Statuses)
	}
}
