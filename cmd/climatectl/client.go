package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"aircon_manager/internal/models"
	"aircon_manager/internal/service"
)

// apiClient is a thin JSON client for the aircond REST API.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

func newAPIClient(base, token string, timeout time.Duration) *apiClient {
	return &apiClient{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http:  &http.Client{Timeout: timeout},
	}
}

// apiError carries the server's error body and status code.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(data, &e)
		return &apiError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func (c *apiClient) signIn(ctx context.Context, username, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/sign-in", body, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

func (c *apiClient) signUp(ctx context.Context, username, password string) (int, error) {
	var out struct {
		ID int `json:"id"`
	}
	body := map[string]string{"username": username, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/sign-up", body, &out); err != nil {
		return 0, err
	}
	return out.ID, nil
}

func (c *apiClient) state(ctx context.Context) (models.ControllerSnapshot, error) {
	var st models.ControllerSnapshot
	err := c.do(ctx, http.MethodGet, "/api/v1/climate/state", nil, &st)
	return st, err
}

func (c *apiClient) optimize(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/climate/optimize", nil, nil)
}

func (c *apiClient) setOverride(ctx context.Context, enabled bool) error {
	return c.do(ctx, http.MethodPost, "/api/v1/climate/override", map[string]bool{"enabled": enabled}, nil)
}

func (c *apiClient) setRoomOverride(ctx context.Context, room string, enabled bool) error {
	path := "/api/v1/rooms/" + url.PathEscape(room) + "/override"
	return c.do(ctx, http.MethodPost, path, map[string]bool{"enabled": enabled}, nil)
}

func (c *apiClient) startAction(ctx context.Context, action string, minutes int) error {
	var body any
	if minutes > 0 {
		body = map[string]int{"duration_minutes": minutes}
	}
	return c.do(ctx, http.MethodPost, "/api/v1/actions/"+url.PathEscape(action), body, nil)
}

func (c *apiClient) stopAction(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/actions", nil, nil)
}

func (c *apiClient) learningReport(ctx context.Context) (service.LearningReport, error) {
	var rep service.LearningReport
	err := c.do(ctx, http.MethodGet, "/api/v1/learning", nil, &rep)
	return rep, err
}

func (c *apiClient) enableLearning(ctx context.Context, mode string) error {
	var body any
	if mode != "" {
		body = map[string]string{"mode": mode}
	}
	return c.do(ctx, http.MethodPost, "/api/v1/learning/enable", body, nil)
}

func (c *apiClient) disableLearning(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/learning/disable", nil, nil)
}

func (c *apiClient) resetLearning(ctx context.Context, room string) error {
	var body any
	if room != "" {
		body = map[string]string{"room": room}
	}
	return c.do(ctx, http.MethodPost, "/api/v1/learning/reset", body, nil)
}

func (c *apiClient) logs(ctx context.Context, from, to, typ string) ([]models.ControlEvent, error) {
	q := url.Values{}
	if from != "" {
		q.Set("from", from)
	}
	if to != "" {
		q.Set("to", to)
	}
	if typ != "" {
		q.Set("type", typ)
	}
	path := "/api/v1/logs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Count  int                   `json:"count"`
		Events []models.ControlEvent `json:"events"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

func (c *apiClient) criticalStatuses(ctx context.Context) (map[string]service.CriticalRoomStatus, error) {
	var out struct {
		Statuses map[string]service.CriticalRoomStatus `json:"statuses"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/critical", nil, &out); err != nil {
		return nil, err
	}
	return out.Statuses, nil
}
