package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"aircon_manager/internal/service"
)

// Common response/status constants to avoid magic strings and typos.
const (
	statusOK        = "ok"
	statusOptimized = "optimized"
	statusOverride  = "override_set"
	statusReset     = "reset"
	statusStarted   = "started"
	statusStopped   = "stopped"

	errGetState        = "failed to load state"
	errOptimize        = "failed to run optimization"
	errSetOverride     = "failed to set override"
	errReset           = "failed to reset"
	errInvalidBodyPref = "invalid body: "
)

// serviceErrorStatus maps typed service errors to HTTP status codes.
// Unknown errors fall through to 500.
func serviceErrorStatus(err error) int {
	switch {
	case errors.Is(err, service.ErrRoomNotFound),
		errors.Is(err, service.ErrNoActionActive):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidAction),
		errors.Is(err, service.ErrInvalidDuration),
		errors.Is(err, service.ErrInvalidLearningMode):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrActionActive):
		return http.StatusConflict
	case errors.Is(err, service.ErrStartingUp):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Centralized error logging and response. The client sees the service
// error text for typed errors and a generic message for internal ones.
func (h *Handler) serviceError(c *gin.Context, userMsg, logKey string, err error, kv ...interface{}) {
	status := serviceErrorStatus(err)
	if h.log != nil && status == http.StatusInternalServerError {
		fields := append([]interface{}{"err", err}, kv...)
		h.log.Errorw(logKey, fields...)
	}
	msg := userMsg
	if status != http.StatusInternalServerError {
		msg = err.Error()
	}
	c.JSON(status, gin.H{"error": msg})
}

// Respond with a status and include current state if available (best-effort).
func (h *Handler) respondWithStatusAndState(c *gin.Context, status string, extra gin.H) {
	ctx := c.Request.Context()
	resp := gin.H{"status": status}
	for k, v := range extra {
		resp[k] = v
	}
	st, err := h.services.Monitoring.GetState(ctx)
	if err == nil {
		resp["state"] = st
	}
	c.JSON(http.StatusOK, resp)
}

// Request DTO for toggling an override.
type overrideRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// SetOverrideRequest is an exported model for Swagger docs of the override payload.
type SetOverrideRequest struct {
	// Enabled turns the override on or off.
	Enabled bool `json:"enabled" example:"true"`
}

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      Get controller state
// @Tags         climate
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/climate/state [get]
// @Security     BearerAuth
func (h *Handler) getClimateState(c *gin.Context) {
	ctx := c.Request.Context()
	st, err := h.services.Monitoring.GetState(ctx)
	if err != nil {
		h.serviceError(c, errGetState, "climate_get_state_failed", err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Force an optimization cycle
// @Description  Runs a full control cycle immediately instead of waiting for the next tick
// @Tags         climate
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "status, state"
// @Failure      401  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/v1/climate/optimize [post]
// @Security     BearerAuth
func (h *Handler) forceOptimize(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Controller.ForceOptimize(ctx); err != nil {
		h.serviceError(c, errOptimize, "climate_optimize_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOptimized, gin.H{})
}

// @Summary      Set global manual override
// @Description  While enabled the controller reads sensors but issues no commands
// @Tags         climate
// @Accept       json
// @Produce      json
// @Param        body  body   SetOverrideRequest  true  "Override payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/climate/override [post]
// @Security     BearerAuth
func (h *Handler) setManualOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	ctx := c.Request.Context()
	if err := h.services.Controller.SetManualOverride(ctx, *req.Enabled); err != nil {
		h.serviceError(c, errSetOverride, "climate_set_override_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOverride, gin.H{"enabled": *req.Enabled})
}

// @Summary      Set per-room override
// @Description  An overridden room keeps whatever airflow was set by hand
// @Tags         climate
// @Accept       json
// @Produce      json
// @Param        name  path   string              true  "Room name"
// @Param        body  body   SetOverrideRequest  true  "Override payload"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/rooms/{name}/override [post]
// @Security     BearerAuth
func (h *Handler) setRoomOverride(c *gin.Context) {
	var req overrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
		return
	}
	room := c.Param("name")
	ctx := c.Request.Context()
	if err := h.services.Controller.SetRoomOverride(ctx, room, *req.Enabled); err != nil {
		h.serviceError(c, errSetOverride, "room_set_override_failed", err, "room", room)
		return
	}
	h.respondWithStatusAndState(c, statusOverride, gin.H{"room": room, "enabled": *req.Enabled})
}

// @Summary      Reset smoothing state
// @Description  Clears the exponential smoothing history so the next cycle starts fresh
// @Tags         climate
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/smoothing/reset [post]
// @Security     BearerAuth
func (h *Handler) resetSmoothing(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Controller.ResetSmoothing(ctx); err != nil {
		h.serviceError(c, errReset, "smoothing_reset_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusReset, gin.H{})
}

// @Summary      Reset error counter
// @Tags         climate
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/errors/reset [post]
// @Security     BearerAuth
func (h *Handler) resetErrors(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Controller.ResetErrors(ctx); err != nil {
		h.serviceError(c, errReset, "errors_reset_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusReset, gin.H{})
}

// @Summary      Critical temperature statuses
// @Description  Per-room status of the critical temperature monitor
// @Tags         climate
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/critical [get]
// @Security     BearerAuth
func (h *Handler) getCriticalStatuses(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"statuses": h.services.Critical.Statuses(),
	})
}
