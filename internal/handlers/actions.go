package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"aircon_manager/internal/models"
	"aircon_manager/internal/service"
)

const (
	errStartAction = "failed to start quick action"
	errStopAction  = "failed to stop quick action"
)

// Request DTO for starting a quick action. The body is optional; a zero
// duration means the configured default for that action.
type actionRequest struct {
	DurationMinutes int `json:"duration_minutes,omitempty"`
}

// StartActionRequest is an exported model for Swagger docs of the action payload.
type StartActionRequest struct {
	// Duration in minutes. Omit or zero for the configured default.
	DurationMinutes int `json:"duration_minutes,omitempty" example:"45"`
}

// @Summary      Start a quick action
// @Description  Starts boost, sleep, party or vacation. Only one action runs at a time.
// @Tags         actions
// @Accept       json
// @Produce      json
// @Param        mode  path   string              true   "Action mode"  Enums(boost, sleep, party, vacation)
// @Param        body  body   StartActionRequest  false  "Optional duration override"
// @Success      200   {object}  map[string]interface{}  "status, action, state"
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      409   {object}  map[string]string
// @Router       /api/v1/actions/{mode} [post]
// @Security     BearerAuth
func (h *Handler) startAction(c *gin.Context) {
	var req actionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
			return
		}
	}
	action := models.QuickAction(strings.ToLower(c.Param("mode")))
	ctx := c.Request.Context()
	params := service.ActionParams{
		DurationMinutes: req.DurationMinutes,
	}
	if err := h.services.Actions.StartAction(ctx, action, params); err != nil {
		h.serviceError(c, errStartAction, "action_start_failed", err, "action", action)
		return
	}
	h.respondWithStatusAndState(c, statusStarted, gin.H{"action": string(action)})
}

// @Summary      Stop the active quick action
// @Description  Stops the running action and restores the pre-action airflow
// @Tags         actions
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/v1/actions [delete]
// @Security     BearerAuth
func (h *Handler) stopAction(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Actions.StopAction(ctx); err != nil {
		h.serviceError(c, errStopAction, "action_stop_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusStopped, gin.H{})
}
