package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	errGetLearning     = "failed to load learning report"
	errEnableLearning  = "failed to enable learning"
	errDisableLearning = "failed to disable learning"
	errResetLearning   = "failed to reset learning"
)

// Request DTOs for the learning switches. Both bodies are optional.
type learningEnableRequest struct {
	Mode string `json:"mode,omitempty"` // passive | active; empty keeps the current mode
}

type learningResetRequest struct {
	Room string `json:"room,omitempty"` // empty resets every room
}

// @Summary      Learning report
// @Description  Per-room thermal profiles with confidence and sample counts
// @Tags         learning
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/learning [get]
// @Security     BearerAuth
func (h *Handler) getLearning(c *gin.Context) {
	ctx := c.Request.Context()
	rep, err := h.services.Learning.Report(ctx)
	if err != nil {
		h.serviceError(c, errGetLearning, "learning_report_failed", err)
		return
	}
	c.JSON(http.StatusOK, rep)
}

// @Summary      Enable learning
// @Description  Turns sample collection on. Mode "active" also applies analysis results.
// @Tags         learning
// @Accept       json
// @Produce      json
// @Param        body  body   learningEnableRequest  false  "Optional mode"
// @Success      200   {object}  map[string]interface{}
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Router       /api/v1/learning/enable [post]
// @Security     BearerAuth
func (h *Handler) enableLearning(c *gin.Context) {
	var req learningEnableRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
			return
		}
	}
	ctx := c.Request.Context()
	if err := h.services.Learning.Enable(ctx, req.Mode); err != nil {
		h.serviceError(c, errEnableLearning, "learning_enable_failed", err, "mode", req.Mode)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

// @Summary      Disable learning
// @Tags         learning
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      401  {object}  map[string]string
// @Failure      500  {object}  map[string]string
// @Router       /api/v1/learning/disable [post]
// @Security     BearerAuth
func (h *Handler) disableLearning(c *gin.Context) {
	ctx := c.Request.Context()
	if err := h.services.Learning.Disable(ctx); err != nil {
		h.serviceError(c, errDisableLearning, "learning_disable_failed", err)
		return
	}
	h.respondWithStatusAndState(c, statusOK, gin.H{})
}

// @Summary      Reset learning profiles
// @Description  Resets one room's profile, or every profile when no room is given
// @Tags         learning
// @Accept       json
// @Produce      json
// @Param        body  body   learningResetRequest  false  "Optional room"
// @Success      200   {object}  map[string]interface{}
// @Failure      401   {object}  map[string]string
// @Failure      404   {object}  map[string]string
// @Router       /api/v1/learning/reset [post]
// @Security     BearerAuth
func (h *Handler) resetLearning(c *gin.Context) {
	var req learningResetRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errInvalidBodyPref + err.Error()})
			return
		}
	}
	ctx := c.Request.Context()
	if err := h.services.Learning.Reset(ctx, req.Room); err != nil {
		h.serviceError(c, errResetLearning, "learning_reset_failed", err, "room", req.Room)
		return
	}
	h.respondWithStatusAndState(c, statusReset, gin.H{})
}
