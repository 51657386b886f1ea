package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"aircon_manager/internal/logger"
	"aircon_manager/internal/service"
)

// Handler wires the HTTP layer to services and logging.
type Handler struct {
	services *service.Service
	log      *logger.Logger
}

// NewHandler constructs a new HTTP handler with dependencies.
func NewHandler(services *service.Service, log *logger.Logger) *Handler {
	return &Handler{services: services, log: log}
}

// InitRoutes builds and returns the Gin router with all routes registered.
func (h *Handler) InitRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", h.health)

	h.registerAuthRoutes(router)
	h.registerAPIRoutes(router)

	// WebSocket state stream on the same port.
	router.GET("/ws", h.wsConnect)

	return router
}

func (h *Handler) registerAuthRoutes(r *gin.Engine) {
	auth := r.Group("/auth")
	{
		auth.POST("/sign-up", h.signUp)
		auth.POST("/sign-in", h.signIn)
	}
}

func (h *Handler) registerAPIRoutes(r *gin.Engine) {
	api := r.Group("/api/v1", h.userIdMiddleware)
	{
		h.registerClimateRoutes(api)
		h.registerActionRoutes(api)
		h.registerLearningRoutes(api)
		h.registerLogRoutes(api)
	}
}

func (h *Handler) registerClimateRoutes(api *gin.RouterGroup) {
	climate := api.Group("/climate")
	{
		climate.GET("/state", h.getClimateState)
		climate.POST("/optimize", h.forceOptimize)
		climate.POST("/override", h.setManualOverride)
	}
	api.POST("/rooms/:name/override", h.setRoomOverride)
	api.POST("/smoothing/reset", h.resetSmoothing)
	api.POST("/errors/reset", h.resetErrors)
	api.GET("/critical", h.getCriticalStatuses)
}

func (h *Handler) registerActionRoutes(api *gin.RouterGroup) {
	actions := api.Group("/actions")
	{
		actions.POST("/:mode", h.startAction)
		actions.DELETE("", h.stopAction)
	}
}

func (h *Handler) registerLearningRoutes(api *gin.RouterGroup) {
	learning := api.Group("/learning")
	{
		learning.GET("", h.getLearning)
		learning.POST("/enable", h.enableLearning)
		learning.POST("/disable", h.disableLearning)
		learning.POST("/reset", h.resetLearning)
	}
}

func (h *Handler) registerLogRoutes(api *gin.RouterGroup) {
	logs := api.Group("/logs")
	{
		logs.GET("", h.getLogs)
	}
}
