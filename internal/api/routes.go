package api

import (
	"net/http"

	"github.com/askwhyharsh/caddate/internal/ratelimit"
	"github.com/askwhyharsh/caddate/pkg/logger"

	"github.com/gin-gonic/gin"
)

type RouteOptions struct {
	CORSOrigins []string
	Metrics     http.Handler // nil disables /metrics
	Logger      logger.Logger
}

func SetupRoutes(r *gin.Engine, handler *Handler, wsHandler WebSocketHandler, rlMiddleware *ratelimit.Middleware, authMiddleware gin.HandlerFunc, opts RouteOptions) {
	// Apply global middleware
	r.Use(CORSMiddleware(opts.CORSOrigins))
	r.Use(RequestTimeMiddleware())
	r.Use(RecoveryMiddleware(opts.Logger))
	r.Use(rlMiddleware.IPRateLimit()) // IP-based rate limiting

	// API routes
	api := r.Group("/api")
	{
		// Location routes
		location := api.Group("/location", authMiddleware)
		{
			location.POST("", rlMiddleware.LocationRateLimit(), handler.UpdateLocation)
			location.GET("/nearby", handler.GetNearbyUsers)
			location.GET("/history", handler.GetHistory)
			location.POST("/stop", handler.StopSharing)
			location.GET("/settings", handler.GetSettings)
			location.PUT("/settings", handler.UpdateSettings)
		}

		// Presence
		api.GET("/presence/online", authMiddleware, handler.GetOnlineUsers)

		// Health check (no auth)
		api.GET("/health", handler.Health)
	}

	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	// WebSocket route, authenticated during the handshake
	r.GET("/ws", wsHandler.HandleWebSocket)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, ErrorResponse("Route not found", "NOT_FOUND"))
	})
}

type WebSocketHandler interface {
	HandleWebSocket(c *gin.Context)
}
