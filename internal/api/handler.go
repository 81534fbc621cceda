package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/askwhyharsh/caddate/internal/auth"
	"github.com/askwhyharsh/caddate/internal/location"
	"github.com/askwhyharsh/caddate/internal/presence"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/askwhyharsh/caddate/pkg/logger"
	"github.com/askwhyharsh/caddate/pkg/validator"
	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	locationService location.LocationService
	registry        *presence.Registry
	validator       validator.Validator
	logger          logger.Logger
	pingers         map[string]Pinger
}

type UpdateLocationRequest struct {
	Latitude  *float64   `json:"latitude" validate:"required"`
	Longitude *float64   `json:"longitude" validate:"required"`
	Accuracy  *float64   `json:"accuracy"`
	IsSharing *bool      `json:"isSharing"`
	Timestamp *time.Time `json:"timestamp"`
}

type UpdateSettingsRequest struct {
	IsSharing *bool          `json:"isSharing"`
	Privacy   map[string]any `json:"privacy"`
}

func NewHandler(locationService location.LocationService, registry *presence.Registry, v validator.Validator, log logger.Logger, pingers map[string]Pinger) *Handler {
	return &Handler{
		locationService: locationService,
		registry:        registry,
		validator:       v,
		logger:          log,
		pingers:         pingers,
	}
}

// POST /api/location
func (h *Handler) UpdateLocation(c *gin.Context) {
	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("Invalid request", "INVALID_REQUEST"))
		return
	}
	if err := h.validator.Struct(&req); err != nil {
		h.respondError(c, err)
		return
	}

	loc, err := h.locationService.UpdateLocation(c.Request.Context(), auth.UserID(c), location.Update{
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Accuracy:  req.Accuracy,
		IsSharing: req.IsSharing,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse(loc.Snapshot()))
}

// GET /api/location/nearby
func (h *Handler) GetNearbyUsers(c *gin.Context) {
	limits := h.locationService.Limits()
	radius := queryFloat(c, "radius", limits.DefaultRadiusMeters)
	limit := queryInt(c, "limit", limits.DefaultLimit)

	result, err := h.locationService.FindNearby(c.Request.Context(), auth.UserID(c), radius, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse(result))
}

// GET /api/location/history
func (h *Handler) GetHistory(c *gin.Context) {
	days := queryInt(c, "days", location.DefaultHistoryDays)

	history, err := h.locationService.History(c.Request.Context(), auth.UserID(c), days)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse(history))
}

// POST /api/location/stop
func (h *Handler) StopSharing(c *gin.Context) {
	if err := h.locationService.StopSharing(c.Request.Context(), auth.UserID(c)); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse(gin.H{
		"message":   "Location sharing stopped",
		"isSharing": false,
	}))
}

// GET /api/location/settings
func (h *Handler) GetSettings(c *gin.Context) {
	settings, err := h.locationService.GetSettings(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse(settings))
}

// PUT /api/location/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse("Invalid request", "INVALID_REQUEST"))
		return
	}

	result, err := h.locationService.UpdateSettings(c.Request.Context(), auth.UserID(c), location.SettingsUpdate{
		IsSharing: req.IsSharing,
		Privacy:   req.Privacy,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse(result))
}

// GET /api/presence/online
func (h *Handler) GetOnlineUsers(c *gin.Context) {
	users := h.registry.List()
	c.JSON(http.StatusOK, SuccessResponse(gin.H{
		"count": len(users),
		"users": users,
	}))
}

// GET /api/health
func (h *Handler) Health(c *gin.Context) {
	status := http.StatusOK
	checks := make(map[string]string, len(h.pingers))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	for name, p := range h.pingers {
		if err := p.Ping(ctx); err != nil {
			h.logger.Warn("Health check failed", "component", name, "error", err)
			checks[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status": state,
		"checks": checks,
		"online": h.registry.Count(),
		"time":   c.GetTime("request_time"),
	})
}

func (h *Handler) respondError(c *gin.Context, err error) {
	appErr := apperrors.As(err)
	if appErr.Kind == apperrors.KindInternal {
		h.logger.Error("Request failed", "path", c.Request.URL.Path, "user_id", auth.UserID(c), "error", err)
	}
	c.JSON(appErr.HTTPStatus(), AppErrorResponse(appErr))
}

func queryFloat(c *gin.Context, key string, fallback float64) float64 {
	if v, err := strconv.ParseFloat(c.Query(key), 64); err == nil {
		return v
	}
	return fallback
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil {
		return v
	}
	return fallback
}
