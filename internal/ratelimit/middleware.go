package ratelimit

import (
	"context"
	"net/http"

	"github.com/askwhyharsh/caddate/internal/auth"
	"github.com/askwhyharsh/caddate/internal/storage"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/askwhyharsh/caddate/pkg/logger"
	"github.com/gin-gonic/gin"
)

type Middleware struct {
	requests  Limiter
	locations Limiter
	logger    logger.Logger
}

// NewMiddleware builds the request limiter and, when enabled, the location
// limiter. A nil redis client selects process-local windows.
func NewMiddleware(cfg *Config, redisClient storage.RedisClient, log logger.Logger) *Middleware {
	m := &Middleware{logger: log}
	build := func(prefix string, max int) Limiter {
		if redisClient != nil {
			return NewRedisLimiter(redisClient, prefix, max, cfg.Window)
		}
		return NewMemoryLimiter(max, cfg.Window)
	}
	if cfg.RequestsPerMinute > 0 {
		m.requests = build("ip", cfg.RequestsPerMinute)
	}
	if cfg.LocationUpdatesPerMin > 0 {
		m.locations = build("location", cfg.LocationUpdatesPerMin)
	}
	return m
}

// AllowLocation reports whether userID may write another location. Always
// true when location throttling is disabled.
func (m *Middleware) AllowLocation(ctx context.Context, userID string) (bool, error) {
	if m.locations == nil {
		return true, nil
	}
	return m.locations.Allow(ctx, userID)
}

// IPRateLimit middleware for general IP-based rate limiting
func (m *Middleware) IPRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.requests == nil {
			c.Next()
			return
		}
		m.enforce(c, m.requests, c.ClientIP())
	}
}

// LocationRateLimit throttles location writes per authenticated user.
func (m *Middleware) LocationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.locations == nil {
			c.Next()
			return
		}
		m.enforce(c, m.locations, auth.UserID(c))
	}
}

func (m *Middleware) enforce(c *gin.Context, limiter Limiter, key string) {
	allowed, err := limiter.Allow(c.Request.Context(), key)
	if err != nil {
		// Fail open.
		m.logger.Warn("Rate limit check failed", "key", key, "error", err)
		c.Next()
		return
	}

	if !allowed {
		appErr := apperrors.RateLimited(apperrors.ErrRateLimitExceeded)
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"success": false,
			"error": gin.H{
				"message": appErr.Message,
				"code":    appErr.Code(),
			},
		})
		return
	}

	c.Next()
}
