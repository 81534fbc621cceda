package ratelimit

import (
	"time"

	"github.com/askwhyharsh/caddate/internal/config"
)

type Config struct {
	RequestsPerMinute     int
	LocationUpdatesPerMin int // 0 disables location throttling
	Window                time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		RequestsPerMinute:     600,
		LocationUpdatesPerMin: 0,
		Window:                time.Minute,
	}
}

func FromConfig(cfg config.RateLimitConfig) *Config {
	c := DefaultConfig()
	c.RequestsPerMinute = cfg.RequestsPerMinute
	c.LocationUpdatesPerMin = cfg.LocationPerMin
	return c
}
