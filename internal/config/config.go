package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Store      StoreConfig
	Redis      RedisConfig
	Postgres   PostgresConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Location   LocationConfig
	Realtime   RealtimeConfig
	Monitoring MonitoringConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	Host        string
	CORSOrigins []string
}

type StoreConfig struct {
	Backend      string // memory, redis or postgres
	UserCacheTTL time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Relay    bool
}

type PostgresConfig struct {
	URL string
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type RateLimitConfig struct {
	LocationPerMin    int // 0 disables location write throttling
	RequestsPerMinute int
}

type LocationConfig struct {
	FreshnessWindow     time.Duration
	MinRadiusMeters     float64
	MaxRadiusMeters     float64
	DefaultRadiusMeters float64
	MinLimit            int
	MaxLimit            int
	DefaultLimit        int
	IndexMinPrecision   uint
	IndexMaxPrecision   uint
	JanitorInterval     time.Duration
}

type RealtimeConfig struct {
	SendBuffer  int
	DefaultRoom string
}

type MonitoringConfig struct {
	EnableMetrics bool
	LogLevel      string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "3000"),
			Env:         getEnv("ENV", "development"),
			Host:        getEnv("HOST", "0.0.0.0"),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"http://localhost:19006"}),
		},
		Store: StoreConfig{
			Backend:      getEnv("STORE_BACKEND", "memory"),
			UserCacheTTL: getEnvAsDuration("USER_CACHE_TTL", time.Minute),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Relay:    getEnvAsBool("REDIS_RELAY", false),
		},
		Postgres: PostgresConfig{
			URL: getEnv("DATABASE_URL", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("JWT_SECRET", ""),
			TokenTTL:  getEnvAsDuration("JWT_TTL", 7*24*time.Hour),
		},
		RateLimit: RateLimitConfig{
			LocationPerMin:    getEnvAsInt("RATE_LIMIT_LOCATION_PER_MIN", 0),
			RequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MIN", 600),
		},
		Location: LocationConfig{
			FreshnessWindow:     getEnvAsDuration("LOCATION_FRESHNESS", 5*time.Minute),
			MinRadiusMeters:     getEnvAsFloat("NEARBY_MIN_RADIUS", 100),
			MaxRadiusMeters:     getEnvAsFloat("NEARBY_MAX_RADIUS", 10000),
			DefaultRadiusMeters: getEnvAsFloat("NEARBY_DEFAULT_RADIUS", 1000),
			MinLimit:            getEnvAsInt("NEARBY_MIN_LIMIT", 1),
			MaxLimit:            getEnvAsInt("NEARBY_MAX_LIMIT", 100),
			DefaultLimit:        getEnvAsInt("NEARBY_DEFAULT_LIMIT", 50),
			IndexMinPrecision:   uint(getEnvAsInt("GEO_INDEX_MIN_PRECISION", 3)),
			IndexMaxPrecision:   uint(getEnvAsInt("GEO_INDEX_MAX_PRECISION", 6)),
			JanitorInterval:     getEnvAsDuration("JANITOR_INTERVAL", time.Minute),
		},
		Realtime: RealtimeConfig{
			SendBuffer:  getEnvAsInt("WS_SEND_BUFFER", 256),
			DefaultRoom: getEnv("WS_DEFAULT_ROOM", "general"),
		},
		Monitoring: MonitoringConfig{
			EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
			LogLevel:      getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET must be set")
	}

	loc := c.Location
	if loc.MinRadiusMeters <= 0 || loc.MinRadiusMeters > loc.MaxRadiusMeters {
		return fmt.Errorf("invalid nearby radius bounds [%v, %v]", loc.MinRadiusMeters, loc.MaxRadiusMeters)
	}
	if loc.MinLimit < 1 || loc.MinLimit > loc.MaxLimit {
		return fmt.Errorf("invalid nearby limit bounds [%d, %d]", loc.MinLimit, loc.MaxLimit)
	}
	if loc.FreshnessWindow <= 0 {
		return errors.New("LOCATION_FRESHNESS must be positive")
	}

	switch c.Store.Backend {
	case "memory", "redis":
	case "postgres":
		if c.Postgres.URL == "" {
			return errors.New("DATABASE_URL must be set for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Store.Backend)
	}

	if c.Realtime.DefaultRoom == "" {
		return errors.New("WS_DEFAULT_ROOM must not be empty")
	}

	return nil
}

// NeedsRedis reports whether any component requires a redis connection.
func (c *Config) NeedsRedis() bool {
	return c.Store.Backend == "redis" || c.Redis.Relay
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
