package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/askwhyharsh/caddate/internal/api"
	"github.com/askwhyharsh/caddate/internal/auth"
	"github.com/askwhyharsh/caddate/internal/config"
	"github.com/askwhyharsh/caddate/internal/location"
	"github.com/askwhyharsh/caddate/internal/metrics"
	"github.com/askwhyharsh/caddate/internal/presence"
	"github.com/askwhyharsh/caddate/internal/ratelimit"
	"github.com/askwhyharsh/caddate/internal/storage"
	"github.com/askwhyharsh/caddate/internal/user"
	"github.com/askwhyharsh/caddate/internal/websocket"
	"github.com/askwhyharsh/caddate/pkg/logger"
	"github.com/askwhyharsh/caddate/pkg/validator"
)

func main() {
	demoUsers := flag.Int("demo-users", 0, "seed N demo users into the memory user directory and log their tokens")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	appLogger := logger.NewLogger(cfg.Server.Env, cfg.Monitoring.LogLevel)
	appLogger.Info("Starting caddate server...", "store", cfg.Store.Backend)

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)
	pingers := map[string]api.Pinger{}

	// Initialize Redis
	var redisClient storage.RedisClient
	if cfg.NeedsRedis() {
		redisClient, err = storage.NewRedisClient(cfg)
		if err != nil {
			appLogger.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		pingers["redis"] = redisClient
		appLogger.Info("Connected to Redis", "address", cfg.RedisAddr())
	}

	// Initialize stores
	var (
		store location.Store
		users user.Directory
	)
	switch cfg.Store.Backend {
	case "postgres":
		pool, err := storage.NewPostgresPool(ctx, cfg.Postgres.URL, appLogger)
		if err != nil {
			appLogger.Error("Failed to connect to Postgres", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		pingers["postgres"] = pool
		store = location.NewPostgresStore(pool)
		users = user.NewPostgresDirectory(pool)
	case "redis":
		store = location.NewRedisStore(redisClient)
		users = seedDirectory(*demoUsers)
	default:
		store = location.NewMemoryStore(cfg.Location.IndexMinPrecision, cfg.Location.IndexMaxPrecision)
		users = seedDirectory(*demoUsers)
	}
	users = user.NewCachedDirectory(users, cfg.Store.UserCacheTTL)

	// Initialize services
	val := validator.NewValidator()
	tokens := auth.NewTokenService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	locationService := location.NewService(store, users, val, m, appLogger, locationOptions(cfg.Location))
	janitor := location.NewJanitor(store, cfg.Location.FreshnessWindow, cfg.Location.JanitorInterval, appLogger)

	logDemoTokens(tokens, *demoUsers, appLogger)

	rateLimitMiddleware := ratelimit.NewMiddleware(ratelimit.FromConfig(cfg.RateLimit), redisClient, appLogger)

	// Initialize WebSocket hub
	presenceRegistry := presence.NewRegistry()
	g, gctx := errgroup.WithContext(ctx)
	hub := websocket.NewHub(gctx, presenceRegistry, cfg.Realtime.DefaultRoom, m, appLogger)

	var relay *websocket.RedisRelay
	if cfg.Redis.Relay {
		relay = websocket.NewRedisRelay(redisClient, hub, appLogger)
		hub.SetRelay(relay)
		appLogger.Info("Cross-instance relay enabled", "instance", relay.InstanceID())
	}

	wsHandler := websocket.NewHandler(hub, tokens, locationService, val, rateLimitMiddleware, m, appLogger, cfg.Realtime.SendBuffer)
	apiHandler := api.NewHandler(locationService, presenceRegistry, val, appLogger, pingers)

	// Setup Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(api.RequestLogger(appLogger))

	routeOpts := api.RouteOptions{CORSOrigins: cfg.Server.CORSOrigins, Logger: appLogger}
	if cfg.Monitoring.EnableMetrics {
		routeOpts.Metrics = m.Handler()
	}
	api.SetupRoutes(router, apiHandler, wsHandler, rateLimitMiddleware, auth.Authenticate(tokens, users), routeOpts)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.ServerAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g.Go(func() error {
		appLogger.Info("Server starting", "address", srv.Addr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		return janitor.Start(gctx)
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}

	// Wait for interrupt signal or a failing component
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("Server forced to shutdown", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Server stopped")
}

func locationOptions(cfg config.LocationConfig) location.Options {
	return location.Options{
		FreshnessWindow:     cfg.FreshnessWindow,
		MinRadiusMeters:     cfg.MinRadiusMeters,
		MaxRadiusMeters:     cfg.MaxRadiusMeters,
		DefaultRadiusMeters: cfg.DefaultRadiusMeters,
		MinLimit:            cfg.MinLimit,
		MaxLimit:            cfg.MaxLimit,
		DefaultLimit:        cfg.DefaultLimit,
	}
}

func demoUserID(i int) string {
	return fmt.Sprintf("demo-%d", i)
}

func seedDirectory(n int) *user.MemoryDirectory {
	dir := user.NewMemoryDirectory()
	for i := 1; i <= n; i++ {
		dir.Put(user.User{
			ID:        demoUserID(i),
			Email:     demoUserID(i) + "@example.com",
			FirstName: "Demo",
			LastName:  fmt.Sprint(i),
			IsActive:  true,
		})
	}
	return dir
}

func logDemoTokens(tokens *auth.TokenService, n int, log logger.Logger) {
	for i := 1; i <= n; i++ {
		token, err := tokens.Issue(demoUserID(i), demoUserID(i)+"@example.com")
		if err != nil {
			log.Error("Failed to issue demo token", "user", demoUserID(i), "error", err)
			continue
		}
		log.Info("Demo user", "userId", demoUserID(i), "token", token)
	}
}
