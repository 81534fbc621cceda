package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/askwhyharsh/caddate/internal/client"
	"github.com/askwhyharsh/caddate/internal/geo"
	"github.com/askwhyharsh/caddate/internal/tracker"
	"github.com/askwhyharsh/caddate/pkg/logger"
)

func main() {
	_ = godotenv.Load()

	server := flag.String("server", envOr("TRACKER_SERVER", "http://localhost:3000"), "location server base URL")
	token := flag.String("token", os.Getenv("TRACKER_TOKEN"), "bearer token")
	lat := flag.Float64("lat", 40.9884, "start latitude")
	lng := flag.Float64("lng", 29.0255, "start longitude")
	step := flag.Float64("step", 15, "random walk step in meters")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random walk seed")
	interval := flag.Duration("interval", 2*time.Second, "sampling interval")
	minMove := flag.Float64("min-move", 0, "skip publishing moves shorter than this many meters")
	radius := flag.Float64("radius", 1000, "nearby radius in meters")
	refresh := flag.Duration("refresh", 10*time.Second, "nearby list refresh interval")
	flag.Parse()

	appLogger := logger.NewLogger(envOr("ENV", "development"), envOr("LOG_LEVEL", "info"))
	if *token == "" {
		log.Fatal("a token is required (-token or TRACKER_TOKEN)")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	socket, err := client.DialSocket(ctx, wsURL(*server), *token, appLogger)
	if err != nil {
		appLogger.Error("Failed to open realtime channel", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Connected", "userId", socket.UserID(), "connectionId", socket.ConnectionID())

	rest := client.NewRESTClient(*server, *token, appLogger)
	locator := client.NewSimulatedLocator(geo.Point{Lat: *lat, Lng: *lng}, *step, *seed)

	opts := tracker.DefaultOptions()
	opts.Interval = *interval
	opts.MinMoveMeters = *minMove
	loop := tracker.NewLoop(locator, rest, socket, appLogger, opts)

	nearby := tracker.NewNearbySet(socket.UserID(), *radius, 5*time.Minute)
	socket.Attach(nearby, loop.LastFix)

	if fix, err := loop.CurrentFix(ctx); err == nil {
		appLogger.Info("Initial position", "latitude", fix.Latitude, "longitude", fix.Longitude)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return socket.Run(gctx)
	})
	g.Go(func() error {
		if err := loop.Start(gctx); err != nil {
			return err
		}
		<-gctx.Done()
		loop.Stop()
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(*refresh)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := socket.RequestNearby(*radius, 0); err != nil {
					appLogger.Warn("Nearby request failed", "error", err)
				}
				users := nearby.List()
				appLogger.Info("Nearby users", "count", len(users), "state", loop.State().String())
				for _, u := range users {
					appLogger.Debug("Nearby", "userId", u.UserID, "distance", u.DistanceMeters)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Tracker stopped with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Tracker stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func wsURL(server string) string {
	switch {
	case strings.HasPrefix(server, "https://"):
		return "wss://" + strings.TrimPrefix(server, "https://") + "/ws"
	case strings.HasPrefix(server, "http://"):
		return "ws://" + strings.TrimPrefix(server, "http://") + "/ws"
	}
	return server
}
