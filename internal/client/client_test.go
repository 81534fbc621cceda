package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/askwhyharsh/caddate/internal/api"
	"github.com/askwhyharsh/caddate/internal/auth"
	"github.com/askwhyharsh/caddate/internal/geo"
	"github.com/askwhyharsh/caddate/internal/location"
	"github.com/askwhyharsh/caddate/internal/presence"
	"github.com/askwhyharsh/caddate/internal/ratelimit"
	"github.com/askwhyharsh/caddate/internal/user"
	realtime "github.com/askwhyharsh/caddate/internal/websocket"
	"github.com/askwhyharsh/caddate/pkg/logger"
	"github.com/askwhyharsh/caddate/pkg/validator"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var reference = geo.Point{Lat: 40.9884, Lng: 29.0255}

type testServer struct {
	server  *httptest.Server
	tokens  *auth.TokenService
	service *location.Service
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	users := user.NewMemoryDirectory(
		user.User{ID: "a", Email: "a@example.com", FirstName: "Ada", IsActive: true},
		user.User{ID: "b", Email: "b@example.com", FirstName: "Bora", IsActive: true},
	)
	store := location.NewMemoryStore(geo.DefaultMinPrecision, geo.DefaultMaxPrecision)
	v := validator.NewValidator()
	service := location.NewService(store, users, v, nil, logger.NewNop(), location.DefaultOptions())

	registry := presence.NewRegistry()
	hub := realtime.NewHub(ctx, registry, "general", nil, logger.NewNop())
	go hub.Run()

	tokens := auth.NewTokenService("secret", time.Hour)
	rl := ratelimit.NewMiddleware(ratelimit.DefaultConfig(), nil, logger.NewNop())
	wsHandler := realtime.NewHandler(hub, tokens, service, v, rl, nil, logger.NewNop(), 64)
	handler := api.NewHandler(service, registry, v, logger.NewNop(), nil)

	r := gin.New()
	api.SetupRoutes(r, handler, wsHandler, rl, auth.Authenticate(tokens, users), api.RouteOptions{
		CORSOrigins: []string{"*"},
		Logger:      logger.NewNop(),
	})

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return &testServer{server: server, tokens: tokens, service: service}
}

func (s *testServer) token(t *testing.T, userID string) string {
	t.Helper()
	token, err := s.tokens.Issue(userID, userID+"@example.com")
	require.NoError(t, err)
	return token
}

func (s *testServer) rest(t *testing.T, userID string) *RESTClient {
	return NewRESTClient(s.server.URL, s.token(t, userID), logger.NewNop())
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.server.URL, "http") + "/ws"
}

func (s *testServer) socket(t *testing.T, userID string) *Socket {
	t.Helper()
	sock, err := DialSocket(context.Background(), s.wsURL(), s.token(t, userID), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { sock.Close() })
	return sock
}
