package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/askwhyharsh/caddate/internal/api"
	"github.com/askwhyharsh/caddate/internal/tracker"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/askwhyharsh/caddate/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRESTClient_UpdateAndNearby(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	acc := 8.0

	require.NoError(t, s.rest(t, "a").UpdateLocation(ctx, tracker.Fix{
		Latitude: reference.Lat, Longitude: reference.Lng, Accuracy: &acc, Timestamp: time.Now(),
	}))
	require.NoError(t, s.rest(t, "b").UpdateLocation(ctx, tracker.Fix{
		Latitude: reference.Lat + 0.001, Longitude: reference.Lng,
	}))

	result, err := s.rest(t, "b").Nearby(ctx, 1000, 10)
	require.NoError(t, err)
	require.Len(t, result.Users, 1)
	assert.Equal(t, "a", result.Users[0].UserID)
	assert.Equal(t, "Ada", result.Users[0].FirstName)
	assert.InDelta(t, 111, result.Users[0].DistanceMeters, 2)
	assert.Equal(t, 1000.0, result.Radius)
	assert.Equal(t, 10, result.Limit)
}

func TestRESTClient_ValidationError(t *testing.T) {
	s := newTestServer(t)

	err := s.rest(t, "a").UpdateLocation(context.Background(), tracker.Fix{Latitude: 91, Longitude: 0})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "latitude", apperrors.As(err).Field)
}

func TestRESTClient_Unauthorized(t *testing.T) {
	s := newTestServer(t)
	c := NewRESTClient(s.server.URL, "forged", logger.NewNop())

	_, err := c.Nearby(context.Background(), 0, 0)
	assert.True(t, apperrors.IsAuth(err))
}

func TestRESTClient_SharingSettings(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	c := s.rest(t, "a")

	require.NoError(t, c.UpdateLocation(ctx, tracker.Fix{Latitude: reference.Lat, Longitude: reference.Lng}))
	require.NoError(t, c.StopSharing(ctx))

	settings, err := c.Settings(ctx)
	require.NoError(t, err)
	assert.False(t, settings.IsSharing)
	assert.NotNil(t, settings.LastUpdated)

	result, err := c.SetSharing(ctx, true)
	require.NoError(t, err)
	assert.True(t, result.IsSharing)
}

func TestRESTClient_StatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		name   string
		status int
		check  func(error) bool
	}{
		{"not found", http.StatusNotFound, apperrors.IsNotFound},
		{"rate limited", http.StatusTooManyRequests, apperrors.IsRateLimit},
		{"unavailable", http.StatusServiceUnavailable, apperrors.IsTransient},
		{"server error", http.StatusInternalServerError, apperrors.IsTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.Any("/*path", func(c *gin.Context) {
				c.JSON(tt.status, api.ErrorResponse("nope", "X"))
			})
			server := httptest.NewServer(r)
			defer server.Close()

			err := NewRESTClient(server.URL, "t", logger.NewNop()).StopSharing(context.Background())
			require.Error(t, err)
			assert.True(t, tt.check(err))
		})
	}
}

func TestRESTClient_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	err := NewRESTClient(url, "t", logger.NewNop()).StopSharing(context.Background())
	assert.True(t, apperrors.IsTransient(err))
}
