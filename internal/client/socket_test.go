package client

import (
	"context"
	"testing"
	"time"

	"github.com/askwhyharsh/caddate/internal/geo"
	"github.com/askwhyharsh/caddate/internal/tracker"
	realtime "github.com/askwhyharsh/caddate/internal/websocket"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/askwhyharsh/caddate/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameLog struct {
	ch chan Frame
}

func newFrameLog(s *Socket) *frameLog {
	fl := &frameLog{ch: make(chan Frame, 64)}
	s.OnFrame(func(f Frame) {
		select {
		case fl.ch <- f:
		default:
		}
	})
	return fl
}

func (fl *frameLog) await(t *testing.T, msgType string) Frame {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case f := <-fl.ch:
			if f.Type == msgType {
				return f
			}
		case <-deadline:
			t.Fatalf("no %s frame received", msgType)
		}
	}
}

func runSocket(t *testing.T, s *Socket) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestDialSocket_Refused(t *testing.T) {
	s := newTestServer(t)

	_, err := DialSocket(context.Background(), s.wsURL(), "forged", logger.NewNop())
	require.Error(t, err)
	assert.True(t, apperrors.IsAuth(err))
}

func TestSocket_HandshakeRecordsConnection(t *testing.T) {
	s := newTestServer(t)
	sock := s.socket(t, "a")
	assert.NotEmpty(t, sock.ConnectionID())
	assert.Equal(t, "a", sock.UserID())
}

func TestSocket_PingPong(t *testing.T) {
	s := newTestServer(t)
	sock := s.socket(t, "a")
	frames := newFrameLog(sock)
	runSocket(t, sock)

	require.NoError(t, sock.Ping())
	frames.await(t, realtime.MessageTypePong)
}

func TestSocket_LocationBroadcastMergesIntoNearby(t *testing.T) {
	s := newTestServer(t)
	sender := s.socket(t, "a")
	receiver := s.socket(t, "b")

	set := tracker.NewNearbySet("b", 1000, 5*time.Minute)
	self := tracker.Fix{Latitude: reference.Lat, Longitude: reference.Lng}
	receiver.Attach(set, func() (tracker.Fix, bool) { return self, true })
	frames := newFrameLog(receiver)
	runSocket(t, receiver)

	near := geo.Offset(reference, 200, 0)
	require.NoError(t, sender.PublishLocation(context.Background(), tracker.Fix{
		Latitude: near.Lat, Longitude: near.Lng, Timestamp: time.Now(),
	}))

	frames.await(t, realtime.MessageTypeUserLocationUpdate)
	users := set.List()
	require.Len(t, users, 1)
	assert.Equal(t, "a", users[0].UserID)
	assert.InDelta(t, 200, users[0].DistanceMeters, 1)
}

func TestSocket_RequestNearbyReplacesSet(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, s.rest(t, "a").UpdateLocation(ctx, tracker.Fix{Latitude: reference.Lat, Longitude: reference.Lng}))
	require.NoError(t, s.rest(t, "b").UpdateLocation(ctx, tracker.Fix{Latitude: reference.Lat + 0.002, Longitude: reference.Lng}))

	sock := s.socket(t, "b")
	set := tracker.NewNearbySet("b", 1000, 5*time.Minute)
	sock.Attach(set, nil)
	frames := newFrameLog(sock)
	runSocket(t, sock)

	require.NoError(t, sock.RequestNearby(1000, 10))
	frames.await(t, realtime.MessageTypeNearbyUsers)

	users := set.List()
	require.Len(t, users, 1)
	assert.Equal(t, "Ada", users[0].FirstName)
}

func TestSocket_ServerErrorIsSurfaced(t *testing.T) {
	s := newTestServer(t)
	sock := s.socket(t, "a")
	frames := newFrameLog(sock)
	runSocket(t, sock)

	require.NoError(t, sock.LeaveRoom("general"))
	f := frames.await(t, realtime.MessageTypeError)
	assert.Contains(t, string(f.Data), "VALIDATION_ERROR")
}

func TestSocket_RunReturnsOnCancel(t *testing.T) {
	s := newTestServer(t)
	sock, err := DialSocket(context.Background(), s.wsURL(), s.token(t, "a"), logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sock.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestSplitFrames(t *testing.T) {
	frames, err := splitFrames([]byte("{\"type\":\"pong\",\"timestamp\":1}\n{\"type\":\"user_left\",\"data\":{}}\n"))
	require.NoError(t, err)
	require.Len(t, frames, 2)
	assert.Equal(t, "pong", frames[0].Type)
	assert.Equal(t, "user_left", frames[1].Type)

	frames, err = splitFrames([]byte("{\"type\":\"pong\"}\nnot-json"))
	assert.Error(t, err)
	assert.Len(t, frames, 1)
}
