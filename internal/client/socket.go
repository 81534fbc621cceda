package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/askwhyharsh/caddate/internal/location"
	"github.com/askwhyharsh/caddate/internal/tracker"
	realtime "github.com/askwhyharsh/caddate/internal/websocket"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/askwhyharsh/caddate/pkg/logger"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
)

const (
	writeWait     = 10 * time.Second
	handshakeWait = 10 * time.Second
)

var _ tracker.Publisher = (*Socket)(nil)

// Frame is one server message as received.
type Frame struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

type outbound struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Socket is the realtime client. Incoming nearby lists and location
// broadcasts are applied to the attached NearbySet.
type Socket struct {
	conn   *websocket.Conn
	logger logger.Logger

	nearby  *tracker.NearbySet
	selfFix func() (tracker.Fix, bool)
	onFrame func(Frame)

	writeMu      sync.Mutex
	mu           sync.RWMutex
	connectionID string
	userID       string
}

// DialSocket opens the realtime channel, authenticating with token in the
// Authorization header. A refused handshake returns the server's error.
func DialSocket(ctx context.Context, wsURL, token string, log logger.Logger) (*Socket, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: handshakeWait,
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, _, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return nil, apperrors.Transient(errors.Wrap(err, "dial realtime channel"), "realtime channel unreachable")
	}

	s := &Socket{conn: conn, logger: log}
	if err := s.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// handshake reads the first frame: connection_status on success,
// connect_error when the server refuses the token.
func (s *Socket) handshake() error {
	s.conn.SetReadDeadline(time.Now().Add(handshakeWait))
	defer s.conn.SetReadDeadline(time.Time{})

	_, raw, err := s.conn.ReadMessage()
	if err != nil {
		return apperrors.Transient(errors.Wrap(err, "read handshake"), "realtime handshake failed")
	}
	frames, err := splitFrames(raw)
	if err != nil || len(frames) == 0 {
		return apperrors.Transient(errors.Wrap(err, "decode handshake"), "realtime handshake failed")
	}

	first := frames[0]
	switch first.Type {
	case realtime.MessageTypeConnectError:
		var payload realtime.ErrorPayload
		_ = json.Unmarshal(first.Data, &payload)
		return apperrors.Unauthorized(errors.New(payload.Message))
	case realtime.MessageTypeConnectionStatus:
		var status realtime.ConnectionStatus
		if err := json.Unmarshal(first.Data, &status); err == nil {
			s.mu.Lock()
			s.connectionID = status.ConnectionID
			s.userID = status.UserID
			s.mu.Unlock()
		}
	}
	for _, f := range frames[1:] {
		s.handle(f)
	}
	return nil
}

// Attach routes nearby updates into set, using selfFix as the origin for
// distance recomputation.
func (s *Socket) Attach(set *tracker.NearbySet, selfFix func() (tracker.Fix, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nearby = set
	s.selfFix = selfFix
}

// OnFrame registers a callback for every received frame.
func (s *Socket) OnFrame(fn func(Frame)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFrame = fn
}

func (s *Socket) ConnectionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectionID
}

// UserID is the identity the server authenticated this channel as.
func (s *Socket) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

func (s *Socket) PublishLocation(_ context.Context, fix tracker.Fix) error {
	ts := fix.Timestamp
	return s.send(realtime.MessageTypeLocationUpdate, realtime.LocationUpdate{
		Location: location.Coordinates{
			Latitude:  fix.Latitude,
			Longitude: fix.Longitude,
			Accuracy:  fix.Accuracy,
		},
		Timestamp: &ts,
	})
}

func (s *Socket) RequestNearby(radius float64, limit int) error {
	req := realtime.RequestNearby{}
	if radius > 0 {
		req.Radius = &radius
	}
	if limit > 0 {
		req.Limit = &limit
	}
	return s.send(realtime.MessageTypeRequestNearby, req)
}

func (s *Socket) JoinRoom(room string) error {
	return s.send(realtime.MessageTypeJoinRoom, realtime.JoinRoom{Room: room})
}

func (s *Socket) LeaveRoom(room string) error {
	return s.send(realtime.MessageTypeLeaveRoom, realtime.LeaveRoom{Room: room})
}

func (s *Socket) UpdateStatus(status string) error {
	return s.send(realtime.MessageTypeUpdateStatus, realtime.UpdateStatus{Status: status})
}

func (s *Socket) Ping() error {
	return s.send(realtime.MessageTypePing, nil)
}

func (s *Socket) send(msgType string, data any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.conn.WriteJSON(outbound{Type: msgType, Data: data}); err != nil {
		return apperrors.Transient(errors.Wrapf(err, "send %s", msgType), "realtime channel write failed")
	}
	return nil
}

// Run reads frames until ctx is cancelled or the server closes the channel.
func (s *Socket) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return apperrors.Transient(errors.Wrap(err, "read realtime channel"), "realtime channel closed")
		}

		frames, err := splitFrames(raw)
		if err != nil {
			s.logger.Warn("Dropping malformed frame", "error", err)
		}
		for _, f := range frames {
			s.handle(f)
		}
	}
}

func (s *Socket) Close() error {
	s.writeMu.Lock()
	s.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	s.writeMu.Unlock()
	return s.conn.Close()
}

func (s *Socket) handle(f Frame) {
	s.mu.RLock()
	set, selfFix, onFrame := s.nearby, s.selfFix, s.onFrame
	s.mu.RUnlock()

	switch f.Type {
	case realtime.MessageTypeNearbyUsers:
		if set == nil {
			break
		}
		var result location.NearbyResult
		if err := json.Unmarshal(f.Data, &result); err != nil {
			s.logger.Warn("Invalid nearby list", "error", err)
			break
		}
		set.Replace(&result)
	case realtime.MessageTypeUserLocationUpdate:
		if set == nil || selfFix == nil {
			break
		}
		self, ok := selfFix()
		if !ok {
			break
		}
		var update realtime.LocationBroadcast
		if err := json.Unmarshal(f.Data, &update); err != nil {
			s.logger.Warn("Invalid location broadcast", "error", err)
			break
		}
		set.Merge(self, update.UserID, update.Location, update.Timestamp)
	case realtime.MessageTypeError:
		var payload realtime.ErrorPayload
		_ = json.Unmarshal(f.Data, &payload)
		s.logger.Warn("Realtime error", "code", payload.Code, "message", payload.Message)
	}

	if onFrame != nil {
		onFrame(f)
	}
}

// splitFrames decodes a websocket message that may carry several
// newline-separated JSON frames.
func splitFrames(raw []byte) ([]Frame, error) {
	var frames []Frame
	var firstErr error
	for _, line := range bytes.Split(raw, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var f Frame
		if err := json.Unmarshal(line, &f); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		frames = append(frames, f)
	}
	return frames, firstErr
}
