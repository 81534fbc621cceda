package websocket

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/askwhyharsh/caddate/internal/auth"
	"github.com/askwhyharsh/caddate/internal/location"
	"github.com/askwhyharsh/caddate/internal/metrics"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/askwhyharsh/caddate/pkg/logger"
	"github.com/askwhyharsh/caddate/pkg/validator"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// LocationLimiter throttles realtime location pushes per user.
type LocationLimiter interface {
	AllowLocation(ctx context.Context, userID string) (bool, error)
}

type Handler struct {
	hub        *Hub
	tokens     *auth.TokenService
	locations  location.LocationService
	validator  validator.Validator
	limiter    LocationLimiter
	metrics    *metrics.Metrics
	logger     logger.Logger
	sendBuffer int
	upgrader   websocket.Upgrader
}

func NewHandler(hub *Hub, tokens *auth.TokenService, locations location.LocationService, v validator.Validator, limiter LocationLimiter, m *metrics.Metrics, log logger.Logger, sendBuffer int) *Handler {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	return &Handler{
		hub:        hub,
		tokens:     tokens,
		locations:  locations,
		validator:  v,
		limiter:    limiter,
		metrics:    m,
		logger:     log,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleWebSocket upgrades the request, authenticates the handshake token and
// runs the connection until it closes.
func (h *Handler) HandleWebSocket(c *gin.Context) {
	state := &stateMachine{}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", "error", err)
		return
	}
	_ = state.transition(StateAuthenticating)

	claims, err := h.authenticate(c.Request)
	if err != nil {
		h.refuse(conn, err)
		_ = state.transition(StateDisconnected)
		return
	}

	client := NewClient(h.hub, conn, claims.UserID, claims.Email, h, h.sendBuffer, state)
	_ = state.transition(StateConnected)
	if err := h.hub.Register(client); err != nil {
		_ = state.transition(StateDisconnected)
		conn.Close()
		return
	}

	go client.WritePump()
	client.ReadPump()
}

func (h *Handler) authenticate(r *http.Request) (*auth.Claims, error) {
	token, err := auth.TokenFromRequest(r)
	if err != nil {
		return nil, err
	}
	return h.tokens.Verify(token)
}

func (h *Handler) refuse(conn *websocket.Conn, err error) {
	defer conn.Close()
	appErr := apperrors.As(err)
	h.logger.Debug("Refusing websocket connection", "error", err)

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(newMessage(MessageTypeConnectError, ErrorPayload{Message: appErr.Error(), Code: appErr.Code()})); err != nil {
		return
	}
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"),
		time.Now().Add(writeWait))
}

func (h *Handler) dispatch(ctx context.Context, c *Client, msg Inbound) {
	h.metrics.Message(msg.inboundType())

	var err error
	switch m := msg.(type) {
	case *LocationUpdate:
		err = h.handleLocationUpdate(ctx, c, m)
	case *RequestNearby:
		err = h.handleRequestNearby(ctx, c, m)
	case *JoinRoom:
		err = h.handleJoinRoom(c, m)
	case *LeaveRoom:
		err = h.handleLeaveRoom(c, m)
	case *UpdateStatus:
		err = h.handleUpdateStatus(ctx, c, m)
	case *Ping:
		c.Send(newMessage(MessageTypePong, nil))
	default:
		err = apperrors.Validation("type", apperrors.ErrInvalidMessageType)
	}

	if err != nil {
		c.Send(NewErrorMessage(err))
	}
}

func (h *Handler) handleLocationUpdate(ctx context.Context, c *Client, m *LocationUpdate) error {
	if err := h.validator.ValidateCoordinates(m.Location.Latitude, m.Location.Longitude); err != nil {
		return err
	}
	if err := h.validator.ValidateAccuracy(m.Location.Accuracy); err != nil {
		return err
	}

	if h.limiter != nil {
		allowed, err := h.limiter.AllowLocation(ctx, c.userID)
		if err != nil {
			h.logger.Warn("Location rate limit check failed", "user_id", c.userID, "error", err)
		} else if !allowed {
			return apperrors.RateLimited(apperrors.ErrRateLimitExceeded)
		}
	}

	ts := time.Now().UTC()
	if m.Timestamp != nil && !m.Timestamp.IsZero() {
		ts = m.Timestamp.UTC()
	}
	update := newMessage(MessageTypeUserLocationUpdate, LocationBroadcast{
		UserID:    c.userID,
		Location:  m.Location,
		Timestamp: ts,
	})
	h.hub.Broadcast(ctx, h.hub.RoomsOf(c), update, c.id)
	return nil
}

func (h *Handler) handleRequestNearby(ctx context.Context, c *Client, m *RequestNearby) error {
	limits := h.locations.Limits()
	radius := limits.DefaultRadiusMeters
	if m.Radius != nil {
		radius = *m.Radius
	}
	limit := limits.DefaultLimit
	if m.Limit != nil {
		limit = *m.Limit
	}

	result, err := h.locations.FindNearby(ctx, c.userID, radius, limit)
	if err != nil {
		return err
	}
	c.Send(newMessage(MessageTypeNearbyUsers, result))
	return nil
}

func (h *Handler) handleJoinRoom(c *Client, m *JoinRoom) error {
	if err := h.validator.ValidateRoom(m.Room); err != nil {
		return err
	}
	h.hub.Join(c, m.Room)
	h.logger.Debug("Joined room", "user_id", c.userID, "room", m.Room)
	return nil
}

func (h *Handler) handleLeaveRoom(c *Client, m *LeaveRoom) error {
	if err := h.validator.ValidateRoom(m.Room); err != nil {
		return err
	}
	return h.hub.Leave(c, m.Room)
}

func (h *Handler) handleUpdateStatus(ctx context.Context, c *Client, m *UpdateStatus) error {
	status := strings.TrimSpace(m.Status)
	if status == "" || len(status) > 64 {
		return apperrors.Validation("status", apperrors.ErrInvalidStatus)
	}
	update := newMessage(MessageTypeUserStatusUpdated, StatusBroadcast{
		UserID:    c.userID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	})
	h.hub.Broadcast(ctx, []string{h.hub.DefaultRoom()}, update, c.id)
	return nil
}
