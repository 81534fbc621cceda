package websocket

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/askwhyharsh/caddate/internal/location"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/pkg/errors"
)

// Client to server.
const (
	MessageTypeLocationUpdate = "location_update"
	MessageTypeRequestNearby  = "request_nearby_users"
	MessageTypeJoinRoom       = "join_room"
	MessageTypeLeaveRoom      = "leave_room"
	MessageTypeUpdateStatus   = "update_user_status"
	MessageTypePing           = "ping"
)

// Server to client.
const (
	MessageTypeConnectionStatus   = "connection_status"
	MessageTypeOnlineUsers        = "online_users_list"
	MessageTypeUserJoined         = "user_joined"
	MessageTypeUserLeft           = "user_left"
	MessageTypeUserLocationUpdate = "user_location_update"
	MessageTypeNearbyUsers        = "nearby_users_list"
	MessageTypeUserStatusUpdated  = "user_status_updated"
	MessageTypePong               = "pong"
	MessageTypeError              = "error"
	MessageTypeConnectError       = "connect_error"
)

// Message is the outbound frame. Data holds the type-specific payload.
type Message struct {
	Type      string `json:"type"`
	Data      any    `json:"data,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// IncomingMessage is the raw inbound frame before decoding.
type IncomingMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func newMessage(msgType string, data any) *Message {
	return &Message{Type: msgType, Data: data, Timestamp: time.Now().UnixMilli()}
}

type ConnectionStatus struct {
	Connected    bool   `json:"connected"`
	ConnectionID string `json:"connectionId,omitempty"`
	UserID       string `json:"userId,omitempty"`
}

// PresenceNotice announces a join or leave.
type PresenceNotice struct {
	UserID       string `json:"userId"`
	UserEmail    string `json:"userEmail"`
	ConnectionID string `json:"connectionId"`
}

type LocationBroadcast struct {
	UserID    string               `json:"userId"`
	Location  location.Coordinates `json:"location"`
	Timestamp time.Time            `json:"timestamp"`
}

type StatusBroadcast struct {
	UserID    string    `json:"userId"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

func NewErrorMessage(err error) *Message {
	appErr := apperrors.As(err)
	return newMessage(MessageTypeError, ErrorPayload{Message: appErr.Error(), Code: appErr.Code()})
}

// Inbound is the closed set of messages a client may send. Each variant
// is handled by Handler.dispatch.
type Inbound interface {
	inboundType() string
}

type LocationUpdate struct {
	Location  location.Coordinates `json:"location"`
	Timestamp *time.Time           `json:"timestamp,omitempty"`
}

type RequestNearby struct {
	Radius *float64 `json:"radius,omitempty"`
	Limit  *int     `json:"limit,omitempty"`
}

type JoinRoom struct {
	Room string `json:"room"`
}

type LeaveRoom struct {
	Room string `json:"room"`
}

type UpdateStatus struct {
	Status string `json:"status"`
}

type Ping struct{}

func (LocationUpdate) inboundType() string { return MessageTypeLocationUpdate }
func (RequestNearby) inboundType() string  { return MessageTypeRequestNearby }
func (JoinRoom) inboundType() string       { return MessageTypeJoinRoom }
func (LeaveRoom) inboundType() string      { return MessageTypeLeaveRoom }
func (UpdateStatus) inboundType() string   { return MessageTypeUpdateStatus }
func (Ping) inboundType() string           { return MessageTypePing }

// DecodeInbound parses a raw frame into one of the Inbound variants.
func DecodeInbound(raw []byte) (Inbound, error) {
	var in IncomingMessage
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil, apperrors.Validation("message", errors.Wrap(err, "invalid message format"))
	}

	var msg Inbound
	switch in.Type {
	case MessageTypeLocationUpdate:
		msg = &LocationUpdate{}
	case MessageTypeRequestNearby:
		msg = &RequestNearby{}
	case MessageTypeJoinRoom:
		msg = &JoinRoom{}
	case MessageTypeLeaveRoom:
		msg = &LeaveRoom{}
	case MessageTypeUpdateStatus:
		msg = &UpdateStatus{}
	case MessageTypePing:
		return &Ping{}, nil
	default:
		return nil, apperrors.Validation("type", apperrors.ErrInvalidMessageType)
	}

	if len(in.Data) > 0 && string(in.Data) != "null" {
		if err := json.Unmarshal(in.Data, msg); err != nil {
			return nil, apperrors.Validation(in.Type, errors.Wrap(err, "invalid payload"))
		}
	}

	switch m := msg.(type) {
	case *JoinRoom:
		m.Room = strings.TrimSpace(m.Room)
	case *LeaveRoom:
		m.Room = strings.TrimSpace(m.Room)
	}
	return msg, nil
}
