package websocket

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Dispatcher handles decoded inbound messages for a connected client.
type Dispatcher interface {
	dispatch(ctx context.Context, c *Client, msg Inbound)
}

type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan *Message
	id       string
	userID   string
	email    string
	joinedAt time.Time
	rooms    map[string]struct{} // guarded by hub.mu
	handler  Dispatcher
	state    *stateMachine
	evicted  atomic.Bool
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, email string, handler Dispatcher, sendBuffer int, state *stateMachine) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	if state == nil {
		state = &stateMachine{}
	}
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan *Message, sendBuffer),
		id:       uuid.NewString(),
		userID:   userID,
		email:    email,
		joinedAt: time.Now().UTC(),
		rooms:    make(map[string]struct{}),
		handler:  handler,
		state:    state,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (c *Client) ID() string       { return c.id }
func (c *Client) UserID() string   { return c.userID }
func (c *Client) State() ConnState { return c.state.Current() }

// Send queues msg without blocking. A full buffer evicts the client.
func (c *Client) Send(msg *Message) bool {
	select {
	case <-c.ctx.Done():
		return false
	default:
	}

	select {
	case c.send <- msg:
		return true
	default:
		c.evict()
		return false
	}
}

func (c *Client) evict() {
	if c.evicted.CompareAndSwap(false, true) {
		c.hub.metrics.Eviction()
		c.hub.logger.Warn("Evicting slow client", "connection_id", c.id, "user_id", c.userID)
	}
	c.cancel()
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.cancel()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("Websocket read error", "connection_id", c.id, "error", err)
			}
			return
		}

		msg, err := DecodeInbound(data)
		if err != nil {
			c.Send(NewErrorMessage(err))
			continue
		}
		c.handler.dispatch(c.ctx, c, msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.hub.logger.Error("Failed to marshal message", "type", message.Type, "error", err)
				w.Close()
				continue
			}
			w.Write(data)

			// Add queued messages to the current websocket frame
			n := len(c.send)
			for i := 0; i < n; i++ {
				data, err := json.Marshal(<-c.send)
				if err != nil {
					continue
				}
				w.Write([]byte("\n"))
				w.Write(data)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.ctx.Done():
			code, reason := websocket.CloseNormalClosure, ""
			if c.evicted.Load() {
				code, reason = websocket.CloseTryAgainLater, "send buffer full"
			}
			c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
			return
		}
	}
}
