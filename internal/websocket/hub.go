package websocket

import (
	"context"
	"sort"
	"sync"

	"github.com/askwhyharsh/caddate/internal/metrics"
	"github.com/askwhyharsh/caddate/internal/presence"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/askwhyharsh/caddate/pkg/logger"
)

// Relay forwards room broadcasts to other server instances.
type Relay interface {
	Publish(ctx context.Context, rooms []string, msg *Message) error
}

type broadcast struct {
	rooms   []string
	message *Message
	exclude string
}

type registration struct {
	client *Client
	done   chan struct{}
}

type Hub struct {
	clients     map[string]*Client
	rooms       map[string]map[string]*Client
	broadcast   chan *broadcast
	register    chan *registration
	unregister  chan *Client
	registry    *presence.Registry
	relay       Relay
	metrics     *metrics.Metrics
	logger      logger.Logger
	defaultRoom string
	mu          sync.RWMutex
	ctx         context.Context
}

func NewHub(ctx context.Context, registry *presence.Registry, defaultRoom string, m *metrics.Metrics, log logger.Logger) *Hub {
	return &Hub{
		clients:     make(map[string]*Client),
		rooms:       make(map[string]map[string]*Client),
		broadcast:   make(chan *broadcast, 256),
		register:    make(chan *registration),
		unregister:  make(chan *Client),
		registry:    registry,
		metrics:     m,
		logger:      log,
		defaultRoom: defaultRoom,
		ctx:         ctx,
	}
}

// SetRelay enables cross-instance fan-out. Call before Run.
func (h *Hub) SetRelay(r Relay) {
	h.relay = r
}

func (h *Hub) DefaultRoom() string {
	return h.defaultRoom
}

func (h *Hub) Run() {
	for {
		select {
		case r := <-h.register:
			h.registerClient(r.client)
			close(r.done)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case b := <-h.broadcast:
			h.deliver(b)
		case <-h.ctx.Done():
			h.shutdown()
			return
		}
	}
}

// Register adds a connected client and returns once its presence snapshot is queued.
func (h *Hub) Register(c *Client) error {
	r := &registration{client: c, done: make(chan struct{})}
	select {
	case h.register <- r:
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
	select {
	case <-r.done:
		return nil
	case <-h.ctx.Done():
		return h.ctx.Err()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

// Broadcast fans msg out to local members of rooms and, when a relay is
// set, to every other instance. exclude names a connection to skip.
func (h *Hub) Broadcast(ctx context.Context, rooms []string, msg *Message, exclude string) {
	h.BroadcastLocal(rooms, msg, exclude)
	if h.relay != nil {
		if err := h.relay.Publish(ctx, rooms, msg); err != nil {
			h.logger.Warn("Failed to relay broadcast", "type", msg.Type, "error", err)
		}
	}
}

// BroadcastLocal fans msg out to members of rooms on this instance only.
func (h *Hub) BroadcastLocal(rooms []string, msg *Message, exclude string) {
	select {
	case h.broadcast <- &broadcast{rooms: rooms, message: msg, exclude: exclude}:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Join(c *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	h.joinLocked(c, room)
}

func (h *Hub) Leave(c *Client, room string) error {
	if room == h.defaultRoom {
		return apperrors.Validation("room", apperrors.ErrDefaultRoom)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(c, room)
	return nil
}

// RoomsOf returns the rooms c belongs to, sorted.
func (h *Hub) RoomsOf(c *Client) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	sort.Strings(rooms)
	return rooms
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.joinLocked(c, h.defaultRoom)
	h.mu.Unlock()

	entry := presence.Entry{UserID: c.userID, ConnectionID: c.id, UserEmail: c.email, JoinedAt: c.joinedAt}
	snapshot := h.registry.Add(entry)
	h.metrics.ConnectionOpened()
	h.logger.Info("User connected", "user_id", c.userID, "connection_id", c.id)

	c.Send(newMessage(MessageTypeConnectionStatus, ConnectionStatus{Connected: true, ConnectionID: c.id, UserID: c.userID}))
	c.Send(newMessage(MessageTypeOnlineUsers, snapshot))

	rooms := []string{h.defaultRoom}
	h.deliver(&broadcast{rooms: rooms, exclude: c.id, message: newMessage(MessageTypeUserJoined, noticeFor(entry))})
	h.deliver(&broadcast{rooms: rooms, exclude: c.id, message: newMessage(MessageTypeOnlineUsers, snapshot)})
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	for room := range c.rooms {
		h.leaveLocked(c, room)
	}
	h.mu.Unlock()

	c.cancel()
	_ = c.state.transition(StateDisconnected)

	entry, ok, snapshot := h.registry.Remove(c.id)
	if !ok {
		return
	}
	h.metrics.ConnectionClosed()
	h.logger.Info("User disconnected", "user_id", c.userID, "connection_id", c.id, "evicted", c.evicted.Load())

	rooms := []string{h.defaultRoom}
	h.deliver(&broadcast{rooms: rooms, message: newMessage(MessageTypeUserLeft, noticeFor(entry))})
	h.deliver(&broadcast{rooms: rooms, message: newMessage(MessageTypeOnlineUsers, snapshot)})
}

func (h *Hub) deliver(b *broadcast) {
	h.mu.RLock()
	recipients := make(map[string]*Client)
	for _, room := range b.rooms {
		for id, c := range h.rooms[room] {
			if id != b.exclude {
				recipients[id] = c
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range recipients {
		c.Send(b.message)
	}
}

func (h *Hub) joinLocked(c *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[c.id] = c
	c.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(c *Client, room string) {
	delete(c.rooms, room)
	if members, ok := h.rooms[room]; ok {
		delete(members, c.id)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.clients {
		c.cancel()
		_ = c.state.transition(StateDisconnected)
		if _, ok, _ := h.registry.Remove(c.id); ok {
			h.metrics.ConnectionClosed()
		}
	}
	h.clients = make(map[string]*Client)
	h.rooms = make(map[string]map[string]*Client)
}

func noticeFor(e presence.Entry) PresenceNotice {
	return PresenceNotice{UserID: e.UserID, UserEmail: e.UserEmail, ConnectionID: e.ConnectionID}
}
