package websocket

import (
	"context"
	"encoding/json"

	"github.com/askwhyharsh/caddate/internal/storage"
	"github.com/askwhyharsh/caddate/pkg/logger"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const RelayChannel = "realtime:broadcast"

type relayEnvelope struct {
	Origin  string   `json:"origin"`
	Rooms   []string `json:"rooms"`
	Message *Message `json:"message"`
}

// RedisRelay publishes room broadcasts on a shared channel and replays
// broadcasts from other instances to local room members. Presence stays
// local to each instance.
type RedisRelay struct {
	redis      storage.RedisClient
	hub        *Hub
	instanceID string
	logger     logger.Logger
}

func NewRedisRelay(redisClient storage.RedisClient, hub *Hub, log logger.Logger) *RedisRelay {
	return &RedisRelay{
		redis:      redisClient,
		hub:        hub,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

func (r *RedisRelay) InstanceID() string {
	return r.instanceID
}

func (r *RedisRelay) Publish(ctx context.Context, rooms []string, msg *Message) error {
	data, err := json.Marshal(relayEnvelope{Origin: r.instanceID, Rooms: rooms, Message: msg})
	if err != nil {
		return errors.Wrap(err, "marshal relay envelope")
	}
	if err := r.redis.Publish(ctx, RelayChannel, data); err != nil {
		return errors.Wrap(err, "publish relay envelope")
	}
	return nil
}

// Run consumes the relay channel until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.redis.Subscribe(ctx, RelayChannel)
	defer sub.Close()

	ch := sub.Messages()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.logger.Warn("Dropping malformed relay message", "error", err)
				continue
			}
			if env.Origin == r.instanceID || env.Message == nil {
				continue
			}
			r.hub.BroadcastLocal(env.Rooms, env.Message, "")
		case <-ctx.Done():
			return nil
		}
	}
}
