package storage

import (
	"context"
	"time"

	"github.com/askwhyharsh/caddate/internal/config"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisEarthRadiusMeters is the sphere radius redis GEO commands measure on.
const RedisEarthRadiusMeters = 6372797.560856

type RedisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	MGet(ctx context.Context, keys ...string) ([]interface{}, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, expiration time.Duration) error
	ZAdd(ctx context.Context, key string, members ...*redis.Z) error
	ZRem(ctx context.Context, key string, members ...interface{}) error
	ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) ([]string, error)
	ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)
	GeoAdd(ctx context.Context, key string, geoLocation ...*redis.GeoLocation) error
	GeoSearch(ctx context.Context, key string, query *redis.GeoSearchQuery) ([]string, error)
	// TxPipelined queues the writes fn makes and runs them in one MULTI/EXEC.
	// Nothing is sent when fn returns an error.
	TxPipelined(ctx context.Context, fn func(tx RedisTx) error) error
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) Subscription
	Ping(ctx context.Context) error
	Close() error
}

// RedisTx queues writes for TxPipelined.
type RedisTx interface {
	Set(key string, value interface{}, expiration time.Duration)
	ZAdd(key string, members ...*redis.Z)
	ZRem(key string, members ...interface{})
	GeoAdd(key string, geoLocation ...*redis.GeoLocation)
}

// Subscription is a live pub/sub subscription.
type Subscription interface {
	Messages() <-chan *redis.Message
	Close() error
}

type redisClient struct {
	client *redis.Client
}

func NewRedisClient(cfg *config.Config) (RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(err, "ping redis at %s", cfg.RedisAddr())
	}

	return &redisClient{client: client}, nil
}

func (r *redisClient) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return r.client.Set(ctx, key, value, expiration).Err()
}

func (r *redisClient) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *redisClient) MGet(ctx context.Context, keys ...string) ([]interface{}, error) {
	return r.client.MGet(ctx, keys...).Result()
}

func (r *redisClient) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *redisClient) Expire(ctx context.Context, key string, expiration time.Duration) error {
	return r.client.Expire(ctx, key, expiration).Err()
}

func (r *redisClient) ZAdd(ctx context.Context, key string, members ...*redis.Z) error {
	values := make([]redis.Z, len(members))
	for i, m := range members {
		values[i] = *m
	}
	return r.client.ZAdd(ctx, key, values...).Err()
}

func (r *redisClient) ZRem(ctx context.Context, key string, members ...interface{}) error {
	return r.client.ZRem(ctx, key, members...).Err()
}

func (r *redisClient) ZRangeByScore(ctx context.Context, key string, opt *redis.ZRangeBy) ([]string, error) {
	return r.client.ZRangeByScore(ctx, key, opt).Result()
}

func (r *redisClient) ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error) {
	return r.client.ZRemRangeByScore(ctx, key, min, max).Result()
}

func (r *redisClient) ZCard(ctx context.Context, key string) (int64, error) {
	return r.client.ZCard(ctx, key).Result()
}

func (r *redisClient) GeoAdd(ctx context.Context, key string, geoLocation ...*redis.GeoLocation) error {
	return r.client.GeoAdd(ctx, key, geoLocation...).Err()
}

func (r *redisClient) GeoSearch(ctx context.Context, key string, query *redis.GeoSearchQuery) ([]string, error) {
	return r.client.GeoSearch(ctx, key, query).Result()
}

func (r *redisClient) TxPipelined(ctx context.Context, fn func(tx RedisTx) error) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return fn(&txPipe{ctx: ctx, pipe: pipe})
	})
	return err
}

type txPipe struct {
	ctx  context.Context
	pipe redis.Pipeliner
}

func (t *txPipe) Set(key string, value interface{}, expiration time.Duration) {
	t.pipe.Set(t.ctx, key, value, expiration)
}

func (t *txPipe) ZAdd(key string, members ...*redis.Z) {
	values := make([]redis.Z, len(members))
	for i, m := range members {
		values[i] = *m
	}
	t.pipe.ZAdd(t.ctx, key, values...)
}

func (t *txPipe) ZRem(key string, members ...interface{}) {
	t.pipe.ZRem(t.ctx, key, members...)
}

func (t *txPipe) GeoAdd(key string, geoLocation ...*redis.GeoLocation) {
	t.pipe.GeoAdd(t.ctx, key, geoLocation...)
}

func (r *redisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	return r.client.Publish(ctx, channel, message).Err()
}

func (r *redisClient) Subscribe(ctx context.Context, channels ...string) Subscription {
	return &pubSub{ps: r.client.Subscribe(ctx, channels...)}
}

func (r *redisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *redisClient) Close() error {
	return r.client.Close()
}

type pubSub struct {
	ps *redis.PubSub
}

func (p *pubSub) Messages() <-chan *redis.Message {
	return p.ps.Channel()
}

func (p *pubSub) Close() error {
	return p.ps.Close()
}
