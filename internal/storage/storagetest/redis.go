// Package storagetest provides an in-memory RedisClient for tests.
package storagetest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/askwhyharsh/caddate/internal/geo"
	"github.com/askwhyharsh/caddate/internal/storage"
	"github.com/redis/go-redis/v9"
)

var _ storage.RedisClient = (*FakeRedis)(nil)

// redisScale converts haversine distances to redis GEO distances.
const redisScale = storage.RedisEarthRadiusMeters / geo.EarthRadiusMeters

// FakeRedis implements the subset of redis semantics the application relies on.
// Setting Err makes every command fail with it. GEO distances are measured on
// the same sphere redis uses.
type FakeRedis struct {
	mu      sync.Mutex
	Err     error
	fail    map[string]error
	strings map[string]string
	zsets   map[string]map[string]float64
	geos    map[string]map[string]geo.Point
	ttls    map[string]time.Duration
	subs    map[string][]*fakeSub
}

func NewFakeRedis() *FakeRedis {
	return &FakeRedis{
		fail:    make(map[string]error),
		strings: make(map[string]string),
		zsets:   make(map[string]map[string]float64),
		geos:    make(map[string]map[string]geo.Point),
		ttls:    make(map[string]time.Duration),
		subs:    make(map[string][]*fakeSub),
	}
}

// FailCommand makes every later call of the named command ("set", "zadd",
// "zrem", "geoadd") fail with err, including inside transactions.
func (f *FakeRedis) FailCommand(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[name] = err
}

func (f *FakeRedis) check(command string) error {
	if f.Err != nil {
		return f.Err
	}
	return f.fail[command]
}

func (f *FakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("set"); err != nil {
		return err
	}
	f.set(key, value, expiration)
	return nil
}

func (f *FakeRedis) set(key string, value interface{}, expiration time.Duration) {
	f.strings[key] = toString(value)
	if expiration > 0 {
		f.ttls[key] = expiration
	}
}

func (f *FakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return "", f.Err
	}
	v, ok := f.strings[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (f *FakeRedis) MGet(_ context.Context, keys ...string) ([]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([]interface{}, len(keys))
	for i, k := range keys {
		if v, ok := f.strings[k]; ok {
			out[i] = v
		}
	}
	return out, nil
}

func (f *FakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	for _, k := range keys {
		delete(f.strings, k)
		delete(f.zsets, k)
		delete(f.geos, k)
		delete(f.ttls, k)
	}
	return nil
}

func (f *FakeRedis) Expire(_ context.Context, key string, expiration time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	f.ttls[key] = expiration
	return nil
}

// TTL returns the last expiration set on key.
func (f *FakeRedis) TTL(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

func (f *FakeRedis) ZAdd(_ context.Context, key string, members ...*redis.Z) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("zadd"); err != nil {
		return err
	}
	f.zadd(key, members)
	return nil
}

func (f *FakeRedis) zadd(key string, members []*redis.Z) {
	set, ok := f.zsets[key]
	if !ok {
		set = make(map[string]float64)
		f.zsets[key] = set
	}
	for _, m := range members {
		set[toString(m.Member)] = m.Score
	}
}

func (f *FakeRedis) ZRem(_ context.Context, key string, members ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("zrem"); err != nil {
		return err
	}
	f.zrem(key, members)
	return nil
}

func (f *FakeRedis) zrem(key string, members []interface{}) {
	for _, m := range members {
		name := toString(m)
		delete(f.zsets[key], name)
		delete(f.geos[key], name)
	}
}

func (f *FakeRedis) ZRangeByScore(_ context.Context, key string, opt *redis.ZRangeBy) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.rangeByScore(key, opt.Min, opt.Max)
}

func (f *FakeRedis) ZRemRangeByScore(_ context.Context, key, min, max string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	members, err := f.rangeByScore(key, min, max)
	if err != nil {
		return 0, err
	}
	for _, m := range members {
		delete(f.zsets[key], m)
	}
	return int64(len(members)), nil
}

func (f *FakeRedis) ZCard(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return 0, f.Err
	}
	return int64(len(f.zsets[key]) + len(f.geos[key])), nil
}

// ZScore reports a member's score, for assertions.
func (f *FakeRedis) ZScore(key, member string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.zsets[key][member]
	return s, ok
}

func (f *FakeRedis) GeoAdd(_ context.Context, key string, locations ...*redis.GeoLocation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check("geoadd"); err != nil {
		return err
	}
	f.geoadd(key, locations)
	return nil
}

func (f *FakeRedis) geoadd(key string, locations []*redis.GeoLocation) {
	set, ok := f.geos[key]
	if !ok {
		set = make(map[string]geo.Point)
		f.geos[key] = set
	}
	for _, l := range locations {
		set[l.Name] = geo.Point{Lat: l.Latitude, Lng: l.Longitude}
	}
}

func (f *FakeRedis) GeoSearch(_ context.Context, key string, q *redis.GeoSearchQuery) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}

	radius := q.Radius
	switch q.RadiusUnit {
	case "km":
		radius *= 1000
	case "m", "":
	default:
		return nil, fmt.Errorf("fake redis: unsupported unit %q", q.RadiusUnit)
	}

	center := geo.Point{Lat: q.Latitude, Lng: q.Longitude}
	type hit struct {
		name string
		dist float64
	}
	var hits []hit
	for name, p := range f.geos[key] {
		if d := geo.Distance(center, p) * redisScale; d <= radius {
			hits = append(hits, hit{name, d})
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if strings.EqualFold(q.Sort, "DESC") {
			return hits[i].dist > hits[j].dist
		}
		return hits[i].dist < hits[j].dist
	})
	if q.Count > 0 && len(hits) > q.Count {
		hits = hits[:q.Count]
	}

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.name
	}
	return out, nil
}

// TxPipelined applies the queued writes under one lock. If fn fails or any
// queued command is set to fail, nothing is applied, matching a MULTI that
// never reaches EXEC.
func (f *FakeRedis) TxPipelined(_ context.Context, fn func(tx storage.RedisTx) error) error {
	tx := &fakeTx{}
	if err := fn(tx); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, op := range tx.ops {
		if err := f.check(op.command); err != nil {
			return err
		}
	}
	for _, op := range tx.ops {
		op.apply(f)
	}
	return nil
}

type txOp struct {
	command string
	apply   func(f *FakeRedis)
}

type fakeTx struct {
	ops []txOp
}

func (t *fakeTx) Set(key string, value interface{}, expiration time.Duration) {
	t.ops = append(t.ops, txOp{"set", func(f *FakeRedis) { f.set(key, value, expiration) }})
}

func (t *fakeTx) ZAdd(key string, members ...*redis.Z) {
	t.ops = append(t.ops, txOp{"zadd", func(f *FakeRedis) { f.zadd(key, members) }})
}

func (t *fakeTx) ZRem(key string, members ...interface{}) {
	t.ops = append(t.ops, txOp{"zrem", func(f *FakeRedis) { f.zrem(key, members) }})
}

func (t *fakeTx) GeoAdd(key string, locations ...*redis.GeoLocation) {
	t.ops = append(t.ops, txOp{"geoadd", func(f *FakeRedis) { f.geoadd(key, locations) }})
}

func (f *FakeRedis) Publish(_ context.Context, channel string, message interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	payload := toString(message)
	for _, s := range f.subs[channel] {
		select {
		case s.ch <- &redis.Message{Channel: channel, Payload: payload}:
		default:
		}
	}
	return nil
}

func (f *FakeRedis) Subscribe(_ context.Context, channels ...string) storage.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSub{owner: f, channels: channels, ch: make(chan *redis.Message, 64)}
	for _, c := range channels {
		f.subs[c] = append(f.subs[c], s)
	}
	return s
}

// Subscribers reports how many live subscriptions listen on channel.
func (f *FakeRedis) Subscribers(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs[channel])
}

func (f *FakeRedis) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Err
}

func (f *FakeRedis) Close() error { return nil }

func (f *FakeRedis) rangeByScore(key, min, max string) ([]string, error) {
	lo, loExcl, err := parseBound(min)
	if err != nil {
		return nil, err
	}
	hi, hiExcl, err := parseBound(max)
	if err != nil {
		return nil, err
	}

	type member struct {
		name  string
		score float64
	}
	var hits []member
	for name, score := range f.zsets[key] {
		if score < lo || (loExcl && score == lo) {
			continue
		}
		if score > hi || (hiExcl && score == hi) {
			continue
		}
		hits = append(hits, member{name, score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score < hits[j].score
		}
		return hits[i].name < hits[j].name
	})

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.name
	}
	return out, nil
}

func parseBound(s string) (float64, bool, error) {
	switch s {
	case "-inf":
		return math.Inf(-1), false, nil
	case "+inf", "inf":
		return math.Inf(1), false, nil
	}
	exclusive := strings.HasPrefix(s, "(")
	v, err := strconv.ParseFloat(strings.TrimPrefix(s, "("), 64)
	if err != nil {
		return 0, false, fmt.Errorf("fake redis: bad score bound %q", s)
	}
	return v, exclusive, nil
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(t)
	}
}

type fakeSub struct {
	owner    *FakeRedis
	channels []string
	ch       chan *redis.Message
	once     sync.Once
}

func (s *fakeSub) Messages() <-chan *redis.Message { return s.ch }

func (s *fakeSub) Close() error {
	s.once.Do(func() {
		s.owner.mu.Lock()
		defer s.owner.mu.Unlock()
		for _, c := range s.channels {
			subs := s.owner.subs[c]
			for i, other := range subs {
				if other == s {
					s.owner.subs[c] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		}
		close(s.ch)
	})
	return nil
}
