package location

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/askwhyharsh/caddate/internal/geo"
	"github.com/askwhyharsh/caddate/internal/storage"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

const (
	geoKey     = "location:geo"
	updatedKey = "location:updated"

	// redis GEO rejects latitudes beyond the web mercator limit
	maxGeoLatitude = 85.05112878

	// slack for geohash cell error on stored coordinates
	geoSearchMarginMeters = 1.0
)

// RedisStore keeps the snapshot as JSON under location:<userId> and maintains
// two secondary indexes over sharing users: a GEO set for radius search and a
// sorted set of last-update times for freshness.
type RedisStore struct {
	redis storage.RedisClient
}

func NewRedisStore(redisClient storage.RedisClient) *RedisStore {
	return &RedisStore{redis: redisClient}
}

func (s *RedisStore) Get(ctx context.Context, userID string) (*UserLocation, error) {
	data, err := s.redis.Get(ctx, s.locationKey(userID))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, apperrors.NotFound(apperrors.ErrLocationNotFound)
		}
		return nil, errors.Wrap(err, "failed to get location")
	}

	var loc UserLocation
	if err := json.Unmarshal([]byte(data), &loc); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal location")
	}
	return &loc, nil
}

func (s *RedisStore) Save(ctx context.Context, loc *UserLocation) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal location")
	}

	err = s.redis.TxPipelined(ctx, func(tx storage.RedisTx) error {
		tx.Set(s.locationKey(loc.UserID), data, 0)
		s.reindex(tx, loc)
		return nil
	})
	return errors.Wrap(err, "failed to store location")
}

func (s *RedisStore) SetSharing(ctx context.Context, userID string, sharing bool) (*UserLocation, error) {
	loc, err := s.Get(ctx, userID)
	if apperrors.IsNotFound(err) {
		loc = &UserLocation{UserID: userID}
	} else if err != nil {
		return nil, err
	}

	loc.IsSharing = sharing
	if err := s.Save(ctx, loc); err != nil {
		return nil, err
	}
	return loc, nil
}

func (s *RedisStore) Candidates(ctx context.Context, center geo.Point, radiusMeters float64, since time.Time) ([]*UserLocation, error) {
	search := center
	if math.Abs(center.Lat) > maxGeoLatitude {
		search.Lat = math.Copysign(maxGeoLatitude, center.Lat)
		radiusMeters += geo.Distance(center, search)
	}
	// redis measures on a larger sphere; the caller applies the exact cut
	radiusMeters = radiusMeters*(storage.RedisEarthRadiusMeters/geo.EarthRadiusMeters) + geoSearchMarginMeters

	near, err := s.redis.GeoSearch(ctx, geoKey, &redis.GeoSearchQuery{
		Longitude:  search.Lng,
		Latitude:   search.Lat,
		Radius:     radiusMeters,
		RadiusUnit: "m",
		Sort:       "ASC",
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to search geo index")
	}
	if len(near) == 0 {
		return nil, nil
	}

	fresh, err := s.redis.ZRangeByScore(ctx, updatedKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to read freshness index")
	}

	freshSet := make(map[string]struct{}, len(fresh))
	for _, id := range fresh {
		freshSet[id] = struct{}{}
	}

	keys := make([]string, 0, len(near))
	for _, id := range near {
		if _, ok := freshSet[id]; ok {
			keys = append(keys, s.locationKey(id))
		}
	}
	if len(keys) == 0 {
		return nil, nil
	}

	values, err := s.redis.MGet(ctx, keys...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load candidate locations")
	}

	out := make([]*UserLocation, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var loc UserLocation
		if err := json.Unmarshal([]byte(raw), &loc); err != nil {
			continue
		}
		// indexes may lag the snapshot; the snapshot decides
		if loc.Visible(since) {
			out = append(out, &loc)
		}
	}
	return out, nil
}

func (s *RedisStore) Prune(ctx context.Context, before time.Time) (int, error) {
	cutoff := "(" + strconv.FormatInt(before.UnixMilli(), 10)
	stale, err := s.redis.ZRangeByScore(ctx, updatedKey, &redis.ZRangeBy{Min: "-inf", Max: cutoff})
	if err != nil {
		return 0, errors.Wrap(err, "failed to read freshness index")
	}
	if len(stale) == 0 {
		return 0, nil
	}

	members := make([]interface{}, len(stale))
	for i, id := range stale {
		members[i] = id
	}
	if err := s.redis.ZRem(ctx, geoKey, members...); err != nil {
		return 0, errors.Wrap(err, "failed to prune geo index")
	}
	if _, err := s.redis.ZRemRangeByScore(ctx, updatedKey, "-inf", cutoff); err != nil {
		return 0, errors.Wrap(err, "failed to prune freshness index")
	}
	return len(stale), nil
}

func (s *RedisStore) reindex(tx storage.RedisTx, loc *UserLocation) {
	if !loc.IsSharing || loc.Position == nil {
		tx.ZRem(geoKey, loc.UserID)
		tx.ZRem(updatedKey, loc.UserID)
		return
	}

	if math.Abs(loc.Position.Lat) > maxGeoLatitude {
		tx.ZRem(geoKey, loc.UserID)
	} else {
		tx.GeoAdd(geoKey, &redis.GeoLocation{
			Name:      loc.UserID,
			Longitude: loc.Position.Lng,
			Latitude:  loc.Position.Lat,
		})
	}
	tx.ZAdd(updatedKey, &redis.Z{
		Score:  float64(loc.UpdatedAt.UnixMilli()),
		Member: loc.UserID,
	})
}

func (s *RedisStore) locationKey(userID string) string {
	return fmt.Sprintf("location:%s", userID)
}
