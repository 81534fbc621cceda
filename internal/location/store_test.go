package location

import (
	"context"
	"testing"
	"time"

	"github.com/askwhyharsh/caddate/internal/geo"
	"github.com/askwhyharsh/caddate/internal/storage/storagetest"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reference = geo.Point{Lat: 40.9884, Lng: 29.0255}

func floatPtr(f float64) *float64 { return &f }

func sharingAt(id string, p geo.Point, at time.Time) *UserLocation {
	return &UserLocation{UserID: id, Position: &p, Accuracy: floatPtr(5), IsSharing: true, UpdatedAt: at}
}

func ids(locs []*UserLocation) []string {
	out := make([]string, 0, len(locs))
	for _, l := range locs {
		out = append(out, l.UserID)
	}
	return out
}

func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	since := now.Add(-5 * time.Minute)

	t.Run("GetMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Get(ctx, "nobody")
		assert.True(t, apperrors.IsNotFound(err))
	})

	t.Run("SaveOverwrites", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, sharingAt("u1", reference, now.Add(-time.Minute))))
		moved := geo.Offset(reference, 100, 0)
		require.NoError(t, s.Save(ctx, sharingAt("u1", moved, now)))

		got, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, got.Position)
		assert.InDelta(t, moved.Lat, got.Position.Lat, 1e-9)
		assert.True(t, got.UpdatedAt.Equal(now))
		assert.Equal(t, 5.0, *got.Accuracy)
	})

	t.Run("SetSharingKeepsPosition", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, sharingAt("u1", reference, now)))

		loc, err := s.SetSharing(ctx, "u1", false)
		require.NoError(t, err)
		assert.False(t, loc.IsSharing)

		got, err := s.Get(ctx, "u1")
		require.NoError(t, err)
		require.NotNil(t, got.Position)
		assert.InDelta(t, reference.Lat, got.Position.Lat, 1e-9)
		assert.True(t, got.UpdatedAt.Equal(now))

		found, err := s.Candidates(ctx, reference, 1000, since)
		require.NoError(t, err)
		assert.Empty(t, found)

		_, err = s.SetSharing(ctx, "u1", true)
		require.NoError(t, err)
		found, err = s.Candidates(ctx, reference, 1000, since)
		require.NoError(t, err)
		assert.Equal(t, []string{"u1"}, ids(found))
	})

	t.Run("SetSharingWithoutRecord", func(t *testing.T) {
		s := newStore(t)
		loc, err := s.SetSharing(ctx, "fresh", true)
		require.NoError(t, err)
		assert.True(t, loc.IsSharing)
		assert.Nil(t, loc.Position)

		found, err := s.Candidates(ctx, reference, 10000, since)
		require.NoError(t, err)
		assert.Empty(t, found)
	})

	t.Run("CandidatesFilterFreshnessAndRadius", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, sharingAt("near", geo.Offset(reference, 50, 0), now)))
		require.NoError(t, s.Save(ctx, sharingAt("far", geo.Offset(reference, 20000, 0), now)))
		require.NoError(t, s.Save(ctx, sharingAt("stale", geo.Offset(reference, 30, 0), now.Add(-10*time.Minute))))

		found, err := s.Candidates(ctx, reference, 5000, since)
		require.NoError(t, err)
		assert.Contains(t, ids(found), "near")
		assert.NotContains(t, ids(found), "stale")
		for _, l := range found {
			assert.True(t, l.Visible(since))
		}
	})

	t.Run("CandidatesKeepRadiusBoundary", func(t *testing.T) {
		s := newStore(t)
		edge := geo.Offset(reference, 4999.2, 0)
		require.NoError(t, s.Save(ctx, sharingAt("edge", edge, now)))

		found, err := s.Candidates(ctx, reference, 5000, since)
		require.NoError(t, err)
		assert.Contains(t, ids(found), "edge")
	})

	t.Run("PruneDropsStaleFromIndex", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Save(ctx, sharingAt("fresh", reference, now)))
		require.NoError(t, s.Save(ctx, sharingAt("stale", reference, now.Add(-10*time.Minute))))

		pruned, err := s.Prune(ctx, since)
		require.NoError(t, err)
		assert.Equal(t, 1, pruned)

		found, err := s.Candidates(ctx, reference, 1000, now.Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []string{"fresh"}, ids(found))

		// the record itself survives
		_, err = s.Get(ctx, "stale")
		assert.NoError(t, err)

		pruned, err = s.Prune(ctx, since)
		require.NoError(t, err)
		assert.Zero(t, pruned)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreContract(t, func(*testing.T) Store {
		return NewMemoryStore(geo.DefaultMinPrecision, geo.DefaultMaxPrecision)
	})
}

func TestRedisStore(t *testing.T) {
	runStoreContract(t, func(*testing.T) Store {
		return NewRedisStore(storagetest.NewFakeRedis())
	})
}

func TestMemoryStore_FallsBackToScan(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	s := NewMemoryStore(geo.DefaultMinPrecision, geo.DefaultMaxPrecision)

	east := geo.Point{Lat: 0, Lng: 179.999}
	west := geo.Point{Lat: 0, Lng: -179.999}
	require.NoError(t, s.Save(ctx, sharingAt("west", west, now)))

	found, err := s.Candidates(ctx, east, 1000, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, []string{"west"}, ids(found))
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(geo.DefaultMinPrecision, geo.DefaultMaxPrecision)
	require.NoError(t, s.Save(ctx, sharingAt("u1", reference, time.Now())))

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	got.Position.Lat = 0
	*got.Accuracy = 999

	again, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, reference.Lat, again.Position.Lat)
	assert.Equal(t, 5.0, *again.Accuracy)
}

func TestRedisStore_Keys(t *testing.T) {
	ctx := context.Background()
	fake := storagetest.NewFakeRedis()
	s := NewRedisStore(fake)
	at := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, s.Save(ctx, sharingAt("u1", reference, at)))

	raw, err := fake.Get(ctx, "location:u1")
	require.NoError(t, err)
	assert.Contains(t, raw, `"userId":"u1"`)

	score, ok := fake.ZScore(updatedKey, "u1")
	require.True(t, ok)
	assert.Equal(t, float64(at.UnixMilli()), score)

	_, err = s.SetSharing(ctx, "u1", false)
	require.NoError(t, err)
	_, ok = fake.ZScore(updatedKey, "u1")
	assert.False(t, ok)
	card, err := fake.ZCard(ctx, geoKey)
	require.NoError(t, err)
	assert.Zero(t, card)
}

func TestRedisStore_PolarUsersSkipGeoIndex(t *testing.T) {
	ctx := context.Background()
	fake := storagetest.NewFakeRedis()
	s := NewRedisStore(fake)

	require.NoError(t, s.Save(ctx, sharingAt("polar", geo.Point{Lat: 89.5, Lng: 0}, time.Now())))
	card, err := fake.ZCard(ctx, geoKey)
	require.NoError(t, err)
	assert.Zero(t, card)

	_, err = s.Candidates(ctx, geo.Point{Lat: 89.9, Lng: 10}, 5000, time.Now().Add(-time.Minute))
	assert.NoError(t, err)
}

func TestRedisStore_Errors(t *testing.T) {
	ctx := context.Background()
	fake := storagetest.NewFakeRedis()
	s := NewRedisStore(fake)
	fake.Err = assert.AnError

	_, err := s.Get(ctx, "u1")
	require.Error(t, err)
	assert.False(t, apperrors.IsNotFound(err))
	assert.Error(t, s.Save(ctx, sharingAt("u1", reference, time.Now())))
	_, err = s.Candidates(ctx, reference, 100, time.Now())
	assert.Error(t, err)
}

func TestRedisStore_SaveIsAtomic(t *testing.T) {
	ctx := context.Background()
	fake := storagetest.NewFakeRedis()
	s := NewRedisStore(fake)
	at := time.UnixMilli(1_700_000_000_000)

	require.NoError(t, s.Save(ctx, sharingAt("u1", reference, at)))

	fake.FailCommand("geoadd", assert.AnError)
	moved := geo.Offset(reference, 300, 0)
	require.Error(t, s.Save(ctx, sharingAt("u1", moved, at.Add(time.Minute))))

	got, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got.Position)
	assert.InDelta(t, reference.Lat, got.Position.Lat, 1e-9)
	assert.True(t, got.UpdatedAt.Equal(at))
	score, ok := fake.ZScore(updatedKey, "u1")
	require.True(t, ok)
	assert.Equal(t, float64(at.UnixMilli()), score)

	require.Error(t, s.Save(ctx, sharingAt("u2", reference, at)))
	_, err = s.Get(ctx, "u2")
	assert.True(t, apperrors.IsNotFound(err))
}
