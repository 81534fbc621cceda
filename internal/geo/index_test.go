package geo

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_PutRemove(t *testing.T) {
	ix := NewIndex(DefaultMinPrecision, DefaultMaxPrecision)
	ix.Put("a", bagdatCaddesi)
	ix.Put("b", Offset(bagdatCaddesi, 50, 0))
	require.Equal(t, 2, ix.Len())

	ix.Put("a", Offset(bagdatCaddesi, 0, 30))
	assert.Equal(t, 2, ix.Len())

	ix.Remove("a")
	ix.Remove("missing")
	assert.False(t, ix.Has("a"))
	assert.True(t, ix.Has("b"))

	ix.Remove("b")
	for _, bucket := range ix.cells {
		assert.Empty(t, bucket)
	}
}

func TestIndex_CandidatesAreSuperset(t *testing.T) {
	r := rand.New(rand.NewSource(99))
	ix := NewIndex(DefaultMinPrecision, DefaultMaxPrecision)

	points := make(map[string]Point)
	for i := 0; i < 2000; i++ {
		id := fmt.Sprintf("u%d", i)
		p := Offset(bagdatCaddesi, (r.Float64()-0.5)*40000, (r.Float64()-0.5)*40000)
		points[id] = p
		ix.Put(id, p)
	}

	for _, radius := range []float64{100, 500, 1000, 5000, 10000} {
		center := Offset(bagdatCaddesi, (r.Float64()-0.5)*10000, (r.Float64()-0.5)*10000)
		ids, ok := ix.Candidates(center, radius)
		require.True(t, ok, "radius %v should be coverable", radius)

		got := make(map[string]bool, len(ids))
		for _, id := range ids {
			got[id] = true
		}
		for id, p := range points {
			if Distance(center, p) <= radius {
				assert.True(t, got[id], "radius %v missing %s", radius, id)
			}
		}
		if radius <= 1000 {
			assert.Less(t, len(ids), len(points))
		}
	}
}

func TestIndex_CoveringPrecision(t *testing.T) {
	ix := NewIndex(DefaultMinPrecision, DefaultMaxPrecision)

	fine, ok := ix.CoveringPrecision(bagdatCaddesi, 100)
	require.True(t, ok)
	coarse, ok := ix.CoveringPrecision(bagdatCaddesi, 10000)
	require.True(t, ok)
	assert.Greater(t, fine, coarse)

	_, ok = ix.CoveringPrecision(Point{Lat: 89.95, Lng: 0}, 1000)
	assert.False(t, ok)
}

func TestIndex_AntimeridianFallsBackToScan(t *testing.T) {
	ix := NewIndex(DefaultMinPrecision, DefaultMaxPrecision)
	ix.Put("east", Point{Lat: 0, Lng: -179.999})

	ids, ok := ix.Candidates(Point{Lat: 0, Lng: 179.999}, 1000)
	assert.False(t, ok)
	assert.Nil(t, ids)
}
