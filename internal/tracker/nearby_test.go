package tracker

import (
	"testing"
	"time"

	"github.com/askwhyharsh/caddate/internal/geo"
	"github.com/askwhyharsh/caddate/internal/location"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func coordsAt(p geo.Point) location.Coordinates {
	return location.Coordinates{Latitude: p.Lat, Longitude: p.Lng}
}

func TestNearbySet_ReplaceSkipsSelf(t *testing.T) {
	now := time.Now()
	n := NewNearbySet("me", 1000, 5*time.Minute)
	n.Replace(&location.NearbyResult{Users: []location.NearbyUser{
		{UserID: "me", LastSeen: now},
		{UserID: "b", DistanceMeters: 200, LastSeen: now},
		{UserID: "a", DistanceMeters: 200, LastSeen: now},
		{UserID: "c", DistanceMeters: 50, LastSeen: now},
	}})

	got := n.List()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{got[0].UserID, got[1].UserID, got[2].UserID})

	n.Replace(nil)
	assert.Zero(t, n.Len())
}

func TestNearbySet_MergeRecomputesDistance(t *testing.T) {
	now := time.Now()
	n := NewNearbySet("me", 1000, 5*time.Minute)
	n.Replace(&location.NearbyResult{Users: []location.NearbyUser{
		{UserID: "friend", FirstName: "Ada", DistanceMeters: 900, LastSeen: now.Add(-time.Minute)},
	}})

	moved := geo.Offset(home.Point(), 300, 0)
	n.Merge(home, "friend", coordsAt(moved), now)

	got := n.List()
	require.Len(t, got, 1)
	assert.Equal(t, "Ada", got[0].FirstName)
	assert.InDelta(t, 300, got[0].DistanceMeters, 1)
	assert.Equal(t, now, got[0].LastSeen)
}

func TestNearbySet_MergeOutsideRadiusRemoves(t *testing.T) {
	now := time.Now()
	n := NewNearbySet("me", 1000, 5*time.Minute)
	n.Merge(home, "friend", coordsAt(geo.Offset(home.Point(), 100, 0)), now)
	require.Equal(t, 1, n.Len())

	n.Merge(home, "friend", coordsAt(geo.Offset(home.Point(), 2000, 0)), now)
	assert.Zero(t, n.Len())
}

func TestNearbySet_MergeIgnoresSelf(t *testing.T) {
	n := NewNearbySet("me", 1000, 5*time.Minute)
	n.Merge(home, "me", coordsAt(home.Point()), time.Now())
	assert.Zero(t, n.Len())
}

func TestNearbySet_ListPrunesStale(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	n := NewNearbySet("me", 1000, 5*time.Minute)
	n.now = func() time.Time { return now }

	n.Merge(home, "fresh", coordsAt(home.Point()), now.Add(-time.Minute))
	n.Merge(home, "stale", coordsAt(home.Point()), now.Add(-6*time.Minute))

	got := n.List()
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].UserID)
	assert.Equal(t, 1, n.Len())

	n.Remove("fresh")
	assert.Empty(t, n.List())
}
