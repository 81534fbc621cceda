package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/askwhyharsh/caddate/internal/geo"
	"github.com/askwhyharsh/caddate/internal/location"
)

// NearbySet is the client-side view of users around the device. It is
// replaced by nearby_users_list replies and patched by live location
// broadcasts in between.
type NearbySet struct {
	selfID    string
	radius    float64
	freshness time.Duration
	now       func() time.Time

	mu    sync.RWMutex
	users map[string]location.NearbyUser
}

func NewNearbySet(selfID string, radius float64, freshness time.Duration) *NearbySet {
	return &NearbySet{
		selfID:    selfID,
		radius:    radius,
		freshness: freshness,
		now:       time.Now,
		users:     make(map[string]location.NearbyUser),
	}
}

// Replace swaps the set for the users in res.
func (n *NearbySet) Replace(res *location.NearbyResult) {
	users := make(map[string]location.NearbyUser)
	if res != nil {
		for _, u := range res.Users {
			if u.UserID == n.selfID {
				continue
			}
			users[u.UserID] = u
		}
	}

	n.mu.Lock()
	n.users = users
	n.mu.Unlock()
}

// Merge applies a live location broadcast. The distance is recomputed from
// self and the user is dropped once it moves outside the radius. Users not
// yet in the set are added with an empty profile.
func (n *NearbySet) Merge(self Fix, userID string, coords location.Coordinates, at time.Time) {
	if userID == n.selfID {
		return
	}
	distance := geo.Distance(self.Point(), geo.Point{Lat: coords.Latitude, Lng: coords.Longitude})

	n.mu.Lock()
	defer n.mu.Unlock()
	if distance > n.radius {
		delete(n.users, userID)
		return
	}
	u := n.users[userID]
	u.UserID = userID
	u.Location = coords
	u.LastSeen = at
	u.DistanceMeters = geo.RoundMeters(distance)
	n.users[userID] = u
}

func (n *NearbySet) Remove(userID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.users, userID)
}

// List drops stale users and returns the rest nearest first.
func (n *NearbySet) List() []location.NearbyUser {
	cutoff := n.now().Add(-n.freshness)

	n.mu.Lock()
	out := make([]location.NearbyUser, 0, len(n.users))
	for id, u := range n.users {
		if u.LastSeen.Before(cutoff) {
			delete(n.users, id)
			continue
		}
		out = append(out, u)
	}
	n.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceMeters != out[j].DistanceMeters {
			return out[i].DistanceMeters < out[j].DistanceMeters
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (n *NearbySet) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.users)
}
