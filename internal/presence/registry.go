package presence

import (
	"sort"
	"sync"
	"time"
)

// Entry is one live authenticated connection.
type Entry struct {
	UserID       string    `json:"userId"`
	ConnectionID string    `json:"connectionId"`
	UserEmail    string    `json:"userEmail"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// Registry maps connection ids to entries. A user with several devices has
// several entries. It is process-local and never persisted.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Entry)}
}

// Add inserts e and returns the registry contents after the insert.
func (r *Registry) Add(e Entry) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[e.ConnectionID] = e
	return r.snapshotLocked()
}

// Remove deletes the entry for connectionID. It returns the removed entry,
// whether it existed and the registry contents after the removal.
func (r *Registry) Remove(connectionID string) (Entry, bool, []Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[connectionID]
	if ok {
		delete(r.entries, connectionID)
	}
	return e, ok, r.snapshotLocked()
}

// List returns every entry ordered by join time.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ByUser returns the entries belonging to userID.
func (r *Registry) ByUser(userID string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Entry
	for _, e := range r.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	sortEntries(out)
	return out
}

func (r *Registry) snapshotLocked() []Entry {
	out := make([]Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].JoinedAt.Before(entries[j].JoinedAt)
		}
		return entries[i].ConnectionID < entries[j].ConnectionID
	})
}
