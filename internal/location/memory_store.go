package location

import (
	"context"
	"sync"
	"time"

	"github.com/askwhyharsh/caddate/internal/geo"
	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
)

var _ Store = (*MemoryStore)(nil)

type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*UserLocation
	index   *geo.Index
}

func NewMemoryStore(minPrecision, maxPrecision uint) *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*UserLocation),
		index:   geo.NewIndex(minPrecision, maxPrecision),
	}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*UserLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loc, ok := s.records[userID]
	if !ok {
		return nil, apperrors.NotFound(apperrors.ErrLocationNotFound)
	}
	return loc.clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, loc *UserLocation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := loc.clone()
	s.records[loc.UserID] = stored
	s.reindex(stored)
	return nil
}

func (s *MemoryStore) SetSharing(_ context.Context, userID string, sharing bool) (*UserLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.records[userID]
	if !ok {
		loc = &UserLocation{UserID: userID}
		s.records[userID] = loc
	}
	loc.IsSharing = sharing
	s.reindex(loc)
	return loc.clone(), nil
}

func (s *MemoryStore) Candidates(_ context.Context, center geo.Point, radiusMeters float64, since time.Time) ([]*UserLocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*UserLocation
	if ids, ok := s.index.Candidates(center, radiusMeters); ok {
		for _, id := range ids {
			if loc := s.records[id]; loc.Visible(since) {
				out = append(out, loc.clone())
			}
		}
		return out, nil
	}

	for _, loc := range s.records {
		if loc.Visible(since) {
			out = append(out, loc.clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pruned := 0
	for id, loc := range s.records {
		if s.index.Has(id) && loc.UpdatedAt.Before(before) {
			s.index.Remove(id)
			pruned++
		}
	}
	return pruned, nil
}

// Indexed reports how many users are currently in the proximity index.
func (s *MemoryStore) Indexed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.Len()
}

func (s *MemoryStore) reindex(loc *UserLocation) {
	if loc.IsSharing && loc.Position != nil {
		s.index.Put(loc.UserID, *loc.Position)
		return
	}
	s.index.Remove(loc.UserID)
}
