package user

import (
	"context"
	"sync"

	apperrors "github.com/askwhyharsh/caddate/pkg/errors"
)

var _ Directory = (*MemoryDirectory)(nil)

type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]User
}

func NewMemoryDirectory(users ...User) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]User, len(users))}
	for _, u := range users {
		d.Put(u)
	}
	return d
}

// Put inserts or replaces a user.
func (d *MemoryDirectory) Put(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u.Privacy = clonePrivacy(u.Privacy)
	d.users[u.ID] = u
}

func (d *MemoryDirectory) FindByID(_ context.Context, id string) (*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.ErrUserNotFound)
	}
	u.Privacy = clonePrivacy(u.Privacy)
	return &u, nil
}

func (d *MemoryDirectory) FindByIDs(_ context.Context, ids []string) (map[string]*User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make(map[string]*User, len(ids))
	for _, id := range ids {
		if u, ok := d.users[id]; ok {
			u.Privacy = clonePrivacy(u.Privacy)
			out[id] = &u
		}
	}
	return out, nil
}

func (d *MemoryDirectory) UpdatePrivacy(_ context.Context, id string, patch map[string]any) (map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, apperrors.NotFound(apperrors.ErrUserNotFound)
	}
	u.Privacy = mergePrivacy(u.Privacy, patch)
	d.users[id] = u
	return clonePrivacy(u.Privacy), nil
}
