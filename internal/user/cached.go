package user

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

var _ Directory = (*CachedDirectory)(nil)

// CachedDirectory memoizes FindByIDs for nearby-result enrichment. FindByID
// backs ownership and availability checks and always reads through.
// Misses are not cached so a newly created user is visible immediately.
// A ttl <= 0 disables caching.
type CachedDirectory struct {
	next  Directory
	cache *cache.Cache
}

func NewCachedDirectory(next Directory, ttl time.Duration) *CachedDirectory {
	d := &CachedDirectory{next: next}
	if ttl > 0 {
		d.cache = cache.New(ttl, 2*ttl)
	}
	return d
}

func (d *CachedDirectory) FindByID(ctx context.Context, id string) (*User, error) {
	return d.next.FindByID(ctx, id)
}

func (d *CachedDirectory) FindByIDs(ctx context.Context, ids []string) (map[string]*User, error) {
	if d.cache == nil {
		return d.next.FindByIDs(ctx, ids)
	}

	out := make(map[string]*User, len(ids))
	var missing []string
	for _, id := range ids {
		if cached, found := d.cache.Get(id); found {
			out[id] = copyUser(cached.(*User))
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	fetched, err := d.next.FindByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for id, u := range fetched {
		d.cache.Set(id, copyUser(u), cache.DefaultExpiration)
		out[id] = u
	}
	return out, nil
}

func (d *CachedDirectory) UpdatePrivacy(ctx context.Context, id string, patch map[string]any) (map[string]any, error) {
	if d.cache != nil {
		d.cache.Delete(id)
	}
	return d.next.UpdatePrivacy(ctx, id, patch)
}

func copyUser(u *User) *User {
	c := *u
	c.Privacy = clonePrivacy(u.Privacy)
	return &c
}
