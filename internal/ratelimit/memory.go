package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

type window struct {
	mu   sync.Mutex
	hits []time.Time
}

// MemoryLimiter is a process-local sliding window. Idle keys expire from the
// cache after one window.
type MemoryLimiter struct {
	windows  *cache.Cache
	maxCount int
	window   time.Duration
	now      func() time.Time
}

func NewMemoryLimiter(maxCount int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows:  cache.New(window, 2*window),
		maxCount: maxCount,
		window:   window,
		now:      time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	w := l.windowFor(key)

	w.mu.Lock()
	defer w.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	valid := w.hits[:0]
	for _, hit := range w.hits {
		if hit.After(cutoff) {
			valid = append(valid, hit)
		}
	}
	w.hits = valid

	if len(w.hits) >= l.maxCount {
		return false, nil
	}
	w.hits = append(w.hits, now)
	l.windows.SetDefault(key, w)
	return true, nil
}

func (l *MemoryLimiter) windowFor(key string) *window {
	if v, ok := l.windows.Get(key); ok {
		return v.(*window)
	}
	w := &window{}
	if err := l.windows.Add(key, w, cache.DefaultExpiration); err != nil {
		if v, ok := l.windows.Get(key); ok {
			return v.(*window)
		}
	}
	return w
}
