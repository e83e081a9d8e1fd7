// Package ratelimit counts login attempts per client in fixed windows.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store counts hits on key within a window and reports whether the hit is
// within limit. When it is not, retryAfter is the time left in the window.
type Store interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, retryAfter time.Duration, err error)
}

type Limiter struct {
	store  Store
	prefix string
	limit  int
	window time.Duration
}

// New returns a limiter over store. A non-positive limit disables limiting.
func New(store Store, prefix string, limit int, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		store:  store,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l == nil || l.store == nil || l.limit <= 0 {
		return true, 0, nil
	}
	if key == "" {
		key = "unknown"
	}
	return l.store.Allow(ctx, l.prefix+key, l.limit, l.window)
}

type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

// Allow increments the counter and starts the window on the first hit.
func (s *RedisStore) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, window)
		return nil
	})
	if err != nil {
		return false, 0, err
	}

	if incr.Val() <= int64(limit) {
		return true, 0, nil
	}

	ttl, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl <= 0 {
		return false, window, nil
	}
	return false, ttl, nil
}

// MemoryStore is the single-process fallback used when no Redis is configured.
type MemoryStore struct {
	mu        sync.Mutex
	windows   map[string]*window
	lastSweep time.Time
	now       func() time.Time
}

type window struct {
	count   int
	resetAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

func (s *MemoryStore) Allow(ctx context.Context, key string, limit int, d time.Duration) (bool, time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Sub(s.lastSweep) >= d {
		s.sweepLocked(now)
	}

	w, ok := s.windows[key]
	if ok && !now.Before(w.resetAt) {
		delete(s.windows, key)
		ok = false
	}
	if !ok {
		w = &window{resetAt: now.Add(d)}
		s.windows[key] = w
	}
	w.count++

	if w.count <= limit {
		return true, 0, nil
	}
	return false, w.resetAt.Sub(now), nil
}

// sweepLocked drops expired windows. It runs at most once per window length;
// Allow resets an expired window it meets in between.
func (s *MemoryStore) sweepLocked(now time.Time) {
	s.lastSweep = now
	for key, w := range s.windows {
		if !now.Before(w.resetAt) {
			delete(s.windows, key)
		}
	}
}
