// Package ratelimit provides a best-effort per-key request limiter. The
// in-memory backend is scoped to a single instance and is explicitly not a
// correctness guarantee; the Redis backend shares the budget across
// instances.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter answers whether a key may make another request right now.
type Limiter interface {
	Allow(key string) bool
}

// fixed-window counter per key
type window struct {
	start time.Time
	count int
}

// MemoryLimiter is an in-process fixed-window limiter. State is lost on
// restart and not shared across instances; both are acceptable for this
// best-effort layer.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	limit   int
	period  time.Duration
	now     func() time.Time
}

// NewMemoryLimiter creates a limiter allowing limit requests per period per
// key.
func NewMemoryLimiter(limit int, period time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		period:  period,
		now:     time.Now,
	}
}

// Allow reports whether the key is under its budget and counts the request.
// Expired windows for other keys are pruned opportunistically so the map
// can't grow without bound.
func (l *MemoryLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.windows) > 10000 {
		l.prune(now)
	}

	w, ok := l.windows[key]
	if !ok || now.Sub(w.start) >= l.period {
		l.windows[key] = &window{start: now, count: 1}
		return true
	}

	if w.count >= l.limit {
		return false
	}
	w.count++
	return true
}

// prune drops expired windows. Caller holds the lock.
func (l *MemoryLimiter) prune(now time.Time) {
	for key, w := range l.windows {
		if now.Sub(w.start) >= l.period {
			delete(l.windows, key)
		}
	}
}
