// Package ratelimit provides per-key sliding-window admission control.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most limit requests per key within window.
type Limiter struct {
	hits   map[string][]time.Time
	now    func() time.Time
	window time.Duration
	limit  int
	mu     sync.Mutex
}

// New creates a limiter. Non-positive arguments fall back to 30 per minute.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		hits:   make(map[string][]time.Time),
		now:    time.Now,
		window: window,
		limit:  limit,
	}
}

// WithClock replaces time.Now and returns the limiter.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Allow records a request for key and reports whether it fits the window.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	hits := l.pruneLocked(key, now)
	if len(hits) >= l.limit {
		return false
	}
	l.hits[key] = append(hits, now)
	return true
}

// Remaining reports how many requests key may still make in the window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.limit - len(l.pruneLocked(key, l.now()))
	if n < 0 {
		return 0
	}
	return n
}

// Limit returns the configured maximum per window.
func (l *Limiter) Limit() int { return l.limit }

// Sweep forgets keys with no hits inside the window.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for key := range l.hits {
		if len(l.pruneLocked(key, now)) == 0 {
			removed++
		}
	}
	return removed
}

func (l *Limiter) pruneLocked(key string, now time.Time) []time.Time {
	hits := l.hits[key]
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	hits = hits[i:]
	if len(hits) == 0 {
		delete(l.hits, key)
		return nil
	}
	l.hits[key] = hits
	return hits
}
