package memstore

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count int
	reset time.Time
}

// RateLimiter is a fixed-window counter per (scope, subject).
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{windows: make(map[string]*window), now: time.Now}
}

func (r *RateLimiter) Allow(ctx context.Context, scope, subject string, limit int, per time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	k := scope + ":" + subject
	w, ok := r.windows[k]
	if !ok || !now.Before(w.reset) {
		w = &window{reset: now.Add(per)}
		r.windows[k] = w
	}
	w.count++
	return w.count <= limit, nil
}
