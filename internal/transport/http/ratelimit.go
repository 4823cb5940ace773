package http

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter gives every user its own token bucket holding limit tokens and
// refilling at limit per minute.
type rateLimiter struct {
	limit int
	every rate.Limit
	now   func() time.Time

	mu        sync.Mutex
	limiters  map[int64]*limiterEntry
	cleanupAt time.Time
}

func newRateLimiter(limit int) *rateLimiter {
	if limit <= 0 {
		return &rateLimiter{limit: 0}
	}
	return &rateLimiter{
		limit:    limit,
		every:    rate.Limit(float64(limit) / time.Minute.Seconds()),
		now:      time.Now,
		limiters: make(map[int64]*limiterEntry),
	}
}

func (r *rateLimiter) allow(userID int64) bool {
	if r == nil || r.limit <= 0 {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.After(r.cleanupAt) {
		r.cleanup(now)
		r.cleanupAt = now.Add(limiterIdleTTL / 2)
	}

	entry, ok := r.limiters[userID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(r.every, r.limit)}
		r.limiters[userID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// cleanup drops buckets idle long enough to have refilled. Must be called with mu held.
func (r *rateLimiter) cleanup(now time.Time) {
	cutoff := now.Add(-limiterIdleTTL)
	for id, entry := range r.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(r.limiters, id)
		}
	}
}
