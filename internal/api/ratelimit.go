package api

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

type sessionLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter applies a token bucket per browser session.
type rateLimiter struct {
	mu        sync.Mutex
	perMinute int
	sessions  map[string]*sessionLimiter
	lastPrune time.Time
}

func newRateLimiter(perMinute int) *rateLimiter {
	return &rateLimiter{
		perMinute: perMinute,
		sessions:  make(map[string]*sessionLimiter),
		lastPrune: time.Now(),
	}
}

func (r *rateLimiter) Allow(sessionID string) bool {
	if r == nil || r.perMinute <= 0 {
		return true
	}
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	if now.Sub(r.lastPrune) > limiterIdle {
		for id, sl := range r.sessions {
			if now.Sub(sl.lastSeen) > limiterIdle {
				delete(r.sessions, id)
			}
		}
		r.lastPrune = now
	}

	sl, ok := r.sessions[sessionID]
	if !ok {
		sl = &sessionLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(r.perMinute)), r.perMinute),
		}
		r.sessions[sessionID] = sl
	}
	sl.lastSeen = now
	return sl.limiter.AllowN(now, 1)
}
