package auth

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"publish-auth/internal/observability"
)

// LoginRateLimiter is a per-client sliding window held in process memory.
// Each serverless instance counts on its own.
type LoginRateLimiter struct {
	mu        sync.Mutex
	maxHits   int
	window    time.Duration
	hitsByKey map[string][]time.Time
	maxKeys   int
	now       func() time.Time
}

func NewLoginRateLimiter(maxHits int, window time.Duration) *LoginRateLimiter {
	if maxHits <= 0 {
		maxHits = 10
	}
	if window <= 0 {
		window = time.Minute
	}

	return &LoginRateLimiter{
		maxHits:   maxHits,
		window:    window,
		hitsByKey: make(map[string][]time.Time),
		maxKeys:   5000,
		now:       time.Now,
	}
}

func (l *LoginRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed, retryAfter := l.Allow(observability.ClientIP(r))
		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second).Seconds())))
			writeError(w, http.StatusTooManyRequests, "too many login attempts")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Allow records a hit for key unless the window is already full, in which
// case it reports how long until the oldest hit falls out.
func (l *LoginRateLimiter) Allow(key string) (bool, time.Duration) {
	now := l.now()
	threshold := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	hits := pruneBefore(l.hitsByKey[key], threshold)
	if len(hits) >= l.maxHits {
		l.hitsByKey[key] = hits
		retryAfter := hits[0].Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}

	l.hitsByKey[key] = append(hits, now)
	if len(l.hitsByKey) > l.maxKeys {
		l.evict(threshold)
	}

	return true, 0
}

func (l *LoginRateLimiter) evict(threshold time.Time) {
	for key, hits := range l.hitsByKey {
		if len(hits) == 0 || !hits[len(hits)-1].After(threshold) {
			delete(l.hitsByKey, key)
		}
	}
}

func pruneBefore(hits []time.Time, threshold time.Time) []time.Time {
	kept := hits[:0]
	for _, hit := range hits {
		if hit.After(threshold) {
			kept = append(kept, hit)
		}
	}
	return kept
}
