package handler

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/mmfshirokan/PriceCompare/internal/repository"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const apiKeyHeader = "X-API-KEY"

// Limiter decides whether one more request for key is still allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type windowLimiter struct {
	counter repository.WindowCounter
	limit   int64
	window  time.Duration
}

// NewWindowLimiter allows limit requests per key in each fixed window,
// counted in the shared store so every replica sees the same count.
func NewWindowLimiter(counter repository.WindowCounter, limit int, window time.Duration) Limiter {
	return &windowLimiter{
		counter: counter,
		limit:   int64(limit),
		window:  window,
	}
}

func (l *windowLimiter) Allow(ctx context.Context, key string) (bool, error) {
	n, err := l.counter.Hit(ctx, key, l.window)
	if err != nil {
		return false, err
	}

	return n <= l.limit, nil
}

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter is a per-process token bucket per key with the same average
// rate as NewWindowLimiter. Keys idle for a whole window are dropped by
// Cleanup: their bucket would be full again anyway.
type LocalLimiter struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	every   rate.Limit
	burst   int
	idle    time.Duration
	now     func() time.Time
}

func NewLocalLimiter(limit int, window time.Duration) *LocalLimiter {
	limit = max(limit, 1)

	return &LocalLimiter{
		entries: make(map[string]*localEntry),
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		idle:    window,
		now:     time.Now,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	now := l.now()

	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{limiter: rate.NewLimiter(l.every, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1), nil
}

// Cleanup removes keys not seen for a full window and returns how many it removed.
func (l *LocalLimiter) Cleanup() int {
	cutoff := l.now().Add(-l.idle)

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, entry := range l.entries {
		if !entry.lastSeen.After(cutoff) {
			delete(l.entries, key)
			removed++
		}
	}

	return removed
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (l *LocalLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := l.Cleanup(); n > 0 {
					log.Debugf("rate limiter: dropped %d idle keys", n)
				}
			}
		}
	}()
}

func (l *LocalLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.entries)
}

// RequireAPIKey rejects requests without an X-API-KEY header. When keys is
// non-empty the header must also be one of them.
func RequireAPIKey(keys []string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(apiKeyHeader)
			if key == "" {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "API Key required"})
				return
			}
			if len(keys) > 0 && !slices.Contains(keys, key) {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid API Key"})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit fails open when the limiter's store is unreachable.
func RateLimit(limiter Limiter) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(apiKeyHeader)

			ok, err := limiter.Allow(r.Context(), key)
			if err != nil {
				log.Warnf("rate limiter: %v", err)
				ok = true
			}
			if !ok {
				log.WithFields(log.Fields{"path": r.URL.Path}).Info("rate limit exceeded")
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "Rate limit exceeded. Try again later."})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		log.WithFields(log.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"duration": time.Since(start),
		}).Debug("request")
	})
}
