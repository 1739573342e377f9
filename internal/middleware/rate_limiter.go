package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/jlongo78/joe-ritchey-machining/internal/apierror"
)

// ── General API rate limiter ──────────────────────────────────────────────────

// rateEntry is one client IP's token bucket.
type rateEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type ipLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateEntry
	limit   rate.Limit
	burst   int
}

func (l *ipLimiter) get(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[ip]
	if !ok {
		e = &rateEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastSeen = now
	return e.limiter
}

// purge drops clients idle for longer than idle.
func (l *ipLimiter) purge(now time.Time, idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	purged := 0
	for ip, e := range l.entries {
		if now.Sub(e.lastSeen) > idle {
			delete(l.entries, ip)
			purged++
		}
	}
	return purged
}

// RateLimiter allows limit requests per window per client IP, with bursts up
// to limit.
func RateLimiter(limit int, window time.Duration) gin.HandlerFunc {
	l := &ipLimiter{
		entries: make(map[string]*rateEntry),
		limit:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
	}
	go purgeIdle(l, window)

	return func(c *gin.Context) {
		if !l.get(c.ClientIP(), time.Now()).Allow() {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apierror.New("Too many requests. Try again shortly."))
			return
		}
		c.Next()
	}
}

// ── Purge goroutine ───────────────────────────────────────────────────────────
// Periodically removes idle clients so the map does not grow with IPs that
// never return.

const purgeInterval = 5 * time.Minute

func purgeIdle(l *ipLimiter, window time.Duration) {
	ticker := time.NewTicker(purgeInterval)
	defer ticker.Stop()

	for now := range ticker.C {
		if n := l.purge(now, window+purgeInterval); n > 0 {
			log.Debug().Int("entries_purged", n).Msg("rate limiter map purged")
		}
	}
}
