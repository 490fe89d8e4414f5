package middlewares

import (
	"sync"
	"time"

	ttlworker "github.com/FloatTech/ttl"
	"golang.org/x/time/rate"

	"github.com/moyoez/pdfbot-go/types"
)

// limiterIdle is how long an unused per-user limiter is kept.
const limiterIdle = 10 * time.Minute

// UserLimiter is a token bucket per user id.
type UserLimiter struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters *ttlworker.Cache[int64, *rate.Limiter]
}

// NewUserLimiter returns nil when cfg disables limiting; a nil limiter allows everything.
func NewUserLimiter(cfg types.RateLimitConfig) *UserLimiter {
	if cfg.EventsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &UserLimiter{
		limit:    rate.Limit(cfg.EventsPerSecond),
		burst:    burst,
		limiters: ttlworker.NewCache[int64, *rate.Limiter](limiterIdle),
	}
}

// Allow reports whether userID may send an event now.
func (l *UserLimiter) Allow(userID int64) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	lim := l.limiters.Get(userID)
	if lim == nil {
		lim = rate.NewLimiter(l.limit, l.burst)
	}
	// refresh the idle deadline
	l.limiters.Set(userID, lim)
	l.mu.Unlock()
	return lim.Allow()
}
