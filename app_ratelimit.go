package relay

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client address.
type RateLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	limit    rate.Limit
	burst    int
	idle     time.Duration
	now      func() time.Time
}

type visitor struct {
	limiter *rate.Limiter
	seen    time.Time
}

// maxVisitors triggers a sweep of idle buckets.
const maxVisitors = 10000

// NewRateLimiter allows rps requests per second per client with the given
// burst. A non-positive rps disables limiting.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		visitors: make(map[string]*visitor),
		limit:    limit,
		burst:    burst,
		idle:     3 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether key may make another request now.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	v, ok := rl.visitors[key]
	if !ok {
		if len(rl.visitors) >= maxVisitors {
			rl.sweep(now)
		}
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[key] = v
	}
	v.seen = now
	return v.limiter.AllowN(now, 1)
}

func (rl *RateLimiter) sweep(now time.Time) {
	for key, v := range rl.visitors {
		if now.Sub(v.seen) > rl.idle {
			delete(rl.visitors, key)
		}
	}
}

// Middleware short-circuits with RateLimited once a client runs out of tokens.
func (rl *RateLimiter) Middleware() Middleware {
	return Named("rate-limit", MiddlewareFn(func(rc *RequestContext, next Next) (*HttpResponse, error) {
		key := rc.Request.IpAddress
		if key == "" {
			key = "unknown"
		}
		if !rl.Allow(key) {
			rc.Logger().WithField("ip", key).Warn("rate limit exceeded")
			return nil, Fail(KindRateLimited, "Too many requests")
		}
		return next()
	}))
}

// RateLimit is shorthand for NewRateLimiter(rps, burst).Middleware().
func RateLimit(rps float64, burst int) Middleware {
	return NewRateLimiter(rps, burst).Middleware()
}
