package vault

import (
	"net/http"
	"sync"

	"golang.org/x/time/rate"
)

// limiterPruneThreshold caps the visitor map before idle buckets are swept.
const limiterPruneThreshold = 1024

// visitorLimiter hands out one token bucket per caller+path pair so a noisy
// client cannot starve other accounts or other endpoints.
type visitorLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

func newVisitorLimiter(r rate.Limit, burst int) *visitorLimiter {
	return &visitorLimiter{
		limiters: map[string]*rate.Limiter{},
		rate:     r,
		burst:    burst,
	}
}

func (v *visitorLimiter) get(key string) *rate.Limiter {
	v.mu.Lock()
	defer v.mu.Unlock()

	// An idle bucket refills back to full burst, so sweeping full buckets
	// once the map grows keeps memory bounded without a background routine.
	if len(v.limiters) > limiterPruneThreshold {
		for k, lim := range v.limiters {
			if lim.Tokens() == float64(v.burst) {
				delete(v.limiters, k)
			}
		}
	}

	lim, ok := v.limiters[key]
	if !ok {
		lim = rate.NewLimiter(v.rate, v.burst)
		v.limiters[key] = lim
	}
	return lim
}

// limitRequests applies per-caller rate limiting. Authenticated callers are
// keyed by their account subject, anonymous ones by remote address; each path
// gets its own bucket. A nil limiter disables the middleware.
func (s *Server) limitRequests(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := r.RemoteAddr
		if identity, ok := identityFrom(r.Context()); ok {
			caller = identity.Subject
		}

		if !s.limiter.get(caller + ":" + r.URL.Path).Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}
