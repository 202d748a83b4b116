package server

import (
	"sync"

	"golang.org/x/time/rate"
)

// ingestLimiter keeps one token bucket per tenant. Unscoped publishes
// share the bucket keyed by "".
type ingestLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newIngestLimiter(perSecond float64, burst int) *ingestLimiter {
	return &ingestLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow reports whether tenant may publish now. A zero rate disables limiting.
func (l *ingestLimiter) Allow(tenant string) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	lim, ok := l.limiters[tenant]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[tenant] = lim
	}
	l.mu.Unlock()

	return lim.Allow()
}

// Forget drops tenant's bucket.
func (l *ingestLimiter) Forget(tenant string) {
	l.mu.Lock()
	delete(l.limiters, tenant)
	l.mu.Unlock()
}
