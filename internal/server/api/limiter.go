package api

import (
	"golang.org/x/time/rate"

	"github.com/looplj/lifeline/internal/pkg/xmap"
)

// refreshLimiters hands out one token bucket per collection.
type refreshLimiters struct {
	limit rate.Limit
	burst int

	limiters *xmap.Map[string, *rate.Limiter]
}

func newRefreshLimiters(rps float64, burst int) *refreshLimiters {
	if burst <= 0 {
		burst = max(1, int(rps*2))
	}

	return &refreshLimiters{
		limit:    rate.Limit(rps),
		burst:    burst,
		limiters: xmap.New[string, *rate.Limiter](),
	}
}

func (l *refreshLimiters) Allow(name string) bool {
	if l.limit <= 0 {
		return true
	}

	limiter, ok := l.limiters.Load(name)
	if !ok {
		limiter, _ = l.limiters.LoadOrStore(name, rate.NewLimiter(l.limit, l.burst))
	}

	return limiter.Allow()
}
