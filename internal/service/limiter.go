package service

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"
)

// LimiterRegistry hands out one token bucket per investor.
type LimiterRegistry struct {
	mu       sync.Mutex
	limiters map[common.Address]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func NewLimiterRegistry(qps float64, burst int) *LimiterRegistry {
	limit := rate.Limit(qps)
	if qps <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &LimiterRegistry{
		limiters: make(map[common.Address]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (r *LimiterRegistry) LimiterFor(investor common.Address) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.limiters[investor]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[investor] = l
	}
	return l
}

func (r *LimiterRegistry) Allow(investor common.Address) bool {
	return r.LimiterFor(investor).Allow()
}
