// Package ratelimit gates outbound calls per price source so that no
// source is queried faster than its configured requests-per-minute quota.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// PerSource keeps one token-bucket limiter per source id. Buckets refill
// at quota/minute and hold at most one quota's worth of burst, so a burst
// of quota calls is admitted and the next call waits for the window to
// roll over. Safe for concurrent use; unrelated sources never contend on
// the same bucket.
type PerSource struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	quotas   map[string]int
}

// New creates a limiter with per-source requests-per-minute quotas.
func New(quotas map[string]int) *PerSource {
	q := make(map[string]int, len(quotas))
	for id, rpm := range quotas {
		q[id] = rpm
	}
	return &PerSource{
		limiters: make(map[string]*rate.Limiter),
		quotas:   q,
	}
}

func (p *PerSource) limiter(sourceID string) *rate.Limiter {
	p.mu.RLock()
	l, ok := p.limiters[sourceID]
	p.mu.RUnlock()
	if ok {
		return l
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.limiters[sourceID]; ok {
		return l
	}

	rpm := p.quotas[sourceID]
	if rpm <= 0 {
		// unknown source: deny everything until configured
		l = rate.NewLimiter(0, 0)
	} else {
		l = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), rpm)
	}
	p.limiters[sourceID] = l
	return l
}

// Allow reports whether a call for sourceID may proceed now and, if so,
// consumes one slot. Denial has no side effects.
func (p *PerSource) Allow(sourceID string) bool {
	return p.limiter(sourceID).Allow()
}

// SetQuota replaces the requests-per-minute quota for one source.
// Intended for explicit reconfiguration, not the hot path.
func (p *PerSource) SetQuota(sourceID string, rpm int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotas[sourceID] = rpm
	delete(p.limiters, sourceID)
}
