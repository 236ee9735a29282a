package frontier

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Throttle turns the store's politeness delays into blocking waits. Store
// operations never block on time; crawl workers that want real pacing wrap
// the store with a Throttle and call Wait before each fetch. Safe for
// concurrent use.
type Throttle struct {
	store    *Store
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
}

// NewThrottle creates a throttle drawing per-domain delays from the store.
func NewThrottle(store *Store) *Throttle {
	return &Throttle{
		store:    store,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a fetch from the domain respects its crawl delay, or
// until the context is cancelled.
func (t *Throttle) Wait(ctx context.Context, domain string) error {
	if domain == "" {
		return ErrEmptyDomain
	}
	return t.getLimiter(domain).Wait(ctx)
}

// Forget drops the domain's limiter so the next Wait re-reads the delay
// from the store, picking up rule changes.
func (t *Throttle) Forget(domain string) {
	t.mu.Lock()
	delete(t.limiters, domain)
	t.mu.Unlock()
}

// getLimiter gets or creates the limiter for a domain.
func (t *Throttle) getLimiter(domain string) *rate.Limiter {
	t.mu.RLock()
	limiter, exists := t.limiters[domain]
	t.mu.RUnlock()

	if exists {
		return limiter
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// Check again in case another goroutine created it
	if limiter, exists := t.limiters[domain]; exists {
		return limiter
	}

	limiter = rate.NewLimiter(rate.Every(t.store.CrawlDelay(domain, 0)), 1)
	t.limiters[domain] = limiter

	return limiter
}
