package gate

import (
	"context"
	"strings"
	"sync"
	"time"
)

// ActiveLister reports the search terms currently being processed by
// the broker, across every worker process sharing it.
type ActiveLister interface {
	ActiveTerms(ctx context.Context) (map[string]struct{}, error)
}

// Gate is the best-effort enqueue gate: it refuses a term that was
// enqueued too recently or is being processed right now. Races around
// the broker's active set can let the odd duplicate through; the
// idempotent upsert absorbs those.
type Gate struct {
	minSpacing time.Duration
	ttl        time.Duration
	active     ActiveLister

	mu     sync.Mutex
	recent map[string]time.Time

	now func() time.Time
}

// New builds a Gate. active may be nil, in which case only the spacing
// rule applies.
func New(minSpacing, ttl time.Duration, active ActiveLister) *Gate {
	return &Gate{
		minSpacing: minSpacing,
		ttl:        ttl,
		active:     active,
		recent:     make(map[string]time.Time),
		now:        time.Now,
	}
}

// CanSchedule reports whether a job for term may be enqueued now. The
// returned reason is empty when scheduling is allowed.
func (g *Gate) CanSchedule(ctx context.Context, term string) (bool, string) {
	key := normalize(term)
	now := g.now()

	g.mu.Lock()
	g.evictLocked(now)
	last, seen := g.recent[key]
	g.mu.Unlock()

	if seen && now.Sub(last) < g.minSpacing {
		return false, "already scheduled or too recent"
	}

	if g.active != nil {
		terms, err := g.active.ActiveTerms(ctx)
		// An unreachable broker should not block enqueues; the check
		// is advisory.
		if err == nil {
			if _, busy := terms[key]; busy {
				return false, "already scheduled or too recent"
			}
		}
	}

	return true, ""
}

// RecordScheduled stamps term with the current time. Call it after a
// successful enqueue.
func (g *Gate) RecordScheduled(term string) {
	key := normalize(term)
	now := g.now()

	g.mu.Lock()
	g.evictLocked(now)
	g.recent[key] = now
	g.mu.Unlock()
}

// evictLocked drops entries older than the TTL. Callers hold g.mu.
func (g *Gate) evictLocked(now time.Time) {
	for key, at := range g.recent {
		if now.Sub(at) > g.ttl {
			delete(g.recent, key)
		}
	}
}

// normalize folds a term to its dedup key. Terms differing only in
// case or surrounding space hit the same upstream records.
func normalize(term string) string {
	return strings.ToLower(strings.TrimSpace(term))
}
