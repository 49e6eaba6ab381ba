package ingest

import (
	"errors"
	"sync"
)

// ErrRefreshInProgress is returned when a historical refresh is
// requested for a scope that already has one running. Requests are
// rejected, never queued.
var ErrRefreshInProgress = errors.New("refresh already in progress")

// refreshGuard holds the per-scope re-entrancy locks for historical
// refreshes.
type refreshGuard struct {
	mu     sync.Mutex
	active map[scopeKey]struct{}
}

func newRefreshGuard() *refreshGuard {
	return &refreshGuard{active: make(map[scopeKey]struct{})}
}

func (g *refreshGuard) tryAcquire(key scopeKey) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[key]; busy {
		return ErrRefreshInProgress
	}
	g.active[key] = struct{}{}
	return nil
}

func (g *refreshGuard) release(key scopeKey) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.active, key)
}

func (g *refreshGuard) isActive(key scopeKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.active[key]
	return busy
}
