// Package ingest drives death-log ingestion: the incremental poll loop
// over every registered server, on-demand historical rebuilds, and the
// line-level dedup that keeps the two from double counting.
package ingest

import (
	"context"
	"sync"

	"github.com/abakedjoetato/DiscordKillfeed/internal/storage"
)

// defaultPrimeWindow bounds how many stored raw lines warm a scope's
// dedup set after a restart. It only needs to cover the lines still
// visible in the newest remote file.
const defaultPrimeWindow = 5000

// scopeKey identifies one server within one guild.
type scopeKey struct {
	guildID  int64
	serverID string
}

// SeenTracker remembers which raw lines have already been applied, per
// (guild, server) scope. Scopes prime lazily from the persisted kill
// log so a restart does not re-apply lines still present in the newest
// remote file. Safe for concurrent use.
type SeenTracker struct {
	store       *storage.Store
	primeWindow int

	mu     sync.RWMutex
	seen   map[scopeKey]map[string]struct{}
	primed map[scopeKey]bool
}

// NewSeenTracker builds a tracker that primes scopes from the store.
// A primeWindow <= 0 uses the default.
func NewSeenTracker(store *storage.Store, primeWindow int) *SeenTracker {
	if primeWindow <= 0 {
		primeWindow = defaultPrimeWindow
	}
	return &SeenTracker{
		store:       store,
		primeWindow: primeWindow,
		seen:        make(map[scopeKey]map[string]struct{}),
		primed:      make(map[scopeKey]bool),
	}
}

// Prime loads a scope's recent stored raw lines into its seen set. The
// first call per scope does the work; later calls are no-ops until
// Clear.
func (t *SeenTracker) Prime(ctx context.Context, guildID int64, serverID string) error {
	key := scopeKey{guildID, serverID}
	t.mu.RLock()
	done := t.primed[key]
	t.mu.RUnlock()
	if done {
		return nil
	}

	lines, err := t.store.RecentRawLines(ctx, guildID, serverID, t.primeWindow)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.primed[key] {
		return nil
	}
	set := t.scopeLocked(key)
	for _, line := range lines {
		set[line] = struct{}{}
	}
	t.primed[key] = true
	return nil
}

// Seen reports whether a line was already applied for the scope.
func (t *SeenTracker) Seen(guildID int64, serverID, line string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.seen[scopeKey{guildID, serverID}][line]
	return ok
}

// Mark records a line as applied for the scope.
func (t *SeenTracker) Mark(guildID int64, serverID, line string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scopeLocked(scopeKey{guildID, serverID})[line] = struct{}{}
}

// Clear forgets a scope entirely, including its primed flag. Historical
// rebuilds call this; the next Prime re-warms from the rebuilt log.
func (t *SeenTracker) Clear(guildID int64, serverID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := scopeKey{guildID, serverID}
	delete(t.seen, key)
	delete(t.primed, key)
}

// Count returns how many lines a scope remembers.
func (t *SeenTracker) Count(guildID int64, serverID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.seen[scopeKey{guildID, serverID}])
}

func (t *SeenTracker) scopeLocked(key scopeKey) map[string]struct{} {
	set, ok := t.seen[key]
	if !ok {
		set = make(map[string]struct{})
		t.seen[key] = set
	}
	return set
}
