// Package stats applies parsed kill events to the persistent
// per-player counters.
package stats

import (
	"context"
	"fmt"

	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
	"github.com/abakedjoetato/DiscordKillfeed/internal/storage"
)

// Aggregator routes kill events into counter mutations. Each player
// mutation is a single upsert statement, so one event's effect on one
// record lands atomically even when several servers ingest at once.
// Effects across records (killer and victim) are not transactional.
type Aggregator struct {
	store *storage.Store
}

// New builds an aggregator over the store.
func New(store *storage.Store) *Aggregator {
	return &Aggregator{store: store}
}

// Apply folds one event into the stats for its (guild, server) scope.
// A suicide bumps only the victim's suicide counter. A PvP kill credits
// the killer and charges the victim. Every event also lands in the
// append-only kill log, which populates ev.ID.
func (a *Aggregator) Apply(ctx context.Context, guildID int64, serverID string, ev *domain.KillEvent) error {
	if ev.IsSuicide {
		if err := a.store.RecordSuicide(ctx, guildID, serverID, ev.Victim); err != nil {
			return fmt.Errorf("recording suicide: %w", err)
		}
	} else {
		if err := a.store.RecordKill(ctx, guildID, serverID, ev.Killer, ev.Distance); err != nil {
			return fmt.Errorf("recording kill: %w", err)
		}
		if err := a.store.RecordDeath(ctx, guildID, serverID, ev.Victim); err != nil {
			return fmt.Errorf("recording death: %w", err)
		}
	}
	if err := a.store.InsertKillEvent(ctx, guildID, serverID, ev); err != nil {
		return fmt.Errorf("appending kill event: %w", err)
	}
	return nil
}
