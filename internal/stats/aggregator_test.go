package stats

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/abakedjoetato/DiscordKillfeed/internal/deathlog"
	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
	"github.com/abakedjoetato/DiscordKillfeed/internal/storage"
)

func newTestAggregator(t *testing.T) (*Aggregator, *storage.Store) {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.UpsertGuild(ctx, &domain.Guild{ID: 1, Name: "Test"}); err != nil {
		t.Fatalf("upsert guild: %v", err)
	}
	srv := &domain.GameServer{GuildID: 1, ServerID: "7777", Host: "203.0.113.5"}
	if err := store.AddServer(ctx, srv); err != nil {
		t.Fatalf("add server: %v", err)
	}
	return New(store), store
}

func TestApplyKillCreditsBothSides(t *testing.T) {
	agg, store := newTestAggregator(t)
	ctx := context.Background()

	ev, err := deathlog.ParseLine("2024-01-01T00:00:00Z,Alice,Bob,AK74,150.5")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := agg.Apply(ctx, 1, "7777", ev); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if ev.ID == 0 {
		t.Fatalf("event not persisted")
	}

	alice, err := store.GetPlayerStats(ctx, 1, "7777", "Alice")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if alice.Kills != 1 || alice.Deaths != 0 || alice.TotalDistance != 150.5 {
		t.Fatalf("unexpected killer stats: %+v", alice)
	}
	bob, err := store.GetPlayerStats(ctx, 1, "7777", "Bob")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if bob.Deaths != 1 || bob.Kills != 0 {
		t.Fatalf("unexpected victim stats: %+v", bob)
	}

	events, err := store.RecentKills(ctx, 1, "7777", 10)
	if err != nil {
		t.Fatalf("recent kills: %v", err)
	}
	if len(events) != 1 || events[0].Killer != "Alice" {
		t.Fatalf("event log missing kill: %+v", events)
	}
}

func TestApplySuicideOnlyBumpsSuicides(t *testing.T) {
	agg, store := newTestAggregator(t)
	ctx := context.Background()

	ev, err := deathlog.ParseLine("2024-01-01T00:00:00Z,Carl,Carl,Suicide_by_relocation,N/A")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := agg.Apply(ctx, 1, "7777", ev); err != nil {
		t.Fatalf("apply: %v", err)
	}

	carl, err := store.GetPlayerStats(ctx, 1, "7777", "Carl")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if carl.Suicides != 1 || carl.Kills != 0 || carl.Deaths != 0 || carl.KDR != 0 {
		t.Fatalf("unexpected stats after suicide: %+v", carl)
	}

	events, err := store.RecentKills(ctx, 1, "7777", 10)
	if err != nil {
		t.Fatalf("recent kills: %v", err)
	}
	if len(events) != 1 || events[0].Weapon != domain.WeaponMenuSuicide || !events[0].IsSuicide {
		t.Fatalf("event log missing suicide: %+v", events)
	}
}

// The aggregator has no dedup of its own: applying the same event twice
// counts twice. Skipping repeats is the ingestion tracker's job.
func TestApplyIsNotIdempotent(t *testing.T) {
	agg, store := newTestAggregator(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ev := &domain.KillEvent{
			Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			Killer:    "Alice",
			Victim:    "Bob",
			Weapon:    "AK74",
			Distance:  100,
			RawLine:   "2024-01-01T00:00:00Z,Alice,Bob,AK74,100",
		}
		if err := agg.Apply(ctx, 1, "7777", ev); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	alice, err := store.GetPlayerStats(ctx, 1, "7777", "Alice")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if alice.Kills != 2 || alice.TotalDistance != 200 {
		t.Fatalf("unexpected stats: %+v", alice)
	}
}
