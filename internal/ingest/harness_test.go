package ingest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/abakedjoetato/DiscordKillfeed/internal/config"
	"github.com/abakedjoetato/DiscordKillfeed/internal/deathlog"
	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
	"github.com/abakedjoetato/DiscordKillfeed/internal/storage"
)

const (
	testGuildID  = int64(9001)
	testServerID = "7777"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Ingest.PollInterval = 20 * time.Millisecond
	cfg.Ingest.ProgressInterval = time.Hour
	cfg.Ingest.InitialRefreshDelay = 20 * time.Millisecond
	cfg.Ingest.DedupWindow = 100
	return cfg
}

// newTestStore opens a throwaway database seeded with one guild and
// one registered server.
func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	if err := store.UpsertGuild(ctx, &domain.Guild{ID: testGuildID, Name: "Test Guild"}); err != nil {
		t.Fatalf("seeding guild: %v", err)
	}
	addServer(t, store, testServerID)
	return store
}

func addServer(t *testing.T, store *storage.Store, serverID string) {
	t.Helper()
	err := store.AddServer(context.Background(), &domain.GameServer{
		GuildID:  testGuildID,
		ServerID: serverID,
		Name:     "Test Server " + serverID,
		Host:     "203.0.113.5",
		Port:     22,
		Username: "deadside",
	})
	if err != nil {
		t.Fatalf("seeding server %s: %v", serverID, err)
	}
}

// fakeSource serves canned files and counts FetchLatest calls.
type fakeSource struct {
	mu        sync.Mutex
	latest    *deathlog.FileLines
	all       []deathlog.FileLines
	latestErr error
	allErr    error
	fetches   int
}

func (s *fakeSource) FetchLatest(ctx context.Context) (*deathlog.FileLines, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.latestErr != nil {
		return nil, s.latestErr
	}
	return s.latest, nil
}

func (s *fakeSource) FetchAll(ctx context.Context) ([]deathlog.FileLines, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allErr != nil {
		return nil, s.allErr
	}
	return s.all, nil
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) setLatest(f *deathlog.FileLines) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = f
}

func (s *fakeSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

// blockingSource holds FetchAll until its gate closes.
type blockingSource struct {
	fakeSource
	gate chan struct{}
}

func (s *blockingSource) FetchAll(ctx context.Context) ([]deathlog.FileLines, error) {
	<-s.gate
	return s.fakeSource.FetchAll(ctx)
}

// recordingPublisher captures everything published to it.
type recordingPublisher struct {
	mu        sync.Mutex
	kills     []*domain.KillEvent
	refreshes []string
}

func (p *recordingPublisher) PublishKill(guildID int64, serverID string, ev *domain.KillEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kills = append(p.kills, ev)
}

func (p *recordingPublisher) PublishRefresh(eventType string, guildID int64, serverID string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshes = append(p.refreshes, eventType)
}

func (p *recordingPublisher) killCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.kills)
}

func (p *recordingPublisher) refreshTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.refreshes))
	copy(out, p.refreshes)
	return out
}

// waitFor polls cond until it returns true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
