package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/abakedjoetato/DiscordKillfeed/internal/config"
	"github.com/abakedjoetato/DiscordKillfeed/internal/deathlog"
	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
	"github.com/abakedjoetato/DiscordKillfeed/internal/stats"
	"github.com/abakedjoetato/DiscordKillfeed/internal/storage"
)

// SourceFactory builds a death-log source for a registered server. The
// serve command picks SFTP or local fixtures here depending on dev
// mode.
type SourceFactory func(srv domain.GameServer) deathlog.Source

// EventPublisher fans ingestion events out to live consumers. Both
// methods must be safe for concurrent use.
type EventPublisher interface {
	PublishKill(guildID int64, serverID string, ev *domain.KillEvent)
	PublishRefresh(eventType string, guildID int64, serverID string, data interface{})
}

// Runner polls every registered server's newest death log on a fixed
// interval and applies the lines it has not seen yet. One failing
// server never stops the sweep.
type Runner struct {
	store     *storage.Store
	agg       *stats.Aggregator
	tracker   *SeenTracker
	sources   SourceFactory
	pub       EventPublisher
	refresher *Refresher
	logger    *slog.Logger
	interval  time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

// NewRunner builds a Runner. refresher and pub may be nil; a nil
// refresher skips the rebuild-in-progress check.
func NewRunner(cfg *config.Config, store *storage.Store, agg *stats.Aggregator, tracker *SeenTracker, sources SourceFactory, pub EventPublisher, refresher *Refresher, logger *slog.Logger) *Runner {
	return &Runner{
		store:     store,
		agg:       agg,
		tracker:   tracker,
		sources:   sources,
		pub:       pub,
		refresher: refresher,
		logger:    logger,
		interval:  cfg.Ingest.PollInterval,
		done:      make(chan struct{}),
	}
}

// Start launches the poll loop.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.pollLoop(ctx)
}

// Stop halts the poll loop and waits for the in-flight sweep.
func (r *Runner) Stop() {
	close(r.done)
	r.wg.Wait()
}

func (r *Runner) pollLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.pollAll(ctx)

	for {
		select {
		case <-r.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pollAll(ctx)
		}
	}
}

// pollAll sweeps every registered server once.
func (r *Runner) pollAll(ctx context.Context) {
	servers, err := r.store.ListAllServers(ctx)
	if err != nil {
		r.logger.Error("listing servers for poll", "error", err)
		return
	}
	for _, srv := range servers {
		if r.refresher != nil && r.refresher.Refreshing(srv.GuildID, srv.ServerID) {
			r.logger.Debug("skipping poll during historical refresh",
				"guild_id", srv.GuildID, "server_id", srv.ServerID)
			continue
		}
		if err := r.pollServer(ctx, srv); err != nil {
			r.logger.Warn("poll failed",
				"guild_id", srv.GuildID, "server_id", srv.ServerID, "error", err)
		}
	}
}

// pollServer fetches the newest log for one server and applies unseen
// lines in file order. Lines are marked seen only after their stats
// land, so a mid-batch failure retries the remainder next sweep.
func (r *Runner) pollServer(ctx context.Context, srv domain.GameServer) error {
	if err := r.tracker.Prime(ctx, srv.GuildID, srv.ServerID); err != nil {
		return fmt.Errorf("priming dedup: %w", err)
	}

	source := r.sources(srv)
	file, err := source.FetchLatest(ctx)
	if err != nil {
		return err
	}
	if file == nil || len(file.Lines) == 0 {
		r.logger.Debug("no new log data",
			"guild_id", srv.GuildID, "server_id", srv.ServerID)
		return nil
	}

	var applied int64
	for _, raw := range file.Lines {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if r.tracker.Seen(srv.GuildID, srv.ServerID, line) {
			continue
		}
		ev, err := deathlog.ParseLine(line)
		if err != nil {
			r.logger.Debug("skipping unparseable line",
				"guild_id", srv.GuildID, "server_id", srv.ServerID, "file", file.Name, "error", err)
			continue
		}
		if err := r.agg.Apply(ctx, srv.GuildID, srv.ServerID, ev); err != nil {
			return fmt.Errorf("applying event: %w", err)
		}
		r.tracker.Mark(srv.GuildID, srv.ServerID, line)
		applied++
		if r.pub != nil {
			r.pub.PublishKill(srv.GuildID, srv.ServerID, ev)
		}
	}
	if applied > 0 {
		r.logger.Info("applied death log lines",
			"guild_id", srv.GuildID, "server_id", srv.ServerID, "file", file.Name, "count", applied)
	}
	return nil
}
