package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/abakedjoetato/DiscordKillfeed/internal/config"
	"github.com/abakedjoetato/DiscordKillfeed/internal/deathlog"
	"github.com/abakedjoetato/DiscordKillfeed/internal/domain"
	"github.com/abakedjoetato/DiscordKillfeed/internal/stats"
	"github.com/abakedjoetato/DiscordKillfeed/internal/storage"
)

// ErrNoData is returned by a historical refresh when the server's log
// directory holds no death logs at all. Existing stats are left alone.
var ErrNoData = errors.New("no death logs found")

// Refresh run states.
const (
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
)

// Refresh run phases.
const (
	PhaseFetching = "fetching"
	PhaseApplying = "applying"
)

// Progress is a snapshot of a historical refresh run.
type Progress struct {
	RunID          string    `json:"run_id"`
	GuildID        int64     `json:"guild_id"`
	ServerID       string    `json:"server_id"`
	State          string    `json:"state"`
	Phase          string    `json:"phase,omitempty"`
	FilesDone      int       `json:"files_done"`
	FilesTotal     int       `json:"files_total"`
	LinesProcessed int64     `json:"lines_processed"`
	LinesTotal     int64     `json:"lines_total"`
	Error          string    `json:"error,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Completion summarizes a finished historical refresh.
type Completion struct {
	RunID          string    `json:"run_id"`
	GuildID        int64     `json:"guild_id"`
	ServerID       string    `json:"server_id"`
	EventsApplied  int64     `json:"events_applied"`
	LinesSkipped   int64     `json:"lines_skipped"`
	LinesTotal     int64     `json:"lines_total"`
	FilesTotal     int       `json:"files_total"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	CompletedAt    time.Time `json:"completed_at"`
}

// ProgressFunc receives progress snapshots during a refresh.
type ProgressFunc func(Progress)

// Refresher rebuilds a server's stats from every retained death log.
// One refresh per (guild, server) scope runs at a time; concurrent
// requests are rejected with ErrRefreshInProgress.
type Refresher struct {
	store   *storage.Store
	agg     *stats.Aggregator
	tracker *SeenTracker
	sources SourceFactory
	pub     EventPublisher
	logger  *slog.Logger

	guard         *refreshGuard
	progressEvery time.Duration
	initialDelay  time.Duration

	mu      sync.Mutex
	latest  map[scopeKey]Progress
	timers  map[scopeKey]*time.Timer
	stopped bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewRefresher builds a Refresher wired to the given stores and event
// publisher. pub may be nil when nothing consumes refresh events.
func NewRefresher(cfg *config.Config, store *storage.Store, agg *stats.Aggregator, tracker *SeenTracker, sources SourceFactory, pub EventPublisher, logger *slog.Logger) *Refresher {
	return &Refresher{
		store:         store,
		agg:           agg,
		tracker:       tracker,
		sources:       sources,
		pub:           pub,
		logger:        logger,
		guard:         newRefreshGuard(),
		progressEvery: cfg.Ingest.ProgressInterval,
		initialDelay:  cfg.Ingest.InitialRefreshDelay,
		latest:        make(map[scopeKey]Progress),
		timers:        make(map[scopeKey]*time.Timer),
		done:          make(chan struct{}),
	}
}

// Refresh runs a historical rebuild synchronously and returns its
// summary. onProgress may be nil.
func (r *Refresher) Refresh(ctx context.Context, guildID int64, serverID string, onProgress ProgressFunc) (*Completion, error) {
	key := scopeKey{guildID, serverID}
	if err := r.guard.tryAcquire(key); err != nil {
		return nil, err
	}
	return r.run(ctx, key, uuid.NewString(), onProgress)
}

// Trigger starts a historical rebuild in the background and returns
// its run ID. The re-entrancy check happens before Trigger returns, so
// a busy scope fails fast with ErrRefreshInProgress.
func (r *Refresher) Trigger(guildID int64, serverID string) (string, error) {
	key := scopeKey{guildID, serverID}
	if err := r.guard.tryAcquire(key); err != nil {
		return "", err
	}
	runID := uuid.NewString()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		// Detached from the caller's request context: the rebuild
		// outlives the HTTP response that started it.
		if _, err := r.run(context.Background(), key, runID, nil); err != nil && !errors.Is(err, ErrNoData) {
			r.logger.Error("historical refresh failed",
				"guild_id", guildID, "server_id", serverID, "run_id", runID, "error", err)
		}
	}()
	return runID, nil
}

// Refreshing reports whether a refresh is running for the scope.
func (r *Refresher) Refreshing(guildID int64, serverID string) bool {
	return r.guard.isActive(scopeKey{guildID, serverID})
}

// Status returns the most recent progress snapshot for the scope.
func (r *Refresher) Status(guildID int64, serverID string) (Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.latest[scopeKey{guildID, serverID}]
	return p, ok
}

// ScheduleInitial arms a one-shot refresh for a freshly registered
// server after the configured delay. Re-registering the same scope
// resets the timer.
func (r *Refresher) ScheduleInitial(guildID int64, serverID string) {
	key := scopeKey{guildID, serverID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if t, ok := r.timers[key]; ok {
		t.Stop()
	}
	r.timers[key] = time.AfterFunc(r.initialDelay, func() {
		r.mu.Lock()
		delete(r.timers, key)
		stopped := r.stopped
		r.mu.Unlock()
		if stopped {
			return
		}
		if _, err := r.Trigger(key.guildID, key.serverID); err != nil {
			r.logger.Warn("initial refresh not started",
				"guild_id", key.guildID, "server_id", key.serverID, "error", err)
		}
	})
}

// CancelScheduled drops a pending initial refresh, if any.
func (r *Refresher) CancelScheduled(guildID int64, serverID string) {
	key := scopeKey{guildID, serverID}
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.timers[key]; ok {
		t.Stop()
		delete(r.timers, key)
	}
}

// Stop cancels pending timers and waits for in-flight refreshes.
func (r *Refresher) Stop() {
	r.mu.Lock()
	r.stopped = true
	for key, t := range r.timers {
		t.Stop()
		delete(r.timers, key)
	}
	r.mu.Unlock()
	close(r.done)
	r.wg.Wait()
}

func (r *Refresher) run(ctx context.Context, key scopeKey, runID string, onProgress ProgressFunc) (*Completion, error) {
	defer r.guard.release(key)

	started := time.Now()
	srv, err := r.store.GetServer(ctx, key.guildID, key.serverID)
	if err != nil {
		r.fail(key, runID, started, onProgress, err)
		return nil, err
	}
	source := r.sources(*srv)

	r.emit(key, onProgress, Progress{
		RunID:     runID,
		GuildID:   key.guildID,
		ServerID:  key.serverID,
		State:     StateRunning,
		Phase:     PhaseFetching,
		StartedAt: started,
		UpdatedAt: started,
	})
	r.logger.Info("historical refresh started",
		"guild_id", key.guildID, "server_id", key.serverID, "run_id", runID, "source", source.Name())

	files, err := source.FetchAll(ctx)
	if err != nil {
		r.fail(key, runID, started, onProgress, err)
		return nil, err
	}
	var total int64
	for _, f := range files {
		total += int64(len(f.Lines))
	}
	if len(files) == 0 || total == 0 {
		// Nothing fetched means nothing is cleared either.
		r.fail(key, runID, started, onProgress, ErrNoData)
		return nil, ErrNoData
	}

	// Wipe only after the fetch produced data.
	r.tracker.Clear(key.guildID, key.serverID)
	if err := r.store.ClearServerData(ctx, key.guildID, key.serverID); err != nil {
		r.fail(key, runID, started, onProgress, err)
		return nil, err
	}

	var (
		processed int64
		applied   int64
		skipped   int64
		lastEmit  = time.Now()
	)
	emitRunning := func(filesDone int) {
		r.emit(key, onProgress, Progress{
			RunID:          runID,
			GuildID:        key.guildID,
			ServerID:       key.serverID,
			State:          StateRunning,
			Phase:          PhaseApplying,
			FilesDone:      filesDone,
			FilesTotal:     len(files),
			LinesProcessed: processed,
			LinesTotal:     total,
			StartedAt:      started,
			UpdatedAt:      time.Now(),
		})
		lastEmit = time.Now()
	}
	emitRunning(0)

	for i, file := range files {
		select {
		case <-r.done:
			err := errors.New("refresh aborted by shutdown")
			r.fail(key, runID, started, onProgress, err)
			return nil, err
		case <-ctx.Done():
			r.fail(key, runID, started, onProgress, ctx.Err())
			return nil, ctx.Err()
		default:
		}
		for _, raw := range file.Lines {
			processed++
			line := strings.TrimSpace(raw)
			if line == "" {
				continue
			}
			ev, err := deathlog.ParseLine(line)
			if err != nil {
				skipped++
				r.logger.Debug("skipping unparseable line",
					"guild_id", key.guildID, "server_id", key.serverID, "file", file.Name, "error", err)
				continue
			}
			if err := r.agg.Apply(ctx, key.guildID, key.serverID, ev); err != nil {
				r.fail(key, runID, started, onProgress, err)
				return nil, err
			}
			applied++
			if time.Since(lastEmit) >= r.progressEvery {
				emitRunning(i)
			}
		}
		if time.Since(lastEmit) >= r.progressEvery {
			emitRunning(i + 1)
		}
	}

	elapsed := time.Since(started)
	completion := &Completion{
		RunID:          runID,
		GuildID:        key.guildID,
		ServerID:       key.serverID,
		EventsApplied:  applied,
		LinesSkipped:   skipped,
		LinesTotal:     total,
		FilesTotal:     len(files),
		ElapsedSeconds: elapsed.Seconds(),
		CompletedAt:    time.Now(),
	}
	r.emit(key, onProgress, Progress{
		RunID:          runID,
		GuildID:        key.guildID,
		ServerID:       key.serverID,
		State:          StateCompleted,
		FilesDone:      len(files),
		FilesTotal:     len(files),
		LinesProcessed: processed,
		LinesTotal:     total,
		StartedAt:      started,
		UpdatedAt:      time.Now(),
	})
	if r.pub != nil {
		r.pub.PublishRefresh(domain.EventRefreshComplete, key.guildID, key.serverID, completion)
	}
	r.logger.Info("historical refresh completed",
		"guild_id", key.guildID, "server_id", key.serverID, "run_id", runID,
		"events_applied", applied, "lines_skipped", skipped, "files", len(files),
		"elapsed", elapsed.Round(time.Millisecond))
	return completion, nil
}

// emit records the snapshot for Status and forwards it to the caller
// and the event bus.
func (r *Refresher) emit(key scopeKey, onProgress ProgressFunc, p Progress) {
	r.mu.Lock()
	r.latest[key] = p
	r.mu.Unlock()
	if onProgress != nil {
		onProgress(p)
	}
	if r.pub != nil && p.State == StateRunning {
		r.pub.PublishRefresh(domain.EventRefreshProgress, key.guildID, key.serverID, p)
	}
}

func (r *Refresher) fail(key scopeKey, runID string, started time.Time, onProgress ProgressFunc, cause error) {
	p := Progress{
		RunID:     runID,
		GuildID:   key.guildID,
		ServerID:  key.serverID,
		State:     StateFailed,
		Error:     cause.Error(),
		StartedAt: started,
		UpdatedAt: time.Now(),
	}
	r.mu.Lock()
	if prev, ok := r.latest[key]; ok && prev.RunID == runID {
		p.Phase = prev.Phase
		p.FilesDone = prev.FilesDone
		p.FilesTotal = prev.FilesTotal
		p.LinesProcessed = prev.LinesProcessed
		p.LinesTotal = prev.LinesTotal
	}
	r.latest[key] = p
	r.mu.Unlock()
	if onProgress != nil {
		onProgress(p)
	}
	if errors.Is(cause, ErrNoData) {
		r.logger.Warn("historical refresh found no logs",
			"guild_id", key.guildID, "server_id", key.serverID, "run_id", runID)
	}
}
