// Package orchestrator implements component F: per-source scheduling,
// global concurrency limits, retry/backoff via the underlying adapters,
// and graceful shutdown (spec.md §4.F). One Orchestrator drives every
// configured SourceConfig; it is single-process, single-instance (spec.md
// §4.F: "assumes no peers").
package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"blogwatch/internal/adapters"
	"blogwatch/internal/core"
	"blogwatch/internal/engineerr"
	"blogwatch/internal/enrich"
	"blogwatch/internal/entrystore"
	"blogwatch/internal/logger"
)

// Sweeper is implemented by entry store backends that support a
// background expiry sweep (spec.md §4.A: "a background sweep is
// optional"). Backends without one (e.g. MemoryStore, which evicts
// lazily on read and by LRU) simply don't implement it.
type Sweeper interface {
	Sweep(ctx context.Context) (int64, error)
}

var log = logger.Component("orchestrator")

// Deps bundles the collaborators a tick composes over: the entry store
// for tick/dedupe state, the adapter factory's fetch/render dependencies,
// and the enrichment pipeline every surviving candidate flows through.
type Deps struct {
	Entries     entrystore.Store
	AdapterDeps adapters.Deps
	Enrich      *enrich.Pipeline
}

// Config bounds concurrency and timeouts per spec.md §5.
type Config struct {
	MaxConcurrentSourceTasks  int64
	MaxConcurrentArticleTasks int64
	SourceTaskTimeout         time.Duration // per-tick hard cap, default 10 min
	ShutdownGrace             time.Duration // default 30s
}

// DefaultConfig returns the spec's documented defaults (spec.md §4.F, §5).
func DefaultConfig() Config {
	return Config{
		MaxConcurrentSourceTasks:  10,
		MaxConcurrentArticleTasks: 5,
		SourceTaskTimeout:         10 * time.Minute,
		ShutdownGrace:             30 * time.Second,
	}
}

// Orchestrator drives one tick per source on its own poll interval,
// fanning discovered candidates through the enrichment pipeline under
// global concurrency semaphores.
type Orchestrator struct {
	sources []core.SourceConfig
	deps    Deps
	cfg     Config

	sourceSem  *semaphore.Weighted
	articleSem *semaphore.Weighted

	// tickMus holds one mutex per source name, the "single writer per
	// source, many readers from other sources" discipline spec.md §5
	// describes for the in-process LastTickAt bookkeeping. The map itself
	// is built once at construction from the known source list, so no
	// lock is needed to read it.
	tickMus map[string]*sync.Mutex
}

// TickStats summarizes one orchestrator tick for logging and tests.
type TickStats struct {
	SourcesScheduled int
	SourcesSkipped   int // not due yet, or disabled
	CandidatesSeen   int
	PostsEnriched    int
	PostsSkipped     int // deduped (already seen)
	PostsFailed      int
	SourceErrors     map[string]error
}

// New builds an Orchestrator over a fixed, immutable source list (spec.md
// §3: "SourceConfigs are owned by the loader and handed immutably to F").
func New(sources []core.SourceConfig, deps Deps, cfg Config) *Orchestrator {
	if cfg.MaxConcurrentSourceTasks <= 0 {
		cfg.MaxConcurrentSourceTasks = 10
	}
	if cfg.MaxConcurrentArticleTasks <= 0 {
		cfg.MaxConcurrentArticleTasks = 5
	}
	if cfg.SourceTaskTimeout <= 0 {
		cfg.SourceTaskTimeout = 10 * time.Minute
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 30 * time.Second
	}

	mus := make(map[string]*sync.Mutex, len(sources))
	for _, s := range sources {
		mus[s.Name] = &sync.Mutex{}
	}

	return &Orchestrator{
		sources:    sources,
		deps:       deps,
		cfg:        cfg,
		sourceSem:  semaphore.NewWeighted(cfg.MaxConcurrentSourceTasks),
		articleSem: semaphore.NewWeighted(cfg.MaxConcurrentArticleTasks),
		tickMus:    mus,
	}
}

// Tick runs one scheduling pass: every enabled source whose poll
// interval has elapsed since its LastTickAt is scheduled as a
// SourceTask, bounded by MaxConcurrentSourceTasks, and run to completion
// before Tick returns (spec.md §4.F steps 1-2). Tick itself does not
// repeat; callers that want a running engine call Tick on their own
// schedule (a time.Ticker, or robfig/cron) until ctx is cancelled.
func (o *Orchestrator) Tick(ctx context.Context) TickStats {
	stats := TickStats{SourceErrors: make(map[string]error)}
	var mu sync.Mutex // guards stats across concurrent SourceTasks

	var wg sync.WaitGroup
	for _, src := range o.sources {
		src := src
		if !src.Enabled {
			stats.SourcesSkipped++
			continue
		}

		due, err := o.isDue(ctx, src)
		if err != nil {
			// spec.md §7 ErrStoreUnavailable: fatal per tick; report and
			// schedule no more sources. SourceTasks already started run to
			// completion and are waited for below.
			log.Error().Str("source", src.Name).Err(err).Msg("could not read tick state, halting tick")
			mu.Lock()
			stats.SourceErrors[src.Name] = err
			mu.Unlock()
			break
		}
		if !due {
			stats.SourcesSkipped++
			continue
		}

		if err := o.sourceSem.Acquire(ctx, 1); err != nil {
			// ctx cancelled while waiting for a slot; stop scheduling.
			break
		}
		stats.SourcesScheduled++

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer o.sourceSem.Release(1)

			taskCtx, cancel := context.WithTimeout(ctx, o.cfg.SourceTaskTimeout)
			defer cancel()

			seen, enriched, skipped, failed, taskErr := o.runSourceTask(taskCtx, src)

			mu.Lock()
			stats.CandidatesSeen += seen
			stats.PostsEnriched += enriched
			stats.PostsSkipped += skipped
			stats.PostsFailed += failed
			if taskErr != nil {
				stats.SourceErrors[src.Name] = taskErr
			}
			mu.Unlock()

			// spec.md §4.F step 4: "On completion or failure, update
			// tick:<source_name> to now so a failing source does not
			// monopolize the pipeline." This runs even when taskErr is
			// non-nil, deliberately: only ErrStoreUnavailable (handled
			// above, before scheduling) withholds the advance.
			o.markTicked(ctx, src)
		}()
	}

	wg.Wait()
	return stats
}

// isDue reports whether src's poll interval has elapsed since its last
// recorded tick, reading the persisted tick:<source_name> entry. A
// source with no prior recorded tick is always due.
func (o *Orchestrator) isDue(ctx context.Context, src core.SourceConfig) (bool, error) {
	mu := o.tickMus[src.Name]
	mu.Lock()
	defer mu.Unlock()

	raw, ok, err := o.deps.Entries.Get(ctx, entrystore.TickKey(src.Name))
	if err != nil {
		return false, engineerr.New(engineerr.KindStoreUnavailable, "orchestrator.isDue", err)
	}
	if !ok {
		return true, nil
	}
	last, err := time.Parse(time.RFC3339Nano, string(raw))
	if err != nil {
		// A malformed tick record should not wedge the source forever.
		return true, nil
	}
	return time.Since(last) >= src.PollInterval, nil
}

// markTicked persists now as src's LastTickAt, unconditionally (spec.md
// §4.F step 4).
func (o *Orchestrator) markTicked(ctx context.Context, src core.SourceConfig) {
	mu := o.tickMus[src.Name]
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := o.deps.Entries.Set(ctx, entrystore.TickKey(src.Name), []byte(now), 0); err != nil {
		log.Error().Str("source", src.Name).Err(err).Msg("failed to persist tick state")
	}
}

// runSourceTask implements spec.md §4.F step 3: select and run src's
// adapter, then fan surviving candidates through the enrichment pipeline
// under the global article-task semaphore. Candidates are processed in
// adapter-provided order within this task (spec.md §5); across
// concurrently running SourceTasks, no ordering is implied or needed.
func (o *Orchestrator) runSourceTask(ctx context.Context, src core.SourceConfig) (seen, enriched, skipped, failed int, err error) {
	// taskID correlates this task's log lines; it identifies an ephemeral
	// unit of work, not a persisted entity, so a random v4 UUID is enough
	// (no stable derivation is needed the way fingerprints require one).
	taskID := uuid.New().String()
	taskLog := log.With().Str("task_id", taskID).Str("source", src.Name).Logger()

	adapter := adapters.Select(src, o.deps.AdapterDeps)

	posts, discoverErr := adapter.Discover(ctx, src)
	if discoverErr != nil {
		taskLog.Warn().Str("adapter", adapter.Name()).Err(discoverErr).Msg("source discovery failed")
		return 0, 0, 0, 0, discoverErr
	}
	seen = len(posts)
	taskLog.Debug().Int("candidates", seen).Msg("source discovery complete")

	var wg sync.WaitGroup
	var mu sync.Mutex
	for _, post := range posts {
		post := post
		if acqErr := o.articleSem.Acquire(ctx, 1); acqErr != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer o.articleSem.Release(1)

			result := o.deps.Enrich.Enrich(ctx, post)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case result.Err != nil:
				failed++
			case result.Skipped:
				skipped++
			default:
				enriched++
			}
		}()
	}
	wg.Wait()

	return seen, enriched, skipped, failed, nil
}

// Run schedules Tick on a fixed cadence via robfig/cron (the teacher
// pack's cron-scheduling idiom, mirrored from a scheduled-job manager
// elsewhere in the examples) until ctx is cancelled, then waits up to
// cfg.ShutdownGrace for the in-flight tick to finish before returning
// (spec.md §4.F shutdown: "stop scheduling new SourceTasks, then wait up
// to a grace deadline for in-flight tasks"). interval should be shorter
// than the shortest configured SourceConfig.PollInterval so sources are
// polled promptly once due; Tick itself is a no-op for sources not yet
// due, so a short interval is cheap. If entries implements Sweeper, a
// second cron entry sweeps expired cache rows hourly (spec.md §4.A).
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) {
	// workCtx, not ctx, drives in-flight tick work: cancelling ctx should
	// stop scheduling new SourceTasks without immediately aborting tasks
	// already running, per spec.md §4.F's two-phase shutdown. workCtx is
	// only cancelled once the grace deadline below actually expires.
	workCtx, cancelWork := context.WithCancel(context.Background())
	defer cancelWork()

	sched := cron.New(cron.WithSeconds())

	if _, err := sched.AddFunc(intervalSpec(interval), func() {
		stats := o.Tick(workCtx)
		log.Info().
			Int("scheduled", stats.SourcesScheduled).
			Int("skipped", stats.SourcesSkipped).
			Int("candidates", stats.CandidatesSeen).
			Int("enriched", stats.PostsEnriched).
			Int("posts_skipped", stats.PostsSkipped).
			Int("posts_failed", stats.PostsFailed).
			Int("source_errors", len(stats.SourceErrors)).
			Msg("tick complete")
	}); err != nil {
		log.Error().Err(err).Msg("failed to schedule tick cron entry")
		return
	}

	if sweeper, ok := o.deps.Entries.(Sweeper); ok {
		if _, err := sched.AddFunc("@hourly", func() {
			if n, err := sweeper.Sweep(workCtx); err != nil {
				log.Warn().Err(err).Msg("cache sweep failed")
			} else if n > 0 {
				log.Debug().Int64("reaped", n).Msg("cache sweep complete")
			}
		}); err != nil {
			log.Error().Err(err).Msg("failed to schedule sweep cron entry")
		}
	}

	sched.Start()
	<-ctx.Done()

	// sched.Stop() itself implements "stop scheduling new SourceTasks":
	// it blocks new entries from firing and returns a context that
	// completes once already-running jobs return.
	stopCtx := sched.Stop()
	select {
	case <-stopCtx.Done():
		log.Info().Msg("orchestrator shutdown: in-flight ticks drained")
	case <-time.After(o.cfg.ShutdownGrace):
		log.Warn().Dur("grace", o.cfg.ShutdownGrace).Msg("orchestrator shutdown: grace period exceeded, cancelling in-flight work")
		cancelWork()
	}
}

// intervalSpec renders a duration as a robfig/cron "@every" spec.
func intervalSpec(d time.Duration) string {
	if d <= 0 {
		d = time.Minute
	}
	return fmt.Sprintf("@every %s", d)
}
