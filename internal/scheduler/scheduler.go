package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/terroirdata/vineclimate/internal/climate"
)

// Pipeline runs one full sync + insight cycle. Runs are strictly sequential:
// a TryLock single-flight guard drops any run (scheduled or manually
// triggered) that would overlap an in-flight one.
type Pipeline struct {
	syncEngine *climate.SyncEngine
	composer   *climate.Composer
	store      climate.Store
	runTimeout time.Duration

	runMu sync.Mutex
}

// NewPipeline creates a Pipeline. runTimeout bounds one full cycle so a hung
// upstream call cannot block the worker forever.
func NewPipeline(syncEngine *climate.SyncEngine, composer *climate.Composer, store climate.Store, runTimeout time.Duration) *Pipeline {
	return &Pipeline{
		syncEngine: syncEngine,
		composer:   composer,
		store:      store,
		runTimeout: runTimeout,
	}
}

// RunOnce executes sync and, when new data arrived or no insights exist yet,
// recomputes insights for every region. Returns immediately when another run
// holds the guard.
func (p *Pipeline) RunOnce(ctx context.Context) {
	if !p.runMu.TryLock() {
		log.Println("pipeline: previous run still in progress; skipping")
		return
	}
	defer p.runMu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, p.runTimeout)
	defer cancel()

	report, err := p.syncEngine.Sync(ctx)
	if err != nil {
		// Already logged with its kind; retry happens on the next interval.
		return
	}

	hasInsights, err := p.store.HasInsights(ctx)
	if err != nil {
		log.Printf("ERROR: pipeline: failed to check insight state: %v", err)
		return
	}
	if report.DaysFetched == 0 && hasInsights {
		log.Println("pipeline: no new data and insights exist; skipping recompute")
		return
	}

	if err := p.composer.RunForAllRegions(ctx); err != nil {
		log.Printf("ERROR: pipeline: insight batch failed, rolled back: %v", err)
	}
}

// Scheduler periodically runs the pipeline, daily in the default
// configuration.
type Scheduler struct {
	scheduler *gocron.Scheduler
	pipeline  *Pipeline
	interval  time.Duration
}

// New creates a Scheduler around the pipeline.
func New(pipeline *Pipeline, interval time.Duration) *Scheduler {
	return &Scheduler{
		scheduler: gocron.NewScheduler(time.UTC),
		pipeline:  pipeline,
		interval:  interval,
	}
}

// Start schedules the periodic job and starts the underlying scheduler. The
// first run fires immediately so a fresh deployment backfills without
// waiting a full interval.
func (s *Scheduler) Start() error {
	interval := s.interval
	if interval <= 0 {
		interval = 24 * time.Hour
	}

	_, err := s.scheduler.Every(interval).StartImmediately().Do(func() {
		log.Println("scheduler: running climate pipeline")
		s.pipeline.RunOnce(context.Background())
		log.Println("scheduler: climate pipeline finished")
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future jobs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
