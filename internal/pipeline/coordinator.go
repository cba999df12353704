package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// JobRunner runs a single directory job. DirectoryRunner is the production
// implementation.
type JobRunner interface {
	Run(ctx context.Context, job ExtractionJob, ledger *Ledger) (Stats, error)
}

// WorkspaceRemover deletes temporary workspaces.
type WorkspaceRemover interface {
	RemoveWorkspace(ctx context.Context, path string) error
}

// Compile-time check that DirectoryRunner implements JobRunner.
var _ JobRunner = (*DirectoryRunner)(nil)

// Coordinator runs a set of jobs and cleans up after them.
type Coordinator struct {
	runner  JobRunner
	remover WorkspaceRemover
	workers int
	logger  *slog.Logger
	now     func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithWorkers sets the size of the parallel worker pool.
func WithWorkers(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithClock overrides the time source used for Stats.Elapsed.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) {
		c.now = now
	}
}

// NewCoordinator creates a Coordinator. The worker pool defaults to one worker.
func NewCoordinator(runner JobRunner, remover WorkspaceRemover, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		runner:  runner,
		remover: remover,
		workers: 1,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every job and returns the merged statistics. A failing or
// panicking job never stops its siblings. After all jobs return, every
// workspace in the ledger is removed exactly once; removal errors are logged.
// Elapsed covers everything up to the end of cleanup.
func (c *Coordinator) RunAll(ctx context.Context, jobs []ExtractionJob, mode ConcurrencyMode) Stats {
	start := c.now()
	ledger := NewLedger()

	var (
		mu    sync.Mutex
		stats Stats
	)
	collect := func(job ExtractionJob, s Stats, err error) {
		mu.Lock()
		defer mu.Unlock()
		stats.Merge(s)
		if err != nil {
			stats.note("%s: %v", job.Tag, err)
		}
	}

	c.logger.Info("starting run",
		slog.Int("jobs", len(jobs)),
		slog.String("mode", mode.String()),
		slog.Int("workers", c.workers),
	)

	switch mode {
	case Sequential:
		for _, job := range jobs {
			s, err := c.runJob(ctx, job, ledger)
			collect(job, s, err)
		}
	default:
		// Jobs report failures through collect, never through the group, so
		// one failure cannot cancel the others.
		var g errgroup.Group
		g.SetLimit(c.workers)
		for _, job := range jobs {
			g.Go(func() error {
				s, err := c.runJob(ctx, job, ledger)
				collect(job, s, err)
				return nil
			})
		}
		_ = g.Wait()
	}

	c.cleanup(ledger)

	stats.Elapsed = c.now().Sub(start)
	c.logger.Info("run finished",
		slog.Int("processed", stats.FilesProcessed),
		slog.Int("failed", stats.FilesFailed),
		slog.Int("outputs", len(stats.Outputs)),
		slog.Float64("success_rate", stats.SuccessRate()),
		slog.Duration("elapsed", stats.Elapsed),
	)
	return stats
}

// runJob runs one job, turning a panic into that job's error.
func (c *Coordinator) runJob(ctx context.Context, job ExtractionJob, ledger *Ledger) (stats Stats, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			c.logger.Error("job panicked",
				slog.String("tag", job.Tag),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())),
			)
			err = fmt.Errorf("%w: %v", ErrJobPanicked, rec)
		}
	}()

	stats, err = c.runner.Run(ctx, job, ledger)
	if err != nil {
		c.logger.Error("job failed",
			slog.String("tag", job.Tag),
			slog.String("error", err.Error()),
		)
	}
	return stats, err
}

// cleanup drains the ledger and removes each workspace. It ignores ctx
// cancellation so a cancelled run still cleans up.
func (c *Coordinator) cleanup(ledger *Ledger) {
	ctx := context.Background()
	for _, path := range ledger.Drain() {
		if err := c.remover.RemoveWorkspace(ctx, path); err != nil {
			c.logger.Warn("failed to remove workspace",
				slog.String("workspace", path),
				slog.String("error", err.Error()),
			)
			continue
		}
		c.logger.Debug("workspace removed", slog.String("workspace", path))
	}
}
