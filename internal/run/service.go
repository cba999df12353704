package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/maauso/framesampler/internal/pipeline"
)

// Static errors for the run service.
var (
	// ErrInvalidRequest is returned when a request cannot start a run.
	ErrInvalidRequest = errors.New("invalid run request")
	// ErrNoVideosFound is returned when no input location resolves to a video.
	ErrNoVideosFound = errors.New("no videos found in inputs")
)

// Scanner groups input locations into directories of videos.
type Scanner interface {
	Scan(inputs []string) map[string][]string
}

// Coordinator runs a set of directory jobs.
type Coordinator interface {
	RunAll(ctx context.Context, jobs []pipeline.ExtractionJob, mode pipeline.ConcurrencyMode) pipeline.Stats
}

// Publisher uploads a produced file and returns its URL.
type Publisher interface {
	Publish(ctx context.Context, key, path string) (url string, err error)
}

// Service creates and executes runs.
type Service struct {
	repo        Repository
	scanner     Scanner
	coordinator Coordinator
	publisher   Publisher
	logger      *slog.Logger
}

// NewService creates a new Service. publisher may be nil when publishing is
// not available.
func NewService(
	repo Repository,
	scanner Scanner,
	coordinator Coordinator,
	publisher Publisher,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		scanner:     scanner,
		coordinator: coordinator,
		publisher:   publisher,
		logger:      logger,
	}
}

// Validate checks that a request can start a run.
func (r Request) Validate() error {
	if len(r.Inputs) == 0 {
		return fmt.Errorf("%w: at least one input is required", ErrInvalidRequest)
	}
	plan := pipeline.SamplingPlan{Interval: r.Interval, Backend: r.Backend}
	if err := plan.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// Submit validates req and persists a queued run.
func (s *Service) Submit(ctx context.Context, req Request) (*Run, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	run := New(req)
	s.logger.Info("creating new run",
		slog.String("run_id", run.ID),
		slog.Int("inputs", len(req.Inputs)),
		slog.Int("interval", req.Interval),
		slog.String("backend", req.Backend.String()),
		slog.String("mode", req.Mode.String()),
		slog.Bool("publish", req.Publish),
	)

	if err := s.repo.Save(ctx, run); err != nil {
		s.logger.Error("failed to save run",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("save run: %w", err)
	}
	return run, nil
}

// Execute runs the pipeline for a queued run and records the outcome. The
// returned error is non-nil only when the run could not execute at all;
// per-file failures are reported in the run's Stats.
func (s *Service) Execute(ctx context.Context, runID string) (*Run, error) {
	run, err := s.repo.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if err := run.Start(); err != nil {
		return nil, fmt.Errorf("start run %s: %w", runID, err)
	}
	s.save(ctx, run)

	logger := s.logger.With(slog.String("run_id", run.ID))
	req := run.Request

	groups := s.scanner.Scan(req.Inputs)
	if len(groups) == 0 {
		_ = run.Fail(ErrNoVideosFound.Error())
		s.save(ctx, run)
		logger.Error("run failed", slog.String("error", ErrNoVideosFound.Error()))
		return run, ErrNoVideosFound
	}

	jobs := pipeline.BuildJobs(groups, pipeline.SamplingPlan{
		Interval: req.Interval,
		Backend:  req.Backend,
	}, req.Mode)
	logger.Info("executing run", slog.Int("jobs", len(jobs)))

	stats := s.coordinator.RunAll(ctx, jobs, req.Concurrency)

	if ctx.Err() != nil {
		_ = run.Cancel(stats)
		s.save(ctx, run)
		logger.Warn("run cancelled", slog.String("error", ctx.Err().Error()))
		return run, nil
	}

	var urls []string
	if req.Publish {
		urls = s.publish(ctx, run.ID, &stats, logger)
	}

	if err := run.Complete(stats, urls); err != nil {
		return nil, fmt.Errorf("complete run %s: %w", runID, err)
	}
	s.save(ctx, run)

	logger.Info("run completed",
		slog.Int("processed", stats.FilesProcessed),
		slog.Int("failed", stats.FilesFailed),
		slog.Int("outputs", len(stats.Outputs)),
	)
	return run, nil
}

// Process submits and executes a run in one call.
func (s *Service) Process(ctx context.Context, req Request) (*Run, error) {
	run, err := s.Submit(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.Execute(ctx, run.ID)
}

// Get retrieves a run by ID.
func (s *Service) Get(ctx context.Context, runID string) (*Run, error) {
	return s.repo.FindByID(ctx, runID)
}

// List returns all runs, oldest first.
func (s *Service) List(ctx context.Context) ([]*Run, error) {
	return s.repo.List(ctx)
}

// publish uploads every produced video. Frame directories are not uploaded.
// Failures are recorded on stats and never undo local outputs.
func (s *Service) publish(ctx context.Context, runID string, stats *pipeline.Stats, logger *slog.Logger) []string {
	if s.publisher == nil {
		stats.Errors = append(stats.Errors, "publish: no publisher configured")
		return nil
	}

	var urls []string
	for _, output := range stats.Outputs {
		info, err := os.Stat(output)
		if err != nil || info.IsDir() {
			continue
		}
		key := runID + "/" + filepath.Base(output)
		url, err := s.publisher.Publish(ctx, key, output)
		if err != nil {
			logger.Warn("failed to publish output",
				slog.String("output", output),
				slog.String("error", err.Error()),
			)
			stats.Errors = append(stats.Errors, fmt.Sprintf("publish %s: %v", output, err))
			continue
		}
		urls = append(urls, url)
	}
	return urls
}

// save persists run, logging failures. The run's in-memory state stays the
// source of truth for the caller.
func (s *Service) save(ctx context.Context, run *Run) {
	if err := s.repo.Save(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("failed to save run",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)
	}
}
