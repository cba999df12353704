package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/maauso/framesampler/internal/assemble"
	"github.com/maauso/framesampler/internal/extract"
	"github.com/maauso/framesampler/internal/storage"
	"github.com/maauso/framesampler/internal/vision"
)

// Options configures how a DirectoryRunner names and encodes outputs.
type Options struct {
	// OutputPrefix starts every output name.
	OutputPrefix string
	// OutputFPS is the frame rate of assembled videos.
	OutputFPS int
	// MaxFileSize rejects videos larger than this many bytes. Zero disables the check.
	MaxFileSize int64
}

// DirectoryRunner turns one directory job into its output.
type DirectoryRunner struct {
	extractor *extract.Extractor
	assembler *assemble.Assembler
	lib       vision.Library
	storage   storage.Storage
	opts      Options
	logger    *slog.Logger
}

// NewDirectoryRunner creates a DirectoryRunner. lib is only needed for the
// direct-stream strategy.
func NewDirectoryRunner(
	extractor *extract.Extractor,
	assembler *assemble.Assembler,
	lib vision.Library,
	store storage.Storage,
	opts Options,
	logger *slog.Logger,
) *DirectoryRunner {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.OutputPrefix == "" {
		opts.OutputPrefix = "output"
	}
	return &DirectoryRunner{
		extractor: extractor,
		assembler: assembler,
		lib:       lib,
		storage:   store,
		opts:      opts,
		logger:    logger,
	}
}

// OutputPath returns where the assembled video of a job is written.
func (r *DirectoryRunner) OutputPath(job ExtractionJob) string {
	return filepath.Join(r.storage.Root(), fmt.Sprintf("%s_%s.mp4", r.opts.OutputPrefix, job.Tag))
}

// FramesDir returns where an extraction-only job keeps its frames.
func (r *DirectoryRunner) FramesDir(job ExtractionJob) string {
	return filepath.Join(r.storage.Root(), fmt.Sprintf("%s_%s_frames", r.opts.OutputPrefix, job.Tag))
}

// Run processes every video of job. Per-video failures are recorded in the
// returned Stats; a non-nil error means the job itself failed (invalid plan,
// workspace setup or assembly). Temporary workspaces are registered with
// ledger as soon as they exist.
func (r *DirectoryRunner) Run(ctx context.Context, job ExtractionJob, ledger *Ledger) (Stats, error) {
	var stats Stats
	if err := job.Plan.Validate(); err != nil {
		return stats, err
	}

	videos := append([]string(nil), job.Videos...)
	sort.Strings(videos)

	strategy := SelectStrategy(job.Plan.Backend, job.Mode)
	logger := r.logger.With(
		slog.String("tag", job.Tag),
		slog.String("strategy", strategy.String()),
	)
	logger.Info("running job", slog.Int("videos", len(videos)))

	var err error
	switch strategy {
	case StrategyDirectStream:
		err = r.runDirectStream(ctx, job, videos, &stats, logger)
	case StrategyDirectProcess:
		plan := job.Plan
		plan.Backend = extract.BackendProcess
		err = r.runTempFrames(ctx, job, plan, videos, ledger, &stats, logger)
	case StrategyExtractionOnly:
		err = r.runExtractionOnly(ctx, job, videos, &stats, logger)
	case StrategyTempFrames:
		err = r.runTempFrames(ctx, job, job.Plan, videos, ledger, &stats, logger)
	default:
		err = fmt.Errorf("%w: %v", ErrUnknownStrategy, strategy)
	}
	if err != nil {
		return stats, err
	}

	logger.Info("job completed",
		slog.Int("processed", stats.FilesProcessed),
		slog.Int("failed", stats.FilesFailed),
	)
	return stats, nil
}

func (r *DirectoryRunner) runTempFrames(
	ctx context.Context,
	job ExtractionJob,
	plan SamplingPlan,
	videos []string,
	ledger *Ledger,
	stats *Stats,
	logger *slog.Logger,
) error {
	ws, err := r.storage.CreateWorkspace(ctx, fmt.Sprintf("%s_%s_temp", r.opts.OutputPrefix, job.Tag))
	if err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}
	ledger.Register(ws)
	logger.Debug("workspace created", slog.String("workspace", ws))

	if err := r.extractAll(ctx, plan, videos, ws, stats, logger); err != nil {
		return err
	}

	res, err := r.assembler.Assemble(ctx, ws, r.OutputPath(job), r.opts.OutputFPS)
	if err != nil {
		return fmt.Errorf("assemble output: %w", err)
	}
	if res.Output != "" {
		stats.Outputs = append(stats.Outputs, res.Output)
	}
	return nil
}

func (r *DirectoryRunner) runExtractionOnly(
	ctx context.Context,
	job ExtractionJob,
	videos []string,
	stats *Stats,
	logger *slog.Logger,
) error {
	dir := r.FramesDir(job)
	if err := r.storage.EnsureDir(ctx, dir); err != nil {
		return fmt.Errorf("create frames directory: %w", err)
	}

	before := stats.FilesProcessed
	if err := r.extractAll(ctx, job.Plan, videos, dir, stats, logger); err != nil {
		return err
	}
	if stats.FilesProcessed > before {
		stats.Outputs = append(stats.Outputs, dir)
	}
	return nil
}

// extractAll extracts every video into dir, recording per-video outcomes.
func (r *DirectoryRunner) extractAll(
	ctx context.Context,
	plan SamplingPlan,
	videos []string,
	dir string,
	stats *Stats,
	logger *slog.Logger,
) error {
	for i, video := range videos {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("job cancelled: %w", err)
		}

		size, err := r.checkSize(video)
		if err != nil {
			r.recordFailure(stats, logger, video, err)
			continue
		}

		res, err := r.extractor.Extract(ctx, extract.Request{
			VideoPath:  video,
			VideoIndex: i,
			TargetDir:  dir,
			Interval:   plan.Interval,
			Backend:    plan.Backend,
		})
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("job cancelled: %w", ctx.Err())
			}
			r.recordFailure(stats, logger, video, err)
			continue
		}

		stats.succeeded(size)
		if res.Skipped > 0 {
			stats.note("%s: skipped %d of %d frames", video, res.Skipped, res.Candidates)
		}
	}
	return nil
}

// checkSize returns the size of video, or ErrFileTooLarge when it is over the limit.
func (r *DirectoryRunner) checkSize(video string) (int64, error) {
	info, err := os.Stat(video)
	if err != nil {
		return 0, fmt.Errorf("stat video: %w", err)
	}
	if r.opts.MaxFileSize > 0 && info.Size() > r.opts.MaxFileSize {
		return 0, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, info.Size(), r.opts.MaxFileSize)
	}
	return info.Size(), nil
}

func (r *DirectoryRunner) recordFailure(stats *Stats, logger *slog.Logger, video string, err error) {
	logger.Warn("video failed",
		slog.String("video", video),
		slog.String("error", err.Error()),
	)
	stats.failed(video, err)
}
