package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/maauso/framesampler/internal/extract"
	"github.com/maauso/framesampler/internal/vision"
)

// ErrNoDimensions is recorded for a video that reports no frame size while the
// direct-stream writer still needs one.
var ErrNoDimensions = errors.New("pipeline: video reports no frame size")

// streamOutput is the growing output video of a direct-stream job. The writer
// is opened lazily from the first video with usable dimensions.
type streamOutput struct {
	path          string
	fps           int
	writer        vision.Writer
	width, height int
	frames        int
}

func (o *streamOutput) close() error {
	if o.writer == nil {
		return nil
	}
	err := o.writer.Close()
	o.writer = nil
	return err
}

// runDirectStream decodes every video with the vision library and appends the
// sampled frames to one output video. Frames whose size differs from the
// writer's are skipped.
func (r *DirectoryRunner) runDirectStream(
	ctx context.Context,
	job ExtractionJob,
	videos []string,
	stats *Stats,
	logger *slog.Logger,
) (err error) {
	if r.lib == nil {
		return fmt.Errorf("%w: %s", extract.ErrBackendUnavailable, extract.BackendLibrary)
	}

	out := &streamOutput{path: r.OutputPath(job), fps: r.opts.OutputFPS}
	defer func() {
		if cerr := out.close(); cerr != nil && err == nil {
			err = fmt.Errorf("close output: %w", cerr)
		}
		if err != nil || out.frames == 0 {
			// never leave a placeholder or partial output behind
			_ = os.Remove(out.path)
			return
		}
		stats.Outputs = append(stats.Outputs, out.path)
		logger.Info("output written",
			slog.String("output", out.path),
			slog.Int("frames", out.frames),
		)
	}()

	for _, video := range videos {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("job cancelled: %w", err)
		}

		size, err := r.checkSize(video)
		if err != nil {
			r.recordFailure(stats, logger, video, err)
			continue
		}

		res, err := r.streamVideo(ctx, video, job.Plan.Interval, out, logger)
		if err != nil {
			var fatal *writerError
			if errors.As(err, &fatal) || ctx.Err() != nil {
				return err
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

// writerError wraps failures of the output writer. They end the job because
// the output can no longer be trusted.
type writerError struct {
	err error
}

func (e *writerError) Error() string { return "output writer: " + e.err.Error() }

func (e *writerError) Unwrap() error { return e.err }

func (r *DirectoryRunner) streamVideo(
	ctx context.Context,
	video string,
	interval int,
	out *streamOutput,
	logger *slog.Logger,
) (extract.Result, error) {
	capture, err := r.lib.Open(video)
	if err != nil {
		return extract.Result{}, fmt.Errorf("open video: %w", err)
	}
	defer func() { _ = capture.Close() }()

	if out.writer == nil {
		props := capture.Props()
		if props.Width <= 0 || props.Height <= 0 {
			return extract.Result{}, fmt.Errorf("%w: %s", ErrNoDimensions, video)
		}
		w, err := r.lib.NewWriter(out.path, float64(out.fps), props.Width, props.Height)
		if err != nil {
			return extract.Result{}, &writerError{err: err}
		}
		out.writer, out.width, out.height = w, props.Width, props.Height
		logger.Debug("output writer opened",
			slog.String("output", out.path),
			slog.Int("width", out.width),
			slog.Int("height", out.height),
		)
	}

	res, err := r.extractor.Sample(ctx, capture, video, interval, func(n int, frame vision.Frame) (bool, error) {
		w, h := frame.Size()
		if w != out.width || h != out.height {
			logger.Warn("skipping frame with mismatched size",
				slog.String("video", video),
				slog.Int("frame", n),
				slog.Int("width", w),
				slog.Int("height", h),
			)
			return false, nil
		}
		if err := out.writer.Write(frame); err != nil {
			return false, &writerError{err: err}
		}
		out.frames++
		return true, nil
	})
	if err != nil {
		return res, err
	}
	if res.Candidates > 0 && res.Written == 0 {
		return res, fmt.Errorf("%w: %s: %d candidates", extract.ErrNoFramesExtracted, video, res.Candidates)
	}
	return res, nil
}
