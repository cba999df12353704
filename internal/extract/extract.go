// Package extract pulls sampled frames out of a single video and persists them
// as numbered artifacts, using either the vision library or ffmpeg.
package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/maauso/framesampler/internal/artifact"
	"github.com/maauso/framesampler/internal/media"
	"github.com/maauso/framesampler/internal/vision"
)

// Static errors for extraction.
var (
	// ErrInvalidInterval is returned when the sampling interval is below 1.
	ErrInvalidInterval = errors.New("extract: interval must be at least 1")
	// ErrUnknownBackend is returned for a Backend value outside the known set.
	ErrUnknownBackend = errors.New("extract: unknown backend")
	// ErrNoFramesExtracted is returned when a video had candidate frames but
	// none of them could be persisted.
	ErrNoFramesExtracted = errors.New("extract: no frames extracted")
	// ErrBackendUnavailable is returned when the selected backend was not configured.
	ErrBackendUnavailable = errors.New("extract: backend not configured")
)

// Backend selects how frames are pulled from a video.
type Backend int

const (
	// BackendLibrary seeks and decodes each candidate frame through the vision library.
	BackendLibrary Backend = iota
	// BackendProcess delegates frame selection to one ffmpeg invocation.
	BackendProcess
)

// String returns the configuration name of the backend.
func (b Backend) String() string {
	switch b {
	case BackendLibrary:
		return "opencv"
	case BackendProcess:
		return "ffmpeg"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// ParseBackend maps a configuration value to a Backend.
func ParseBackend(s string) (Backend, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "opencv", "library", "":
		return BackendLibrary, nil
	case "ffmpeg", "process":
		return BackendProcess, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownBackend, s)
	}
}

// Request describes one extraction call.
type Request struct {
	VideoPath  string
	VideoIndex int
	TargetDir  string
	Interval   int
	Backend    Backend
}

// Result reports what an extraction call did.
type Result struct {
	// Candidates is the number of frame numbers that were attempted.
	// For the ffmpeg backend it equals Written.
	Candidates int
	// Written is the number of artifacts persisted.
	Written int
	// Skipped is the number of candidates that failed to seek, decode or encode.
	Skipped int
}

// CandidateFrames returns {0, interval, 2*interval, ...} bounded by total.
func CandidateFrames(interval, total int) ([]int, error) {
	if interval < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidInterval, interval)
	}
	if total <= 0 {
		return nil, nil
	}
	frames := make([]int, 0, (total+interval-1)/interval)
	for n := 0; n < total; n += interval {
		frames = append(frames, n)
	}
	return frames, nil
}

// Extractor persists sampled frames of one video at a time.
type Extractor struct {
	lib     vision.Library
	sampler media.FrameSampler
	logger  *slog.Logger
}

// NewExtractor creates an Extractor. Either collaborator may be nil when its
// backend is never selected.
func NewExtractor(lib vision.Library, sampler media.FrameSampler, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		lib:     lib,
		sampler: sampler,
		logger:  logger,
	}
}

// Extract samples req.VideoPath into req.TargetDir.
func (e *Extractor) Extract(ctx context.Context, req Request) (Result, error) {
	if req.Interval < 1 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidInterval, req.Interval)
	}
	if err := os.MkdirAll(req.TargetDir, 0o750); err != nil {
		return Result{}, fmt.Errorf("create target dir: %w", err)
	}

	var (
		res Result
		err error
	)
	switch req.Backend {
	case BackendLibrary:
		res, err = e.extractLibrary(ctx, req)
	case BackendProcess:
		res, err = e.extractProcess(ctx, req)
	default:
		return Result{}, fmt.Errorf("%w: %v", ErrUnknownBackend, req.Backend)
	}
	if err != nil {
		return res, err
	}

	if res.Candidates > 0 && res.Written == 0 {
		return res, fmt.Errorf("%w: %s: %d candidates", ErrNoFramesExtracted, req.VideoPath, res.Candidates)
	}

	e.logger.Debug("frames extracted",
		slog.String("video", req.VideoPath),
		slog.String("backend", req.Backend.String()),
		slog.Int("written", res.Written),
		slog.Int("skipped", res.Skipped),
	)
	return res, nil
}

func (e *Extractor) extractLibrary(ctx context.Context, req Request) (Result, error) {
	if e.lib == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrBackendUnavailable, BackendLibrary)
	}

	capture, err := e.lib.Open(req.VideoPath)
	if err != nil {
		return Result{}, fmt.Errorf("open video: %w", err)
	}
	defer func() { _ = capture.Close() }()

	return e.Sample(ctx, capture, req.VideoPath, req.Interval, func(n int, frame vision.Frame) (bool, error) {
		path := filepath.Join(req.TargetDir, artifact.Name(req.VideoIndex, n))
		if err := e.lib.WriteImage(path, frame); err != nil {
			e.warnSkip(req.VideoPath, n, err)
			return false, nil
		}
		return true, nil
	})
}

// VisitFunc receives each decoded, non-empty candidate frame. It reports
// whether the frame was kept; a non-nil error stops sampling. The frame is
// closed after VisitFunc returns.
type VisitFunc func(frame int, f vision.Frame) (kept bool, err error)

// Sample walks the candidate frames of an opened capture and hands each one
// to visit. Seek failures, decode failures and empty frames are logged and
// counted as skipped. When the frame count is unknown every frame is decoded
// until the stream ends.
func (e *Extractor) Sample(ctx context.Context, capture vision.Capture, name string, interval int, visit VisitFunc) (Result, error) {
	if interval < 1 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidInterval, interval)
	}

	props := capture.Props()
	if props.FrameCount <= 0 {
		return e.sampleSequential(ctx, capture, name, interval, visit)
	}

	candidates, err := CandidateFrames(interval, props.FrameCount)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for _, n := range candidates {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("extraction cancelled: %w", err)
		}
		res.Candidates++

		if err := capture.Seek(n); err != nil {
			res.Skipped++
			e.warnSkip(name, n, err)
			continue
		}
		frame, err := capture.Read()
		if err != nil {
			res.Skipped++
			e.warnSkip(name, n, err)
			continue
		}
		if err := e.visit(&res, name, n, frame, visit); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (e *Extractor) sampleSequential(ctx context.Context, capture vision.Capture, name string, interval int, visit VisitFunc) (Result, error) {
	var res Result
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("extraction cancelled: %w", err)
		}
		frame, err := capture.Read()
		if err != nil {
			// end of stream
			return res, nil
		}
		if n%interval != 0 {
			_ = frame.Close()
			continue
		}
		res.Candidates++
		if err := e.visit(&res, name, n, frame, visit); err != nil {
			return res, err
		}
	}
}

// visit hands a decoded frame to fn, updates res and closes the frame.
func (e *Extractor) visit(res *Result, name string, n int, frame vision.Frame, fn VisitFunc) error {
	defer func() { _ = frame.Close() }()

	if frame.Empty() {
		res.Skipped++
		e.warnSkip(name, n, vision.ErrNoFrame)
		return nil
	}
	kept, err := fn(n, frame)
	if err != nil {
		return err
	}
	if kept {
		res.Written++
	} else {
		res.Skipped++
	}
	return nil
}

func (e *Extractor) warnSkip(video string, n int, err error) {
	e.logger.Warn("skipping frame",
		slog.String("video", video),
		slog.Int("frame", n),
		slog.String("error", err.Error()),
	)
}

// extractProcess runs ffmpeg once, then renames its sequentially numbered
// output to artifact names carrying the source frame number.
func (e *Extractor) extractProcess(ctx context.Context, req Request) (Result, error) {
	if e.sampler == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrBackendUnavailable, BackendProcess)
	}

	pattern := filepath.Join(req.TargetDir, artifact.StagingPattern(req.VideoIndex))
	if err := e.sampler.SampleFrames(ctx, req.VideoPath, pattern, req.Interval); err != nil {
		e.discardStaging(req)
		return Result{}, fmt.Errorf("sample frames: %w", err)
	}

	entries, err := os.ReadDir(req.TargetDir)
	if err != nil {
		return Result{}, fmt.Errorf("read target dir: %w", err)
	}

	var res Result
	renamed := make([]string, 0, len(entries))
	for _, entry := range entries {
		video, seq, ok := artifact.ParseStaging(entry.Name())
		if !ok || video != req.VideoIndex {
			continue
		}
		from := filepath.Join(req.TargetDir, entry.Name())
		to := filepath.Join(req.TargetDir, artifact.Name(req.VideoIndex, seq*req.Interval))
		if err := os.Rename(from, to); err != nil {
			e.removeFrames(renamed)
			e.discardStaging(req)
			return Result{}, fmt.Errorf("rename staged frame: %w", err)
		}
		renamed = append(renamed, to)
		res.Written++
	}
	res.Candidates = res.Written
	return res, nil
}

// removeFrames deletes artifacts written for a video whose extraction failed
// part way through.
func (e *Extractor) removeFrames(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil {
			e.logger.Warn("failed to remove frame",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
		}
	}
}

// discardStaging removes staging files left by a failed ffmpeg run. Output of
// a failed run is never trusted.
func (e *Extractor) discardStaging(req Request) {
	entries, err := os.ReadDir(req.TargetDir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		video, _, ok := artifact.ParseStaging(entry.Name())
		if !ok || video != req.VideoIndex {
			continue
		}
		if err := os.Remove(filepath.Join(req.TargetDir, entry.Name())); err != nil {
			e.logger.Warn("failed to remove staged frame",
				slog.String("path", entry.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}
