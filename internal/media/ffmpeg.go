package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"time"
)

// Static errors for media operations.
var (
	// ErrInvalidInterval is returned when the sampling interval is not positive.
	ErrInvalidInterval = errors.New("invalid interval: must be at least 1")
	// ErrInvalidFrameRate is returned when the output frame rate is not positive.
	ErrInvalidFrameRate = errors.New("invalid frame rate: must be positive")
)

// maxStderrBytes caps how much ffmpeg stderr is kept on an FFmpegError.
const maxStderrBytes = 8 * 1024

// FFmpegProcessor implements FrameSampler and Concatenator using the ffmpeg CLI.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// timeout bounds a single invocation. Zero means no bound.
	timeout time.Duration
}

// Compile-time checks.
var (
	_ FrameSampler = (*FFmpegProcessor)(nil)
	_ Concatenator = (*FFmpegProcessor)(nil)
)

// Option configures an FFmpegProcessor.
type Option func(*FFmpegProcessor)

// WithTimeout bounds every ffmpeg invocation. The process is killed when the
// timeout expires.
func WithTimeout(d time.Duration) Option {
	return func(p *FFmpegProcessor) {
		p.timeout = d
	}
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegProcessor(ffmpegPath string, opts ...Option) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	p := &FFmpegProcessor{ffmpegPath: ffmpegPath}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// SampleFrames extracts every interval-th frame of videoPath as JPEG images.
// Output numbering starts at 0, so output k holds source frame k*interval.
func (p *FFmpegProcessor) SampleFrames(ctx context.Context, videoPath, outputPattern string, interval int) error {
	if interval < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidInterval, interval)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-y",
		"-i", videoPath,
		// The comma inside mod() must be escaped for the filtergraph parser.
		"-vf", fmt.Sprintf("select=not(mod(n\\,%d))", interval),
		"-vsync", "vfr",
		"-q:v", "2",
		"-start_number", "0",
		outputPattern,
	}

	return p.runFFmpeg(ctx, args)
}

// ConcatImages re-encodes a concat manifest of still images into an H.264 video.
// Stream copy is not an option here because the inputs are single images.
func (p *FFmpegProcessor) ConcatImages(ctx context.Context, manifestPath, output string, fps int) error {
	if fps <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidFrameRate, fps)
	}

	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-y",
		"-f", "concat",
		"-safe", "0", // Allow absolute paths
		"-i", manifestPath,
		// yuv420p needs even dimensions
		"-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(fps),
		output,
	}

	return p.runFFmpeg(ctx, args)
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled or timed out
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: tail(stderr.String(), maxStderrBytes),
			Err:    err,
		}
	}

	return nil
}

// tail keeps the last n bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
