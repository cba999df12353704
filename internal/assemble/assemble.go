// Package assemble orders sampled frame artifacts and concatenates them into
// one output video.
package assemble

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maauso/framesampler/internal/artifact"
	"github.com/maauso/framesampler/internal/media"
)

// ManifestName is the concat manifest written next to the artifacts.
const ManifestName = "frames.txt"

// Static errors for assembly.
var (
	// ErrInvalidFrameRate is returned when the output frame rate is not positive.
	ErrInvalidFrameRate = errors.New("assemble: frame rate must be positive")
	// ErrEmptyOutput is returned when the transcoder exits cleanly but leaves
	// an empty file behind.
	ErrEmptyOutput = errors.New("assemble: transcoder produced an empty output")
)

// Collect lists dir and returns its artifacts in assembly order. Files whose
// names are not artifact names are ignored. A missing dir has no artifacts.
func Collect(dir string) ([]artifact.Artifact, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list artifacts: %w", err)
	}

	var artifacts []artifact.Artifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		a, ok := artifact.Parse(filepath.Join(dir, entry.Name()))
		if !ok {
			continue
		}
		artifacts = append(artifacts, a)
	}

	artifact.Sort(artifacts)
	return artifacts, nil
}

// WriteManifest writes an ffmpeg concat manifest listing artifacts in order,
// each shown for one frame at fps.
func WriteManifest(w io.Writer, artifacts []artifact.Artifact, fps int) error {
	if fps <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidFrameRate, fps)
	}

	duration := strconv.FormatFloat(1/float64(fps), 'f', -1, 64)
	var b strings.Builder
	for _, a := range artifacts {
		b.WriteString("file '")
		b.WriteString(quote(a.Path))
		b.WriteString("'\nduration ")
		b.WriteString(duration)
		b.WriteString("\n")
	}

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// quote escapes single quotes for the concat demuxer.
func quote(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// Result reports what Assemble produced.
type Result struct {
	// Frames is the number of artifacts concatenated.
	Frames int
	// Output is the path of the produced video, empty when nothing was produced.
	Output string
}

// Assembler concatenates a workspace of artifacts into a video.
type Assembler struct {
	concat media.Concatenator
	logger *slog.Logger
}

// NewAssembler creates an Assembler.
func NewAssembler(concat media.Concatenator, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		concat: concat,
		logger: logger,
	}
}

// Assemble concatenates every artifact in dir into output at fps. With no
// artifacts it succeeds without creating output.
func (a *Assembler) Assemble(ctx context.Context, dir, output string, fps int) (Result, error) {
	if fps <= 0 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidFrameRate, fps)
	}

	artifacts, err := Collect(dir)
	if err != nil {
		return Result{}, err
	}
	if len(artifacts) == 0 {
		a.logger.Info("no frames to assemble", slog.String("dir", dir))
		return Result{}, nil
	}

	for i := range artifacts {
		abs, err := filepath.Abs(artifacts[i].Path)
		if err != nil {
			return Result{}, fmt.Errorf("resolve artifact path: %w", err)
		}
		artifacts[i].Path = abs
	}

	manifestPath := filepath.Join(dir, ManifestName)
	if err := writeManifestFile(manifestPath, artifacts, fps); err != nil {
		return Result{}, err
	}

	a.logger.Info("assembling output",
		slog.String("output", output),
		slog.Int("frames", len(artifacts)),
		slog.Int("fps", fps),
	)

	if err := a.concat.ConcatImages(ctx, manifestPath, output, fps); err != nil {
		removeOutput(output)
		return Result{}, fmt.Errorf("concat frames: %w", err)
	}

	info, err := os.Stat(output)
	if err != nil {
		return Result{}, fmt.Errorf("stat output: %w", err)
	}
	if info.Size() == 0 {
		removeOutput(output)
		return Result{}, fmt.Errorf("%w: %s", ErrEmptyOutput, output)
	}

	return Result{Frames: len(artifacts), Output: output}, nil
}

func writeManifestFile(path string, artifacts []artifact.Artifact, fps int) error {
	f, err := os.Create(path) // #nosec G304 - path is inside a workspace created by this process
	if err != nil {
		return fmt.Errorf("create manifest: %w", err)
	}
	if err := WriteManifest(f, artifacts, fps); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close manifest: %w", err)
	}
	return nil
}

// removeOutput deletes a partial or empty output so no placeholder is left behind.
func removeOutput(path string) {
	_ = os.Remove(path)
}
