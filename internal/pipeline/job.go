// Package pipeline runs sampling jobs: one DirectoryRunner per directory of
// videos and a Coordinator that fans jobs out, merges their statistics and
// removes every temporary workspace once all jobs have returned.
package pipeline

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/maauso/framesampler/internal/extract"
	"github.com/maauso/framesampler/internal/scan"
)

// Static errors for the pipeline.
var (
	// ErrInvalidPlan is returned when a job's sampling plan cannot run.
	ErrInvalidPlan = errors.New("pipeline: invalid sampling plan")
	// ErrUnknownMode is returned for an unrecognized creation or concurrency mode.
	ErrUnknownMode = errors.New("pipeline: unknown mode")
	// ErrUnknownStrategy is returned for a Strategy value outside the known set.
	ErrUnknownStrategy = errors.New("pipeline: unknown strategy")
	// ErrFileTooLarge is returned for a video above the configured size limit.
	ErrFileTooLarge = errors.New("pipeline: file exceeds size limit")
	// ErrJobPanicked is recorded when a job panics.
	ErrJobPanicked = errors.New("pipeline: job panicked")
)

// CreationMode selects whether and how an output video is produced.
type CreationMode int

const (
	// ModeTempFrames extracts into a temporary workspace and assembles from it.
	ModeTempFrames CreationMode = iota
	// ModeDirect writes frames straight into the output without intermediate images
	// when the backend allows it.
	ModeDirect
	// ModeSkip keeps extracted frames and produces no video.
	ModeSkip
	// ModeNone behaves like ModeSkip.
	ModeNone
)

// String returns the configuration name of the mode.
func (m CreationMode) String() string {
	switch m {
	case ModeTempFrames:
		return "temp_frames"
	case ModeDirect:
		return "direct"
	case ModeSkip:
		return "skip"
	case ModeNone:
		return "none"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Assembles reports whether the mode produces an output video.
func (m CreationMode) Assembles() bool {
	return m == ModeTempFrames || m == ModeDirect
}

// ParseCreationMode maps a configuration value to a CreationMode.
func ParseCreationMode(s string) (CreationMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "temp_frames", "":
		return ModeTempFrames, nil
	case "direct":
		return ModeDirect, nil
	case "skip":
		return ModeSkip, nil
	case "none":
		return ModeNone, nil
	default:
		return 0, fmt.Errorf("%w: creation mode %q", ErrUnknownMode, s)
	}
}

// ConcurrencyMode selects how the Coordinator schedules jobs.
type ConcurrencyMode int

const (
	// Parallel runs jobs on a bounded worker pool.
	Parallel ConcurrencyMode = iota
	// Sequential runs jobs one after another in listed order.
	Sequential
)

// String returns the configuration name of the mode.
func (m ConcurrencyMode) String() string {
	switch m {
	case Parallel:
		return "parallel"
	case Sequential:
		return "sequential"
	default:
		return fmt.Sprintf("concurrency(%d)", int(m))
	}
}

// ParseConcurrencyMode maps a configuration value to a ConcurrencyMode.
func ParseConcurrencyMode(s string) (ConcurrencyMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "parallel", "":
		return Parallel, nil
	case "sequential":
		return Sequential, nil
	default:
		return 0, fmt.Errorf("%w: processing mode %q", ErrUnknownMode, s)
	}
}

// Strategy is how one directory job turns videos into output.
type Strategy int

const (
	// StrategyDirectStream decodes with the vision library and appends frames
	// to one output video without writing images.
	StrategyDirectStream Strategy = iota
	// StrategyDirectProcess extracts with ffmpeg into a workspace, then assembles.
	StrategyDirectProcess
	// StrategyExtractionOnly extracts into a persistent frames directory.
	StrategyExtractionOnly
	// StrategyTempFrames extracts into a workspace, then assembles.
	StrategyTempFrames
)

// String returns a readable strategy name.
func (s Strategy) String() string {
	switch s {
	case StrategyDirectStream:
		return "direct-stream"
	case StrategyDirectProcess:
		return "direct-process"
	case StrategyExtractionOnly:
		return "extraction-only"
	case StrategyTempFrames:
		return "temp-frames"
	default:
		return fmt.Sprintf("strategy(%d)", int(s))
	}
}

// SelectStrategy picks the output strategy for a backend and creation mode.
func SelectStrategy(backend extract.Backend, mode CreationMode) Strategy {
	switch {
	case mode == ModeDirect && backend == extract.BackendLibrary:
		return StrategyDirectStream
	case mode == ModeDirect && backend == extract.BackendProcess:
		return StrategyDirectProcess
	case !mode.Assembles():
		return StrategyExtractionOnly
	default:
		return StrategyTempFrames
	}
}

// SamplingPlan is how frames are pulled from every video of a job.
type SamplingPlan struct {
	Interval int
	Backend  extract.Backend
}

// Validate rejects plans that cannot run.
func (p SamplingPlan) Validate() error {
	if p.Interval < 1 {
		return fmt.Errorf("%w: %w: got %d", ErrInvalidPlan, extract.ErrInvalidInterval, p.Interval)
	}
	switch p.Backend {
	case extract.BackendLibrary, extract.BackendProcess:
		return nil
	default:
		return fmt.Errorf("%w: %w: %v", ErrInvalidPlan, extract.ErrUnknownBackend, p.Backend)
	}
}

// ExtractionJob is the unit of work for one directory.
type ExtractionJob struct {
	// Tag names the job's outputs.
	Tag string
	// Dir is the directory the videos were found in.
	Dir string
	// Videos lists the job's video paths in no particular order.
	Videos []string
	Plan   SamplingPlan
	Mode   CreationMode
}

// BuildJobs turns scanned groups into jobs ordered by directory. Directories
// sharing a base name get numbered tags so their outputs do not collide; a
// numbered tag skips any value another directory already holds.
func BuildJobs(groups map[string][]string, plan SamplingPlan, mode CreationMode) []ExtractionJob {
	dirs := make([]string, 0, len(groups))
	for dir := range groups {
		dirs = append(dirs, dir)
	}
	sort.Strings(dirs)

	used := make(map[string]bool, len(dirs))
	jobs := make([]ExtractionJob, 0, len(dirs))
	for _, dir := range dirs {
		base := scan.Tag(dir)
		tag := base
		for n := 2; used[tag]; n++ {
			tag = fmt.Sprintf("%s_%d", base, n)
		}
		used[tag] = true
		jobs = append(jobs, ExtractionJob{
			Tag:    tag,
			Dir:    dir,
			Videos: append([]string(nil), groups[dir]...),
			Plan:   plan,
			Mode:   mode,
		})
	}
	return jobs
}
