// Package command defines the framesampler command line: flag parsing on
// top of the environment configuration, and the run summary it prints.
package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/maauso/framesampler/internal/config"
	"github.com/maauso/framesampler/internal/run"
)

// Exit codes returned by the command.
const (
	ExitOK        = 0
	ExitFailed    = 1
	ExitUsage     = 2
	ExitCancelled = 130
)

// Invocation is one parsed command line.
type Invocation struct {
	Config  *config.Config
	Inputs  []string
	Publish bool
}

// ExecuteFunc runs the pipeline for an invocation.
type ExecuteFunc func(ctx context.Context, inv Invocation) (*run.Run, error)

// New builds the root command. execute is called once flags and
// configuration are resolved.
func New(execute ExecuteFunc) *cli.Command {
	return &cli.Command{
		Name:      "framesampler",
		Usage:     "Sample every Nth frame of each video and assemble one video per directory",
		ArgsUsage: "[video or directory ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output-dir",
				Aliases: []string{"o"},
				Usage:   "Directory for output videos and frame directories (OUTPUT_DIR)",
			},
			&cli.StringFlag{
				Name:  "prefix",
				Usage: "Prefix for output names (OUTPUT_PREFIX)",
			},
			&cli.IntFlag{
				Name:    "interval",
				Aliases: []string{"n"},
				Usage:   "Keep every Nth frame (FRAME_INTERVAL)",
			},
			&cli.IntFlag{
				Name:  "fps",
				Usage: "Frame rate of assembled videos (OUTPUT_FPS)",
			},
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "Extraction backend: opencv or ffmpeg (EXTRACTION_BACKEND)",
			},
			&cli.StringFlag{
				Name:    "mode",
				Aliases: []string{"m"},
				Usage:   "Creation mode: temp_frames, direct, skip or none (CREATION_MODE)",
			},
			&cli.BoolFlag{
				Name:  "sequential",
				Usage: "Process directories one at a time (PROCESSING_MODE=sequential)",
			},
			&cli.IntFlag{
				Name:    "workers",
				Aliases: []string{"w"},
				Usage:   "Parallel directory jobs, 0 derives from CPU count (WORKERS)",
			},
			&cli.Int64Flag{
				Name:  "max-file-size-mb",
				Usage: "Skip videos larger than this, 0 disables the limit (MAX_FILE_SIZE_MB)",
			},
			&cli.StringFlag{
				Name:  "ffmpeg",
				Usage: "Path to the ffmpeg binary (FFMPEG_PATH)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Bound each ffmpeg invocation, 0 is unbounded (PROCESS_TIMEOUT)",
			},
			&cli.BoolFlag{
				Name:  "publish",
				Usage: "Upload output videos to S3 after the run",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (LOG_LEVEL)",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print the run summary as JSON",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			inv, err := Resolve(cmd)
			if err != nil {
				return cli.Exit(err.Error(), ExitUsage)
			}

			r, err := execute(ctx, inv)
			if r != nil {
				if printErr := PrintSummary(cmd.Root().Writer, r, cmd.Bool("json")); printErr != nil {
					return printErr
				}
			}
			if err != nil {
				return cli.Exit(err.Error(), ExitFailed)
			}
			if code := ExitCode(r); code != ExitOK {
				return cli.Exit("", code)
			}
			return nil
		},
	}
}

// Resolve loads the environment configuration and applies the flags that
// were set on the command line.
func Resolve(cmd *cli.Command) (Invocation, error) {
	cfg, err := config.Load()
	if err != nil {
		return Invocation{}, err
	}

	if cmd.IsSet("output-dir") {
		cfg.OutputDir = cmd.String("output-dir")
	}
	if cmd.IsSet("prefix") {
		cfg.OutputPrefix = cmd.String("prefix")
	}
	if cmd.IsSet("interval") {
		cfg.FrameInterval = cmd.Int("interval")
	}
	if cmd.IsSet("fps") {
		cfg.OutputFPS = cmd.Int("fps")
	}
	if cmd.IsSet("backend") {
		cfg.ExtractionBackend = strings.ToLower(cmd.String("backend"))
	}
	if cmd.IsSet("mode") {
		cfg.CreationMode = strings.ToLower(cmd.String("mode"))
	}
	if cmd.IsSet("sequential") && cmd.Bool("sequential") {
		cfg.ProcessingMode = "sequential"
	}
	if cmd.IsSet("workers") {
		cfg.Workers = cmd.Int("workers")
	}
	if cmd.IsSet("max-file-size-mb") {
		cfg.MaxFileSizeMB = cmd.Int64("max-file-size-mb")
	}
	if cmd.IsSet("ffmpeg") {
		cfg.FFmpegPath = cmd.String("ffmpeg")
	}
	if cmd.IsSet("timeout") {
		cfg.ProcessTimeout = cmd.Duration("timeout")
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}

	if err := cfg.Validate(); err != nil {
		return Invocation{}, err
	}

	inputs := cmd.Args().Slice()
	if len(inputs) == 0 {
		inputs = cfg.InputPaths
	}
	if len(inputs) == 0 {
		return Invocation{}, errors.New("at least one input is required (arguments or INPUT_PATHS)")
	}

	publish := cmd.Bool("publish")
	if publish && !cfg.S3Enabled() {
		return Invocation{}, errors.New("--publish requires S3_BUCKET and S3_REGION")
	}

	return Invocation{Config: cfg, Inputs: inputs, Publish: publish}, nil
}

// ExitCode maps a finished run to the process exit status. A run that
// produced nothing while every attempted file failed is a failure.
func ExitCode(r *run.Run) int {
	if r == nil {
		return ExitFailed
	}
	switch r.Status {
	case run.StatusCancelled:
		return ExitCancelled
	case run.StatusFailed:
		return ExitFailed
	}
	if r.Stats.FilesProcessed == 0 && r.Stats.FilesFailed > 0 {
		return ExitFailed
	}
	return ExitOK
}

type summary struct {
	ID             string   `json:"id"`
	Status         string   `json:"status"`
	FilesProcessed int      `json:"files_processed"`
	FilesFailed    int      `json:"files_failed"`
	TotalBytes     int64    `json:"total_bytes"`
	SuccessRate    float64  `json:"success_rate"`
	ElapsedMs      int64    `json:"elapsed_ms"`
	Outputs        []string `json:"outputs,omitempty"`
	URLs           []string `json:"urls,omitempty"`
	Errors         []string `json:"errors,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// PrintSummary writes the outcome of r to w.
func PrintSummary(w io.Writer, r *run.Run, asJSON bool) error {
	s := summary{
		ID:             r.ID,
		Status:         string(r.Status),
		FilesProcessed: r.Stats.FilesProcessed,
		FilesFailed:    r.Stats.FilesFailed,
		TotalBytes:     r.Stats.TotalBytes,
		SuccessRate:    r.Stats.SuccessRate(),
		ElapsedMs:      r.Stats.Elapsed.Milliseconds(),
		Outputs:        r.Stats.Outputs,
		URLs:           r.URLs,
		Errors:         r.Stats.Errors,
		Error:          r.Error,
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "run %s %s\n", s.ID, s.Status)
	if s.Error != "" {
		fmt.Fprintf(&b, "  error: %s\n", s.Error)
	}
	fmt.Fprintf(&b, "  processed: %d  failed: %d  success: %.1f%%\n", s.FilesProcessed, s.FilesFailed, s.SuccessRate)
	fmt.Fprintf(&b, "  input bytes: %d  elapsed: %s\n", s.TotalBytes, r.Stats.Elapsed.Round(time.Millisecond))
	for _, out := range s.Outputs {
		fmt.Fprintf(&b, "  output: %s\n", out)
	}
	for _, url := range s.URLs {
		fmt.Fprintf(&b, "  published: %s\n", url)
	}
	for _, e := range s.Errors {
		fmt.Fprintf(&b, "  failed: %s\n", e)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
