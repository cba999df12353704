// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
	"github.com/shirou/gopsutil/v4/cpu"
)

// MaxDefaultWorkers caps the hardware-derived worker count.
const MaxDefaultWorkers = 16

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1-65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidFrameInterval is returned when FRAME_INTERVAL is below 1.
	ErrInvalidFrameInterval = errors.New("config: FRAME_INTERVAL must be at least 1")
	// ErrInvalidOutputFPS is returned when OUTPUT_FPS is below 1.
	ErrInvalidOutputFPS = errors.New("config: OUTPUT_FPS must be at least 1")
	// ErrInvalidBackend is returned when EXTRACTION_BACKEND is not opencv or ffmpeg.
	ErrInvalidBackend = errors.New("config: EXTRACTION_BACKEND must be opencv or ffmpeg")
	// ErrInvalidCreationMode is returned for an unknown CREATION_MODE.
	ErrInvalidCreationMode = errors.New("config: CREATION_MODE must be temp_frames, direct, skip or none")
	// ErrInvalidProcessingMode is returned for an unknown PROCESSING_MODE.
	ErrInvalidProcessingMode = errors.New("config: PROCESSING_MODE must be sequential or parallel")
	// ErrInvalidWorkers is returned when WORKERS is negative.
	ErrInvalidWorkers = errors.New("config: WORKERS must not be negative")
	// ErrInvalidMaxFileSize is returned when MAX_FILE_SIZE_MB is negative.
	ErrInvalidMaxFileSize = errors.New("config: MAX_FILE_SIZE_MB must not be negative")
	// ErrInvalidProcessTimeout is returned when PROCESS_TIMEOUT is negative.
	ErrInvalidProcessTimeout = errors.New("config: PROCESS_TIMEOUT must not be negative")
	// ErrInvalidVideoCodec is returned when VIDEO_CODEC is not a four character code.
	ErrInvalidVideoCodec = errors.New("config: VIDEO_CODEC must be a four character code")
)

// fieldErrors maps struct fields to the error reported when they fail validation.
var fieldErrors = map[string]error{
	"Port":              ErrInvalidPort,
	"FrameInterval":     ErrInvalidFrameInterval,
	"OutputFPS":         ErrInvalidOutputFPS,
	"ExtractionBackend": ErrInvalidBackend,
	"CreationMode":      ErrInvalidCreationMode,
	"ProcessingMode":    ErrInvalidProcessingMode,
	"Workers":           ErrInvalidWorkers,
	"MaxFileSizeMB":     ErrInvalidMaxFileSize,
	"ProcessTimeout":    ErrInvalidProcessTimeout,
	"VideoCodec":        ErrInvalidVideoCodec,
}

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port" validate:"min=1,max=65535"`

	// Input and output settings
	InputPaths   []string `env:"INPUT_PATHS" json:"input_paths"` // comma separated
	OutputDir    string   `env:"OUTPUT_DIR, default=./output" json:"output_dir"`
	OutputPrefix string   `env:"OUTPUT_PREFIX, default=output" json:"output_prefix"`

	// Sampling settings
	FrameInterval     int    `env:"FRAME_INTERVAL, default=30" json:"frame_interval" validate:"min=1"`
	OutputFPS         int    `env:"OUTPUT_FPS, default=30" json:"output_fps" validate:"min=1"`
	ExtractionBackend string `env:"EXTRACTION_BACKEND, default=opencv" json:"extraction_backend" validate:"oneof=opencv ffmpeg"`
	CreationMode      string `env:"CREATION_MODE, default=temp_frames" json:"creation_mode" validate:"oneof=temp_frames direct skip none"`
	VideoCodec        string `env:"VIDEO_CODEC, default=avc1" json:"video_codec" validate:"len=4"` // FourCC for direct output

	// Processing settings
	ProcessingMode string        `env:"PROCESSING_MODE, default=parallel" json:"processing_mode" validate:"oneof=sequential parallel"`
	Workers        int           `env:"WORKERS, default=0" json:"workers" validate:"min=0"` // 0 = derived from CPU count
	MaxFileSizeMB  int64         `env:"MAX_FILE_SIZE_MB, default=0" json:"max_file_size_mb" validate:"min=0"`
	FFmpegPath     string        `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	ProcessTimeout time.Duration `env:"PROCESS_TIMEOUT, default=0s" json:"process_timeout" validate:"min=0"` // 0 = unbounded

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return LoadFrom(envconfig.OsLookuper())
}

// LoadFrom reads configuration from l and validates it.
func LoadFrom(l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks every field against its constraints and returns the
// package error of the first field that fails.
func (c *Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("config: %w", err)
	}
	for _, fe := range verrs {
		if known, ok := fieldErrors[fe.Field()]; ok {
			return fmt.Errorf("%w: got %v", known, fe.Value())
		}
	}
	return fmt.Errorf("config: %w", err)
}

// EffectiveWorkers returns Workers, or the hardware-derived default when it is 0.
func (c *Config) EffectiveWorkers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return DefaultWorkers()
}

// MaxFileSizeBytes converts MaxFileSizeMB to bytes. Zero means unlimited.
func (c *Config) MaxFileSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

// DefaultWorkers returns the logical CPU count, clamped to [1, MaxDefaultWorkers].
func DefaultWorkers() int {
	n, err := cpu.Counts(true)
	if err != nil || n < 1 {
		n = runtime.NumCPU()
	}
	return clampWorkers(n)
}

func clampWorkers(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxDefaultWorkers {
		return MaxDefaultWorkers
	}
	return n
}

// NewLogger creates a structured logger writing to stdout.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger with an explicit destination.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, InputPaths: %v, OutputDir: %s, OutputPrefix: %s, FrameInterval: %d, OutputFPS: %d, ExtractionBackend: %s, CreationMode: %s, ProcessingMode: %s, Workers: %d, MaxFileSizeMB: %d, ProcessTimeout: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.InputPaths,
		c.OutputDir,
		c.OutputPrefix,
		c.FrameInterval,
		c.OutputFPS,
		c.ExtractionBackend,
		c.CreationMode,
		c.ProcessingMode,
		c.Workers,
		c.MaxFileSizeMB,
		c.ProcessTimeout,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
