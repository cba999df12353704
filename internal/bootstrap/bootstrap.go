// Package bootstrap provides dependency initialization for the frame sampler.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/framesampler/internal/assemble"
	"github.com/maauso/framesampler/internal/config"
	"github.com/maauso/framesampler/internal/extract"
	"github.com/maauso/framesampler/internal/media"
	"github.com/maauso/framesampler/internal/pipeline"
	"github.com/maauso/framesampler/internal/run"
	"github.com/maauso/framesampler/internal/scan"
	"github.com/maauso/framesampler/internal/storage"
	"github.com/maauso/framesampler/internal/vision/cv"
)

// Dependencies holds the initialized service and the configuration-derived
// defaults for new runs.
type Dependencies struct {
	RunService  *run.Service
	Storage     storage.Storage
	Interval    int
	Backend     extract.Backend
	Mode        pipeline.CreationMode
	Concurrency pipeline.ConcurrencyMode
	Workers     int
}

// DefaultRequest returns a run request over inputs using the configured defaults.
func (d *Dependencies) DefaultRequest(inputs []string) run.Request {
	return run.Request{
		Inputs:      inputs,
		Interval:    d.Interval,
		Backend:     d.Backend,
		Mode:        d.Mode,
		Concurrency: d.Concurrency,
	}
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	backend, err := extract.ParseBackend(cfg.ExtractionBackend)
	if err != nil {
		return nil, err
	}
	mode, err := pipeline.ParseCreationMode(cfg.CreationMode)
	if err != nil {
		return nil, err
	}
	concurrency, err := pipeline.ParseConcurrencyMode(cfg.ProcessingMode)
	if err != nil {
		return nil, err
	}

	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	var ffmpegOpts []media.Option
	if cfg.ProcessTimeout > 0 {
		ffmpegOpts = append(ffmpegOpts, media.WithTimeout(cfg.ProcessTimeout))
	}
	processor := media.NewFFmpegProcessor(cfg.FFmpegPath, ffmpegOpts...)
	lib := cv.New(cfg.VideoCodec)

	extractor := extract.NewExtractor(lib, processor, logger)
	assembler := assemble.NewAssembler(processor, logger)
	runner := pipeline.NewDirectoryRunner(extractor, assembler, lib, store, pipeline.Options{
		OutputPrefix: cfg.OutputPrefix,
		OutputFPS:    cfg.OutputFPS,
		MaxFileSize:  cfg.MaxFileSizeBytes(),
	}, logger)

	workers := cfg.EffectiveWorkers()
	coordinator := pipeline.NewCoordinator(runner, store, logger, pipeline.WithWorkers(workers))

	var publisher run.Publisher
	if cfg.S3Enabled() {
		publisher = store
	}

	svc := run.NewService(
		run.NewMemoryRepository(),
		scan.NewScanner(logger),
		coordinator,
		publisher,
		logger,
	)

	return &Dependencies{
		RunService:  svc,
		Storage:     store,
		Interval:    cfg.FrameInterval,
		Backend:     backend,
		Mode:        mode,
		Concurrency: concurrency,
		Workers:     workers,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.OutputDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("output_dir", s3Store.Root()),
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("output_dir", localStore.Root()),
	)
	return localStore, nil
}
