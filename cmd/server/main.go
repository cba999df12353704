// Command server exposes frame sampling runs over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/maauso/framesampler/internal/bootstrap"
	"github.com/maauso/framesampler/internal/config"
	"github.com/maauso/framesampler/internal/server"
)

const (
	requestTimeout = 30 * time.Second
	idleTimeout    = 60 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}

	logger.Info("frame sampler API configured",
		slog.Int("port", cfg.Port),
		slog.String("output_dir", deps.Storage.Root()),
		slog.String("backend", deps.Backend.String()),
		slog.String("creation_mode", deps.Mode.String()),
		slog.String("processing_mode", deps.Concurrency.String()),
		slog.Int("workers", deps.Workers),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	handlers := server.NewHandlers(deps.RunService, server.Defaults{
		Interval:    deps.Interval,
		Backend:     deps.Backend,
		Mode:        deps.Mode,
		Concurrency: deps.Concurrency,
	}, logger, server.WithS3(cfg.S3Enabled()))

	return server.Serve(ctx, &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      server.NewRouter(handlers, logger),
		ReadTimeout:  requestTimeout,
		WriteTimeout: requestTimeout,
		IdleTimeout:  idleTimeout,
	}, logger, server.DrainTimeout)
}
