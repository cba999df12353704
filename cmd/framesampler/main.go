// Package main provides the framesampler command line tool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maauso/framesampler/internal/bootstrap"
	"github.com/maauso/framesampler/internal/command"
	"github.com/maauso/framesampler/internal/run"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.New(execute).Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(command.ExitFailed)
	}
}

func execute(ctx context.Context, inv command.Invocation) (*run.Run, error) {
	// stdout carries the run summary.
	logger := inv.Config.NewLoggerTo(os.Stderr)
	slog.SetDefault(logger)

	deps, err := bootstrap.NewDependencies(inv.Config, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize dependencies: %w", err)
	}

	req := deps.DefaultRequest(inv.Inputs)
	req.Publish = inv.Publish

	logger.Info("starting run",
		slog.Any("inputs", inv.Inputs),
		slog.String("output_dir", deps.Storage.Root()),
		slog.Int("interval", req.Interval),
		slog.String("backend", req.Backend.String()),
		slog.String("creation_mode", req.Mode.String()),
		slog.String("processing_mode", req.Concurrency.String()),
		slog.Int("workers", deps.Workers),
	)

	return deps.RunService.Process(ctx, req)
}
