package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DrainTimeout bounds how long Serve waits for open connections on shutdown.
const DrainTimeout = 30 * time.Second

// Serve runs srv until ctx is done, then drains open connections for up to
// drain. Runs submitted asynchronously are not waited for.
func Serve(ctx context.Context, srv *http.Server, logger *slog.Logger, drain time.Duration) error {
	listenErr := make(chan error, 1)
	go func() {
		logger.Info("listening", slog.String("addr", srv.Addr))
		listenErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-listenErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("draining connections", slog.Duration("timeout", drain))
	drainCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := srv.Shutdown(drainCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}
