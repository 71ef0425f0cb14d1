package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	chameleon "github.com/clydewatts1/prototype-chameleon-mcp-workflow-sub001"
)

// ShutdownTimeout bounds how long in-flight requests may take after a signal.
const ShutdownTimeout = 5 * time.Second

// RunSweeper runs the liveness sweep in the background until ctx is done.
// The returned channel closes when the sweep has stopped.
func RunSweeper(ctx context.Context, sys *chameleon.System, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := sys.Sweeper.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Sweep stopped", "err", err)
		}
	}()
	return done
}

// Serve exposes the HTTP API on addr and runs the sweep until ctx is done,
// then shuts down gracefully.
func Serve(ctx context.Context, sys *chameleon.System, addr string, logger *slog.Logger) error {
	api, err := sys.HTTPServer()
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	sweepDone := RunSweeper(sweepCtx, sys, logger)

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting Chameleon Server", "addr", addr)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		stopSweep()
		<-sweepDone
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logger.Info("Start shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Graceful shutdown did not complete", "timeout", ShutdownTimeout, "err", err)
			if err := srv.Close(); err != nil {
				logger.Error("Error killing server", "err", err)
			}
		}
		stopSweep()
		<-sweepDone
		logger.Info("Chameleon Server stopped gracefully")
		return nil
	}
}
