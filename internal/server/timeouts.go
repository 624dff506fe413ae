// internal/server/timeouts.go
//
// HTTP server helpers with robust timeouts and graceful shutdown.
//
// Production hardening recommends:
//
//   - ReadHeaderTimeout – abort slow-loris headers (5 s)
//   - ReadTimeout       – cap body upload time (10 s)
//   - WriteTimeout      – cap total response time (15 s)
//   - IdleTimeout       – close keep-alives on idle clients (60 s)
//
// This helper centralises those defaults so cmd/web doesn’t repeat
// boilerplate for the public and admin listeners.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ShutdownGrace bounds how long Serve waits for in-flight requests.
const ShutdownGrace = 10 * time.Second

// New constructs an *http.Server with sensible defaults.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Serve runs srv until ctx is cancelled, then shuts it down gracefully.
// It returns nil after a clean shutdown.
func Serve(ctx context.Context, srv *http.Server, name string, log *zap.SugaredLogger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "server", name, "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("shutdown incomplete", "server", name, "err", err)
		return err
	}
	log.Infow("stopped", "server", name)
	return nil
}
