package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"diglet/internal/config"
	"diglet/internal/logger"
	"diglet/internal/routes"
	"diglet/internal/services"

	"go.uber.org/zap"
)

// Run serves the HTTP API until ctx is cancelled, then shuts down and
// closes every open session.
func Run(ctx context.Context, cfg *config.Config, logr *logger.Logger) error {
	sessions := services.NewSessionManager(cfg.SessionTTL)
	defer sessions.CloseAll()

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     routes.NewRouter(cfg, logr, sessions),
		ReadTimeout: 15 * time.Second,
		// scans and exports run inside the request
		WriteTimeout: 10 * cfg.StatementTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go sweep(ctx, sessions, logr)

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server started", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logr.Error("server failed", zap.Error(err))
		}
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("server forced to shutdown", zap.Error(err))
		return err
	}
	logr.Info("server exited gracefully")
	return nil
}

func sweep(ctx context.Context, sessions *services.SessionManager, logr *logger.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessions.Sweep(); n > 0 {
				logr.Info("expired sessions closed", zap.Int("count", n))
			}
		}
	}
}
