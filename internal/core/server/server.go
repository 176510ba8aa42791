// Package server wires the print proxy routes and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/mfp-encoder/internal/api"
	"github.com/mohammed-shakir/mfp-encoder/internal/core/config"
	"github.com/mohammed-shakir/mfp-encoder/internal/core/health"
	middleware "github.com/mohammed-shakir/mfp-encoder/internal/core/middleware"
)

type Routes struct {
	// API may be nil, leaving only the operational endpoints.
	API *api.Handler
	// Metrics defaults to the global Prometheus registry.
	Metrics      http.Handler
	Ready        []health.Check
	ReadyTimeout time.Duration
}

func NewRouter(cfg config.Config, logger *slog.Logger, rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.CORSOrigin))
	r.Use(middleware.Metrics())

	if rt.Metrics == nil {
		rt.Metrics = promhttp.Handler()
	}
	if rt.ReadyTimeout <= 0 {
		rt.ReadyTimeout = 2 * time.Second
	}
	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(rt.ReadyTimeout, rt.Ready...))
	r.Method(http.MethodGet, "/metrics", rt.Metrics)
	if rt.API != nil {
		rt.API.Routes(r)
	}
	return r
}

// Run serves h on cfg.Addr until ctx is done.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, h http.Handler) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		// downloads may wait for the whole print timeout
		WriteTimeout: cfg.Print.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
