package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskflow/backend/internal/config"
	"taskflow/backend/internal/middleware"

	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var withWorker bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API and screen endpoints.

Examples:
  taskflow serve
  taskflow serve --with-worker
  taskflow serve --env-file production.env`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, withWorker)
		},
	}
	cmd.Flags().BoolVar(&withWorker, "with-worker", false, "also process background jobs in this process (requires Redis)")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, withWorker bool) error {
	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.pool.Migrate(); err != nil {
		return err
	}

	var limiter *middleware.RateLimiter
	if cfg.RateLimit.Enabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerMin, cfg.RateLimit.BurstSize)
		stopCleanup := make(chan struct{})
		defer close(stopCleanup)
		go limiter.RunCleanup(cfg.RateLimit.CleanupInterval, stopCleanup)
	}

	if withWorker {
		w, err := a.startWorker(ctx)
		if err != nil {
			return err
		}
		defer w.Stop()
	}

	srv := &http.Server{
		Addr:         cfg.GetServerAddr(),
		Handler:      a.router(limiter),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("TaskFlow listening on %s (%s)", srv.Addr, cfg.Server.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
