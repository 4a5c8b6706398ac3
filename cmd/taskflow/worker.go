package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"taskflow/backend/internal/worker"

	"github.com/spf13/cobra"
)

var errNoRedis = errors.New("background jobs need Redis: set REDIS_ENABLED=true")

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process due-date reminders and token cleanup",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w, err := a.startWorker(ctx)
			if err != nil {
				return err
			}
			<-ctx.Done()
			w.Stop()
			return nil
		},
	}
}

// startWorker registers the job handlers, makes sure the recurring token
// cleanup is queued and starts the worker loops.
func (a *app) startWorker(ctx context.Context) (*worker.Worker, error) {
	if a.queue == nil {
		return nil, errNoRedis
	}

	w := worker.NewWorker(worker.WorkerConfig{
		Queue:        a.queue,
		PollInterval: a.cfg.Worker.PollInterval,
		Queues:       a.cfg.Worker.Queues,
	})
	a.reminders().Register(w)

	cleanup := worker.NewTokenCleanup(a.pool.DB, a.queue, 0)
	cleanup.Register(w)
	if err := cleanup.Schedule(ctx); err != nil {
		return nil, err
	}

	w.Start(a.cfg.Worker.Concurrency)
	return w, nil
}
