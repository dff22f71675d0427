package bootstrap

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron"
	"golang.org/x/sync/errgroup"

	"marketdao/internal/platform/config"
	"marketdao/internal/platform/httpserver"
)

type APIApp struct {
	rt     *runtime
	server *httpserver.Server
	// workers runs the background loops in-process when storage is memory,
	// since no other process can see the stores.
	workers *WorkerApp
}

type WorkerApp struct {
	rt           *runtime
	pollInterval time.Duration
}

func BuildAPI(ctx context.Context, cfg config.Config, logger *slog.Logger) (*APIApp, error) {
	logger = logger.With("service", cfg.ServiceName, "process", "api")
	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &APIApp{
		rt: rt,
		server: httpserver.New(httpserver.Options{
			Voting:     rt.voting,
			Settlement: rt.settlement,
			Metrics:    rt.metrics.Handler(),
			Logger:     logger,
			Addr:       cfg.Addr(),
		}),
	}
	if cfg.StorageDriver == config.StorageMemory {
		app.workers = &WorkerApp{rt: rt, pollInterval: cfg.OutboxPollInterval}
	}
	return app, nil
}

func BuildWorker(ctx context.Context, cfg config.Config, logger *slog.Logger) (*WorkerApp, error) {
	logger = logger.With("service", cfg.ServiceName, "process", "worker")
	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &WorkerApp{rt: rt, pollInterval: cfg.OutboxPollInterval}, nil
}

func (a *APIApp) Run(ctx context.Context) error {
	a.rt.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", bootstrapModule,
		"layer", "platform",
		"embedded_workers", a.workers != nil,
	)
	if a.workers == nil {
		return a.server.Start(ctx)
	}
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return a.server.Start(groupCtx) })
	group.Go(func() error { return a.workers.Run(groupCtx) })
	return group.Wait()
}

func (a *APIApp) Close() error {
	return a.rt.Close()
}

// Run starts the auto-vote consumer, the outbox relay loop and the cron
// sweeps, and blocks until ctx is cancelled.
func (w *WorkerApp) Run(ctx context.Context) error {
	if err := w.rt.voting.AutoVoter.Start(ctx); err != nil {
		return err
	}

	scheduler, err := w.schedule(ctx)
	if err != nil {
		return err
	}
	scheduler.Start()
	defer scheduler.Stop()

	w.rt.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", bootstrapModule,
		"layer", "platform",
		"poll_interval", w.pollInterval.String(),
		"finalize_schedule", w.rt.cfg.FinalizeSchedule,
		"autovote_schedule", w.rt.cfg.AutoVoteSchedule,
		"distribution_schedule", w.rt.cfg.DistributionSchedule,
	)

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		w.relayOutboxes(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	return w.rt.Close()
}

// relayOutboxes drains both outboxes concurrently. Relay failures are logged
// by the relays and retried on the next tick.
func (w *WorkerApp) relayOutboxes(ctx context.Context) {
	var group errgroup.Group
	group.Go(func() error {
		_, err := w.rt.voting.OutboxRelay.RunOnce(ctx)
		return err
	})
	group.Go(func() error {
		_, err := w.rt.settlement.OutboxRelay.RunOnce(ctx)
		return err
	})
	if err := group.Wait(); err != nil && ctx.Err() == nil {
		w.rt.logger.Warn("outbox relay pass failed",
			"event", "bootstrap_outbox_relay_failed",
			"module", bootstrapModule,
			"layer", "platform",
			"error", err.Error(),
		)
	}
}

func (w *WorkerApp) schedule(ctx context.Context) (*cron.Cron, error) {
	scheduler := cron.New()
	err := scheduler.AddFunc(w.rt.cfg.FinalizeSchedule, func() {
		w.runSweep(ctx, "finalize", w.rt.voting.FinalizeSweeper.RunOnce)
	})
	if err != nil {
		return nil, err
	}
	err = scheduler.AddFunc(w.rt.cfg.AutoVoteSchedule, func() {
		w.runSweep(ctx, "autovote", w.rt.voting.AutoVoteSweeper.RunOnce)
	})
	if err != nil {
		return nil, err
	}
	err = scheduler.AddFunc(w.rt.cfg.DistributionSchedule, func() {
		w.runSweep(ctx, "distribution", w.rt.settlement.DistributionSweeper.RunOnce)
	})
	if err != nil {
		return nil, err
	}
	return scheduler, nil
}

func (w *WorkerApp) runSweep(ctx context.Context, name string, sweep func(context.Context) (int, error)) {
	if ctx.Err() != nil {
		return
	}
	processed, err := sweep(ctx)
	if err != nil {
		w.rt.logger.Error("scheduled sweep failed",
			"event", "bootstrap_sweep_failed",
			"module", bootstrapModule,
			"layer", "platform",
			"sweep", name,
			"error", err.Error(),
		)
		return
	}
	w.rt.logger.Debug("scheduled sweep completed",
		"event", "bootstrap_sweep_completed",
		"module", bootstrapModule,
		"layer", "platform",
		"sweep", name,
		"processed", processed,
	)
}
