package main

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"spendly/internal/backend"
	"spendly/internal/cli"
	"spendly/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap()
	logger.Info("Starting recurring-worker")

	res := cli.InitBackend(context.Background(), logger, cfg)
	svc := backend.NewServices(res)

	scheduler := services.NewScheduler(svc.Engine, services.SchedulerConfig{
		Interval:   cfg.RecurringInterval,
		RunOnStart: true,
	}, time.Now)

	logger.Info("Recurring processor configured",
		"interval", cfg.RecurringInterval,
		"backend", cfg.DataBackend)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := scheduler.Stop(stopCtx); err != nil {
			logger.Warn("Scheduler did not stop cleanly", "error", err)
		}
		if err := res.Close(); err != nil {
			logger.Error("Failed to release backend", "error", err)
		}
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := scheduler.Start(gctx); err != nil {
			return err
		}
		<-scheduler.Done()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Recurring-worker stopped with error", "error", err)
	}
	cli.WaitForShutdown(ctx, done)
	logger.Info("Recurring-worker shutdown complete")
}
