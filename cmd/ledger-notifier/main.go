package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"spendly/internal/amqp"
	"spendly/internal/cache"
	"spendly/internal/cli"
	"spendly/internal/log"
	"spendly/internal/worker"
)

const (
	reconnectDelay = 5 * time.Second
	sweepInterval  = 10 * time.Minute
)

func main() {
	cfg, logger := cli.Bootstrap()
	logger.Info("Starting ledger-notifier")

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required to consume ledger events")
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		if err := client.Close(); err != nil {
			logger.Warn("Failed to close AMQP client", "error", err)
		}
	})

	seen := cache.NewLRU[struct{}](10_000, worker.DefaultDedupeWindow)
	caches := cache.NewManager(logger)
	caches.Register(seen)

	handlers := worker.NewNotificationWorker(log.Default(log.ComponentNotifier), cfg.CurrencySymbol, seen).Handlers()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return caches.Run(gctx, sweepInterval)
	})
	g.Go(func() error {
		for {
			err := client.Consume(gctx, handlers)
			if gctx.Err() != nil {
				return gctx.Err()
			}
			logger.Error("Message consumption failed, reconnecting", "error", err, "delay", reconnectDelay)
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-time.After(reconnectDelay):
			}
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Ledger-notifier stopped with error", "error", err)
	}
	cli.WaitForShutdown(ctx, done)
}
