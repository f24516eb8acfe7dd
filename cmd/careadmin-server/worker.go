package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/careadmin/careadmin/internal/domain/integration/gpconnect"
	"github.com/careadmin/careadmin/internal/domain/integration/wearable"
	"github.com/careadmin/careadmin/internal/platform/queue"
)

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Process background jobs and ingest wearable readings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker()
		},
	}
}

func runWorker() error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	w := newWorker(a)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Strs("queues", cfg.QueueNames).Int("concurrency", cfg.WorkerConcurrency).Msg("starting worker")
		return w.Run(gctx)
	})
	g.Go(func() error {
		if err := a.cache.Run(gctx); err != nil {
			logger.Warn().Err(err).Msg("cache invalidation listener stopped")
		}
		return nil
	})
	if cfg.MQTTBrokerURL != "" {
		sub := wearable.NewSubscriber(wearable.MQTTConfig{
			BrokerURL: cfg.MQTTBrokerURL,
			ClientID:  cfg.MQTTClientID,
		}, a.wearables, logger)
		g.Go(func() error {
			return sub.Run(gctx)
		})
	} else {
		logger.Info().Msg("MQTT_BROKER_URL not set, wearable push ingest disabled")
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
		return err
	}
	logger.Info().Msg("worker stopped")
	return nil
}

// newWorker registers a handler for every job type the API enqueues.
func newWorker(a *app) *queue.Worker {
	w := queue.NewWorker(a.queue, queue.WorkerConfig{
		Queues:      a.cfg.QueueNames,
		Concurrency: a.cfg.WorkerConcurrency,
		JobTimeout:  a.cfg.QueueLease * 4 / 5,
	}, a.logger, a.metrics)

	w.Handle(wearable.JobSync, a.wearables.HandleSync)
	w.Handle(gpconnect.JobSync, a.gpConnect.HandleSync)
	return w
}
