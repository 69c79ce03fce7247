package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"voxafi/internal/amqp"
	"voxafi/internal/backend"
	"voxafi/internal/cache"
	"voxafi/internal/cli"
	"voxafi/internal/config"
	applog "voxafi/internal/log"
	"voxafi/internal/store"
	"voxafi/internal/worker"
)

func main() {
	backfill := flag.Bool("backfill", false, "write every stored transaction to the ledger before consuming events")
	backfillUser := flag.String("backfill-user", "", "restrict -backfill to one user id")
	flag.Parse()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)
	logger = cli.SetupLogger(cfg.LogLevel).WithComponent(applog.ComponentWorker)

	logger.Info("Starting voxafi-worker", "backend", cfg.DataBackend)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	res, err := backend.NewFactory(logger).Create(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}
	defer res.Cleanup()

	ledger, err := backend.NewLedger(ctx, cfg, logger.WithComponent(applog.ComponentSheets))
	if err != nil {
		logger.Error("Failed to initialize ledger", "error", err)
		os.Exit(1)
	}

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	mirror := worker.NewMirrorWorker(res.Store, ledger)

	if *backfill {
		var preds []store.Predicate
		if *backfillUser != "" {
			preds = append(preds, store.ByUser(*backfillUser))
		}
		synced, failed, err := mirror.Backfill(ctx, preds...)
		if err != nil {
			logger.Error("Backfill failed", "error", err)
			os.Exit(1)
		}
		logger.Info("Backfill complete", "synced", synced, "failed", failed)
	}

	janitor := cache.NewManager()
	janitor.Register("mirror_seen", mirror.SeenCache())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		janitor.Start(gctx, 10*time.Minute)
		janitor.Wait()
		return nil
	})
	g.Go(func() error {
		return amqpClient.ConsumeTransactionEvents(gctx, mirror.HandleEvent)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
