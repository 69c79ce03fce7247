package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"voxafi/internal/amqp"
	"voxafi/internal/backend"
	"voxafi/internal/cli"
	apphttp "voxafi/internal/http"
	applog "voxafi/internal/log"
	"voxafi/internal/services"
)

func main() {
	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)
	logger = cli.SetupLogger(cfg.LogLevel)

	logger.Info("Starting voxafi", "backend", cfg.DataBackend, "port", cfg.Port)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	res, err := backend.NewFactory(logger).Create(ctx, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err)
		os.Exit(1)
	}

	// Events are optional: without a broker the ledger mirror is simply not fed.
	var publisher services.EventPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without events", "error", err)
		} else {
			publisher = amqpClient
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	budget := services.NewBudgetService(res.Store, res.Store, publisher)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		OverviewCacheTTL:   cfg.OverviewCacheTTL,
		Ready:              res.Ready,
		Logger:             logger.WithComponent(applog.ComponentHTTP),
	}, budget, res.Auth)

	// No WriteTimeout: the transaction stream holds its response open.
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
		}
	}

	steps := []func(context.Context) error{
		srv.Shutdown,
		func(context.Context) error { return budget.Close() },
	}
	if amqpClient != nil {
		steps = append(steps, func(context.Context) error { return amqpClient.Close() })
	}
	steps = append(steps, func(context.Context) error { return res.Cleanup() })
	cli.Shutdown(logger, 30*time.Second, steps...)
}
