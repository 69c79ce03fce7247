// Package cli holds the startup steps shared by cmd/voxafi and
// cmd/voxafi-worker.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voxafi/internal/config"
	applog "voxafi/internal/log"
)

// SetupLogger builds the process logger at LOG_LEVEL and makes it the slog
// default. An invalid level falls back to info; Validate reports it.
func SetupLogger(level string) *applog.Logger {
	lvl, _ := config.ParseLevel(level)
	cfg := applog.DefaultConfig()
	cfg.Level = lvl
	logger := applog.New(cfg)
	applog.SetDefault(logger)
	return logger
}

// LoadAndValidateConfig loads configuration and runs every check, exiting
// the process on failure.
func LoadAndValidateConfig(logger *applog.Logger, checks ...func(*config.Config) error) *config.Config {
	cfg := config.Load()
	if err := Check(cfg, checks...); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// Check runs cfg.Validate followed by checks and joins their failures.
func Check(cfg *config.Config, checks ...func(*config.Config) error) error {
	errs := []error{cfg.Validate()}
	for _, check := range checks {
		errs = append(errs, check(cfg))
	}
	return errors.Join(errs...)
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(logger *applog.Logger) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	context.AfterFunc(ctx, func() {
		logger.Info("Shutdown signal received")
	})
	return ctx, stop
}

// Shutdown runs each step with a shared deadline and logs failures.
func Shutdown(logger *applog.Logger, timeout time.Duration, steps ...func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	for _, step := range steps {
		if err := step(ctx); err != nil {
			logger.Error("Shutdown step failed", "error", err)
		}
	}
	if ctx.Err() != nil {
		logger.Warn("Shutdown timeout reached")
		return
	}
	logger.Info("Shutdown complete")
}
