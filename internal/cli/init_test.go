package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"voxafi/internal/config"
	applog "voxafi/internal/log"
)

func TestCheckJoinsFailures(t *testing.T) {
	cfg := config.FromEnv()
	cfg.Port = "not-a-port"
	err := Check(cfg, func(*config.Config) error { return errors.New("worker needs AMQP") })
	if err == nil {
		t.Fatalf("expected error")
	}
	for _, want := range []string{"port", "worker needs AMQP"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestCheckPassesDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "LOG_LEVEL", "AMQP_URL", "GOOGLE_SERVICE_ACCOUNT_FILE", "SESSION_TTL", "RATE_LIMIT_PER_MINUTE", "OVERVIEW_CACHE_TTL"} {
		t.Setenv(key, "")
	}
	t.Setenv("DATA_BACKEND", "memory")
	if err := Check(config.FromEnv()); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestShutdownRunsEveryStep(t *testing.T) {
	var buf bytes.Buffer
	logger := applog.New(applog.Config{Output: &buf})
	var ran []string
	Shutdown(logger, time.Second,
		func(context.Context) error { ran = append(ran, "a"); return errors.New("boom") },
		func(context.Context) error { ran = append(ran, "b"); return nil },
	)
	if len(ran) != 2 {
		t.Fatalf("expected both steps, got %v", ran)
	}
	if !strings.Contains(buf.String(), "boom") || !strings.Contains(buf.String(), "Shutdown complete") {
		t.Fatalf("unexpected log output: %s", buf.String())
	}
}
