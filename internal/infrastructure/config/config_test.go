package config_test

import (
	"os"
	"testing"
	"time"

	"github.com/iho/jibledger/internal/infrastructure/config"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("STORAGE", "")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.DatabaseURL == "" {
		t.Fatalf("expected default database URL to be set")
	}

	if cfg.Storage != config.StoragePostgres {
		t.Fatalf("expected postgres storage by default, got %q", cfg.Storage)
	}

	if cfg.HTTPPort != "8080" {
		t.Fatalf("expected default HTTP port 8080, got %s", cfg.HTTPPort)
	}

	if cfg.StatusCacheTTL != 10*time.Minute || cfg.OutboxBatchSize != 100 {
		t.Fatalf("unexpected cache/outbox defaults: ttl=%s batch=%d", cfg.StatusCacheTTL, cfg.OutboxBatchSize)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("REDIS_URL", "redis://example")
	t.Setenv("REDIS_EVENT_STREAM", "partners")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("DATABASE_TIMEOUT", "45s")
	t.Setenv("OUTBOX_POLL_INTERVAL", "250ms")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("unexpected error loading config: %v", err)
	}

	if cfg.Storage != config.StorageMemory {
		t.Fatalf("expected memory storage, got %s", cfg.Storage)
	}

	if cfg.DatabaseURL != "postgres://example" {
		t.Fatalf("expected custom database URL, got %s", cfg.DatabaseURL)
	}

	if cfg.RedisURL != "redis://example" || cfg.RedisEventStream != "partners" {
		t.Fatalf("expected custom redis settings, got %s %s", cfg.RedisURL, cfg.RedisEventStream)
	}

	if cfg.HTTPPort != "9090" {
		t.Fatalf("expected HTTP port override, got %s", cfg.HTTPPort)
	}

	if cfg.DatabaseTimeout != 45*time.Second {
		t.Fatalf("expected database timeout override, got %s", cfg.DatabaseTimeout)
	}

	if cfg.OutboxPollInterval != 250*time.Millisecond || cfg.RateLimitRPS != 2.5 {
		t.Fatalf("unexpected overrides: poll=%s rps=%v", cfg.OutboxPollInterval, cfg.RateLimitRPS)
	}
}

func TestLoadInvalidDuration(t *testing.T) {
	original := os.Getenv("HTTP_READ_TIMEOUT")
	t.Setenv("HTTP_READ_TIMEOUT", "not-a-duration")
	t.Cleanup(func() {
		t.Setenv("HTTP_READ_TIMEOUT", original)
	})

	if _, err := config.Load(); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestLoadRejectsUnknownStorage(t *testing.T) {
	t.Setenv("STORAGE", "sqlite")

	if _, err := config.Load(); err == nil {
		t.Fatalf("expected error for unknown storage backend")
	}
}
