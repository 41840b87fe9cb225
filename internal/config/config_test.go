package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.Functions.Prefix != "pixel_func" {
		t.Fatalf("expected default function prefix, got %q", cfg.Functions.Prefix)
	}
	if cfg.Storage.Backend != StorageBackendMinio {
		t.Fatalf("expected minio backend by default, got %q", cfg.Storage.Backend)
	}
	if cfg.RateLimit.Window != time.Second {
		t.Fatalf("expected 1s rate limit window, got %v", cfg.RateLimit.Window)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("FUNCTION_ARCH", "arm")
	t.Setenv("STORAGE_BACKEND", "LOCAL")
	t.Setenv("RATE_LIMIT_WINDOW", "250ms")
	t.Setenv("REDIS_DB", "not-a-number")
	t.Setenv("OTEL_TRACES_SAMPLE_RATIO", "0.25")

	cfg := Load()
	if cfg.Functions.Arch != "arm" {
		t.Fatalf("expected arch=arm, got %q", cfg.Functions.Arch)
	}
	if cfg.Storage.Backend != StorageBackendLocal {
		t.Fatalf("expected local backend, got %q", cfg.Storage.Backend)
	}
	if cfg.RateLimit.Window != 250*time.Millisecond {
		t.Fatalf("expected 250ms window, got %v", cfg.RateLimit.Window)
	}
	if cfg.Queue.RedisDB != 0 {
		t.Fatalf("expected invalid REDIS_DB to fall back to 0, got %d", cfg.Queue.RedisDB)
	}
	if cfg.Tracing.SampleRatio != 0.25 {
		t.Fatalf("expected sample ratio 0.25, got %v", cfg.Tracing.SampleRatio)
	}
}
