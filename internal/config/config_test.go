package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("INTEGRITY_WORKERS", "")
	t.Setenv("ANOMALY_WINDOW", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.StorageBackend != "local" {
		t.Fatalf("expected local storage backend, got %q", cfg.StorageBackend)
	}
	if cfg.IntegrityWorkers != 4 {
		t.Fatalf("expected 4 integrity workers, got %d", cfg.IntegrityWorkers)
	}
	if cfg.AnomalyWindow != time.Hour {
		t.Fatalf("expected 1h anomaly window, got %v", cfg.AnomalyWindow)
	}
	if cfg.MaxUploadBytes != 50<<20 {
		t.Fatalf("expected 50MiB upload limit, got %d", cfg.MaxUploadBytes)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("INTEGRITY_LOCK_TTL", "90s")
	t.Setenv("INTEGRITY_LOCK_WAIT", "3")
	t.Setenv("API_RATE_LIMIT_RPS", "2.5")
	t.Setenv("BREAKER_ENABLED", "false")
	t.Setenv("STATS_TOP_DOCUMENTS", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.IntegrityLockTTL != 90*time.Second {
		t.Fatalf("expected 90s lock ttl, got %v", cfg.IntegrityLockTTL)
	}
	if cfg.IntegrityLockWait != 3*time.Second {
		t.Fatalf("bare seconds should parse, got %v", cfg.IntegrityLockWait)
	}
	if cfg.APIRateLimitRPS != 2.5 {
		t.Fatalf("expected rps 2.5, got %v", cfg.APIRateLimitRPS)
	}
	if cfg.BreakerEnabled {
		t.Fatalf("expected breaker disabled")
	}
	if cfg.StatsTopDocuments != 5 {
		t.Fatalf("invalid integer should fall back to default, got %d", cfg.StatsTopDocuments)
	}
}

func TestLoadFileOverlayLosesToEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.yaml")
	content := "API_PORT: 9000\nstorage_backend: s3\nS3_BUCKET: trade-docs\nREDIS_DB: 2\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("API_PORT", "")
	t.Setenv("STORAGE_BACKEND", "")
	t.Setenv("S3_BUCKET", "")
	t.Setenv("REDIS_DB", "5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.APIPort != "9000" || cfg.StorageBackend != "s3" || cfg.S3Bucket != "trade-docs" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.RedisDB != 5 {
		t.Fatalf("environment must win over file, got redis db %d", cfg.RedisDB)
	}
}

func TestLoadRejectsInvalidStorage(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error when s3 bucket is missing")
	}

	t.Setenv("STORAGE_BACKEND", "ftp")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown backend")
	}
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}
