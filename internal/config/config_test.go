package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"bookingsync/internal/models"
)

func TestLoadConfig(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("BOOKINGSYNC_REMOTE_URL", "http://remote.local")

	yamlContent := `
database:
  path: "test.db"
remote:
  driver: http
  base_url: "${BOOKINGSYNC_REMOTE_URL}"
sync:
  sub_batch_size: 10
  reconnect_settle_delay_ms: 500
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Remote.BaseURL != "http://remote.local" {
		t.Errorf("expected env-expanded base_url, got %s", cfg.Remote.BaseURL)
	}
	if cfg.Sync.SubBatchSize != 10 {
		t.Errorf("expected sub_batch_size 10, got %d", cfg.Sync.SubBatchSize)
	}
	if cfg.Sync.OuterBatchSize != models.DefaultOuterBatchSize {
		t.Errorf("expected default outer batch size, got %d", cfg.Sync.OuterBatchSize)
	}
	if cfg.Sync.ReconnectSettleDelay() != 500*time.Millisecond {
		t.Errorf("expected settle delay 500ms, got %s", cfg.Sync.ReconnectSettleDelay())
	}
	if cfg.Cache.Backend != CacheBackendSQLite {
		t.Errorf("expected sqlite cache backend, got %s", cfg.Cache.Backend)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		cfg := Config{
			Database: DatabaseConfig{Path: "path"},
			Remote:   RemoteConfig{Driver: RemoteDriverHTTP, BaseURL: "http://x"},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(c *Config) {}, wantErr: false},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "redis backend without address", mutate: func(c *Config) { c.Cache.Backend = CacheBackendRedis }, wantErr: true},
		{name: "failover without redis", mutate: func(c *Config) { c.Cache.Backend = CacheBackendFailover }, wantErr: true},
		{name: "memory backend", mutate: func(c *Config) { c.Cache.Backend = CacheBackendMemory; c.Database.Path = "" }, wantErr: false},
		{name: "unknown backend", mutate: func(c *Config) { c.Cache.Backend = "etcd" }, wantErr: true},
		{name: "missing base url", mutate: func(c *Config) { c.Remote.BaseURL = "" }, wantErr: true},
		{name: "sheets without credentials", mutate: func(c *Config) { c.Remote.Driver = RemoteDriverSheets }, wantErr: true},
		{name: "memory driver", mutate: func(c *Config) { c.Remote.Driver = RemoteDriverMemory; c.Remote.BaseURL = "" }, wantErr: false},
		{name: "unknown driver", mutate: func(c *Config) { c.Remote.Driver = "ftp" }, wantErr: true},
		{name: "sub batch above outer", mutate: func(c *Config) { c.Sync.SubBatchSize = 500 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Sync.OuterBatchSize != 200 || cfg.Sync.SubBatchSize != 20 {
		t.Errorf("unexpected batch defaults: %+v", cfg.Sync)
	}
	if cfg.Sync.MaxRetryAttempts != 5 {
		t.Errorf("expected default max retries 5, got %d", cfg.Sync.MaxRetryAttempts)
	}
	if cfg.Sync.BackoffBase() != time.Second {
		t.Errorf("expected backoff base 1s, got %s", cfg.Sync.BackoffBase())
	}
	if cfg.Sync.ReconnectSettleDelay() != 2*time.Second {
		t.Errorf("expected settle delay 2s, got %s", cfg.Sync.ReconnectSettleDelay())
	}
	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.Remote.Driver != RemoteDriverHTTP {
		t.Errorf("expected default remote driver http, got %s", cfg.Remote.Driver)
	}
	if cfg.Connectivity.ProbeTimeout() != cfg.Remote.Timeout() {
		t.Errorf("expected probe timeout to follow remote timeout")
	}
}

func TestValidateSync(t *testing.T) {
	if err := ValidateSync(DefaultSync()); err != nil {
		t.Fatalf("defaults should be valid: %v", err)
	}

	bad := DefaultSync()
	bad.DedupChunkSize = -1
	if err := ValidateSync(bad); err == nil {
		t.Error("expected error for negative dedup chunk size")
	}

	bad = DefaultSync()
	bad.BackoffBaseMS = -5
	if err := ValidateSync(bad); err == nil {
		t.Error("expected error for negative backoff base")
	}
}
