package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"bookingsync/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	CacheBackendSQLite   = "sqlite"
	CacheBackendRedis    = "redis"
	CacheBackendFailover = "failover"
	CacheBackendMemory   = "memory"

	RemoteDriverHTTP   = "http"
	RemoteDriverSheets = "sheets"
	RemoteDriverMemory = "memory"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	Cache        CacheConfig        `yaml:"cache"`
	Remote       RemoteConfig       `yaml:"remote"`
	Connectivity ConnectivityConfig `yaml:"connectivity"`
	Sync         SyncConfig         `yaml:"sync"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging"`
	API          APIConfig          `yaml:"api"`
	Exports      ExportConfig       `yaml:"exports"`
}

// SyncConfig holds the backend size limits and retry schedule.
type SyncConfig struct {
	OuterBatchSize    int `yaml:"outer_batch_size"`
	SubBatchSize      int `yaml:"sub_batch_size"`
	DedupChunkSize    int `yaml:"dedup_chunk_size"`
	MaxRetryAttempts  int `yaml:"max_retry_attempts"`
	ReconnectSettleMS int `yaml:"reconnect_settle_delay_ms"`
	BackoffBaseMS     int `yaml:"backoff_base_ms"`
}

func (c SyncConfig) ReconnectSettleDelay() time.Duration {
	return time.Duration(c.ReconnectSettleMS) * time.Millisecond
}

func (c SyncConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMS) * time.Millisecond
}

type ConnectivityConfig struct {
	// ProbeIntervalMS < 0 disables probing and treats the remote as reachable.
	ProbeIntervalMS int `yaml:"probe_interval_ms"`
	ProbeTimeoutMS  int `yaml:"probe_timeout_ms"`
}

func (c ConnectivityConfig) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalMS) * time.Millisecond
}

func (c ConnectivityConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutMS) * time.Millisecond
}

type RemoteConfig struct {
	Driver    string       `yaml:"driver"`
	BaseURL   string       `yaml:"base_url"`
	APIKey    string       `yaml:"api_key"`
	APIExtra  string       `yaml:"api_extra"`
	TimeoutMS int          `yaml:"timeout_ms"`
	Google    GoogleConfig `yaml:"google"`
}

func (c RemoteConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	SpreadsheetID         string `yaml:"spreadsheet_id"`
}

type CacheConfig struct {
	Backend string `yaml:"backend"`
	// RedisKeyPrefix namespaces cache entries inside a shared redis.
	RedisKeyPrefix string `yaml:"redis_key_prefix"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path   string       `yaml:"path"`
	Backup BackupConfig `yaml:"backup"`
}

// BackupConfig controls periodic snapshots of the sqlite cache file.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	StoragePath   string `yaml:"storage_path"`
	RetentionDays int    `yaml:"retention_days"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheBackendSQLite, CacheBackendFailover:
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
		if c.Cache.Backend == CacheBackendFailover && c.Redis.Address == "" {
			return errors.New("redis address is required for failover cache")
		}
	case CacheBackendRedis:
		if c.Redis.Address == "" {
			return errors.New("redis address is required for redis cache")
		}
	case CacheBackendMemory:
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	switch c.Remote.Driver {
	case RemoteDriverHTTP:
		if c.Remote.BaseURL == "" {
			return errors.New("remote base_url is required")
		}
	case RemoteDriverSheets:
		if c.Remote.Google.GoogleCredentialsFile == "" || c.Remote.Google.SpreadsheetID == "" {
			return errors.New("google credentials_file and spreadsheet_id are required")
		}
	case RemoteDriverMemory:
	default:
		return fmt.Errorf("unknown remote driver %q", c.Remote.Driver)
	}

	return ValidateSync(c.Sync)
}

// ValidateSync checks the batch limits and retry schedule.
func ValidateSync(s SyncConfig) error {
	if s.OuterBatchSize <= 0 {
		return fmt.Errorf("sync.outer_batch_size must be positive, got %d", s.OuterBatchSize)
	}
	if s.SubBatchSize <= 0 {
		return fmt.Errorf("sync.sub_batch_size must be positive, got %d", s.SubBatchSize)
	}
	if s.SubBatchSize > s.OuterBatchSize {
		return fmt.Errorf("sync.sub_batch_size %d exceeds outer_batch_size %d", s.SubBatchSize, s.OuterBatchSize)
	}
	if s.DedupChunkSize <= 0 {
		return fmt.Errorf("sync.dedup_chunk_size must be positive, got %d", s.DedupChunkSize)
	}
	if s.MaxRetryAttempts < 0 {
		return fmt.Errorf("sync.max_retry_attempts must not be negative, got %d", s.MaxRetryAttempts)
	}
	if s.ReconnectSettleMS < 0 || s.BackoffBaseMS <= 0 {
		return errors.New("sync delays must be positive")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "bookingsync"
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = CacheBackendSQLite
	}
	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	if c.Cache.RedisKeyPrefix == "" {
		c.Cache.RedisKeyPrefix = "offline:"
	}
	if c.Remote.Driver == "" {
		c.Remote.Driver = RemoteDriverHTTP
	}
	c.Remote.Driver = strings.ToLower(strings.TrimSpace(c.Remote.Driver))
	if c.Remote.TimeoutMS == 0 {
		c.Remote.TimeoutMS = models.DefaultRemoteTimeoutMS
	}
	if c.Connectivity.ProbeIntervalMS == 0 {
		c.Connectivity.ProbeIntervalMS = models.DefaultProbeIntervalMS
	}
	if c.Connectivity.ProbeTimeoutMS == 0 {
		c.Connectivity.ProbeTimeoutMS = c.Remote.TimeoutMS
	}

	c.Sync.applyDefaults()

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "./exports"
	}
	if c.Database.Backup.StoragePath == "" {
		c.Database.Backup.StoragePath = "./backups"
	}
}

func (s *SyncConfig) applyDefaults() {
	if s.OuterBatchSize == 0 {
		s.OuterBatchSize = models.DefaultOuterBatchSize
	}
	if s.SubBatchSize == 0 {
		s.SubBatchSize = models.DefaultSubBatchSize
	}
	if s.DedupChunkSize == 0 {
		s.DedupChunkSize = models.DefaultDedupChunkSize
	}
	if s.MaxRetryAttempts == 0 {
		s.MaxRetryAttempts = models.DefaultMaxRetryAttempts
	}
	if s.ReconnectSettleMS == 0 {
		s.ReconnectSettleMS = models.DefaultReconnectSettleMS
	}
	if s.BackoffBaseMS == 0 {
		s.BackoffBaseMS = models.DefaultBackoffBaseMS
	}
}

// DefaultSync returns the sync section with every default applied.
func DefaultSync() SyncConfig {
	return SyncConfig{}.WithDefaults()
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (s SyncConfig) WithDefaults() SyncConfig {
	s.applyDefaults()
	return s
}
