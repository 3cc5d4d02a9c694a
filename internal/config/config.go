// Package config provides configuration management for bqsync.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cache backends
const (
	CacheBackendRedis  = "redis"
	CacheBackendMemory = "memory"
)

// Config holds all configuration for bqsync.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Warehouse   WarehouseConfig   `mapstructure:"warehouse"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Sync        SyncConfig        `mapstructure:"sync"`
	Workers     WorkersConfig     `mapstructure:"workers"`
	RateLimiter RateLimiterConfig `mapstructure:"rate_limiter"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
}

// WarehouseConfig holds BigQuery client configuration.
type WarehouseConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Location        string `mapstructure:"location"`
}

// DatabaseConfig holds PostgreSQL configuration.
// URL wins over the individual connection fields when set.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Name            string        `mapstructure:"name"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	MaxConnections  int           `mapstructure:"max_connections"`
	MinConnections  int           `mapstructure:"min_connections"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	MaxRetries   int           `mapstructure:"max_retries"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// CacheConfig holds result cache configuration.
type CacheConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Backend            string        `mapstructure:"backend"`
	DefaultTTL         time.Duration `mapstructure:"default_ttl"`
	KeyPrefix          string        `mapstructure:"key_prefix"`
	FingerprintContent bool          `mapstructure:"fingerprint_content"`
	MemoryMaxEntries   int           `mapstructure:"memory_max_entries"`
	MemoryCleanup      time.Duration `mapstructure:"memory_cleanup_interval"`
}

// SyncConfig holds replication configuration.
type SyncConfig struct {
	ChunkSize int `mapstructure:"chunk_size"`
}

// WorkersConfig holds the bounded worker pool configuration.
type WorkersConfig struct {
	MaxWorkers int `mapstructure:"max_workers"`
	QueueSize  int `mapstructure:"queue_size"`
}

// RateLimiterConfig holds rate limiter configuration.
type RateLimiterConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	BurstSize         int     `mapstructure:"burst_size"`
}

// MetricsConfig holds Prometheus metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/bqsync/")
	}

	v.SetEnvPrefix("BQSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found, use defaults/env)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.request_timeout", "0s")
	v.SetDefault("server.cors_origins", []string{"*"})

	// Warehouse defaults
	v.SetDefault("warehouse.project_id", "")
	v.SetDefault("warehouse.credentials_file", "")
	v.SetDefault("warehouse.location", "")

	// Database defaults
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "bqsync")
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 1)
	v.SetDefault("database.conn_max_lifetime", "1h")

	// Redis defaults
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.host", "redis")
	v.SetDefault("redis.port", 6388)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "3s")
	v.SetDefault("redis.write_timeout", "3s")

	// Cache defaults
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", CacheBackendRedis)
	v.SetDefault("cache.default_ttl", "300s")
	v.SetDefault("cache.key_prefix", "")
	v.SetDefault("cache.fingerprint_content", false)
	v.SetDefault("cache.memory_max_entries", 10000)
	v.SetDefault("cache.memory_cleanup_interval", "1m")

	// Sync defaults
	v.SetDefault("sync.chunk_size", 10000)

	// Worker pool defaults
	v.SetDefault("workers.max_workers", 8)
	v.SetDefault("workers.queue_size", 64)

	// Rate limiter defaults
	v.SetDefault("rate_limiter.enabled", false)
	v.SetDefault("rate_limiter.requests_per_second", 100.0)
	v.SetDefault("rate_limiter.burst_size", 20)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)
	v.SetDefault("metrics.path", "/metrics")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("database url or host is required")
	}

	if c.Cache.Enabled {
		switch c.Cache.Backend {
		case CacheBackendRedis:
			if c.Redis.URL == "" && c.Redis.Host == "" {
				return fmt.Errorf("redis url or host is required for the redis cache backend")
			}
		case CacheBackendMemory:
			if c.Cache.MemoryMaxEntries < 0 {
				return fmt.Errorf("memory_max_entries must not be negative")
			}
		default:
			return fmt.Errorf("invalid cache backend: %s", c.Cache.Backend)
		}
	}

	if c.Sync.ChunkSize <= 0 {
		return fmt.Errorf("sync chunk_size must be positive")
	}

	if c.Workers.MaxWorkers <= 0 {
		return fmt.Errorf("workers max_workers must be positive")
	}

	if c.Workers.QueueSize < 0 {
		return fmt.Errorf("workers queue_size must not be negative")
	}

	if c.RateLimiter.Enabled {
		if c.RateLimiter.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate limiter requests_per_second must be positive")
		}
		if c.RateLimiter.BurstSize <= 0 {
			return fmt.Errorf("rate limiter burst_size must be positive")
		}
	}

	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	return nil
}
