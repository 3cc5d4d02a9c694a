package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080},
		Database: DatabaseConfig{Host: "localhost", Port: 5432},
		Redis:    RedisConfig{Host: "redis", Port: 6388},
		Cache: CacheConfig{
			Enabled:    true,
			Backend:    CacheBackendRedis,
			DefaultTTL: 300 * time.Second,
		},
		Sync:    SyncConfig{ChunkSize: 10000},
		Workers: WorkersConfig{MaxWorkers: 4, QueueSize: 16},
		Metrics: MetricsConfig{Enabled: true, Port: 9090, Path: "/metrics"},
		Logging: LoggingConfig{Level: "info", Format: "json"},
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)

	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "redis", cfg.Redis.Host)
	assert.Equal(t, 6388, cfg.Redis.Port)

	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, 300*time.Second, cfg.Cache.DefaultTTL)
	assert.False(t, cfg.Cache.FingerprintContent)

	assert.Equal(t, 10000, cfg.Sync.ChunkSize)
	assert.Equal(t, 8, cfg.Workers.MaxWorkers)

	assert.False(t, cfg.RateLimiter.Enabled)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("BQSYNC_SERVER_PORT", "9000")
	t.Setenv("BQSYNC_CACHE_DEFAULT_TTL", "60s")
	t.Setenv("BQSYNC_SYNC_CHUNK_SIZE", "500")
	t.Setenv("BQSYNC_WAREHOUSE_PROJECT_ID", "analytics-prod")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 60*time.Second, cfg.Cache.DefaultTTL)
	assert.Equal(t, 500, cfg.Sync.ChunkSize)
	assert.Equal(t, "analytics-prod", cfg.Warehouse.ProjectID)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bqsync.yaml")
	content := `
server:
  port: 8181
database:
  url: postgres://sync:secret@db:5432/mirror
cache:
  backend: memory
  memory_max_entries: 50
logging:
  format: console
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, "postgres://sync:secret@db:5432/mirror", cfg.Database.URL)
	assert.Equal(t, CacheBackendMemory, cfg.Cache.Backend)
	assert.Equal(t, 50, cfg.Cache.MemoryMaxEntries)
	assert.Equal(t, "console", cfg.Logging.Format)
	// untouched keys keep their defaults
	assert.Equal(t, 10000, cfg.Sync.ChunkSize)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("BQSYNC_SYNC_CHUNK_SIZE", "0")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config validation failed")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{
			name:    "server port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "no database",
			mutate:  func(c *Config) { c.Database = DatabaseConfig{} },
			wantErr: "database url or host is required",
		},
		{
			name:    "redis backend without redis",
			mutate:  func(c *Config) { c.Redis = RedisConfig{} },
			wantErr: "redis url or host is required",
		},
		{
			name: "memory backend needs no redis",
			mutate: func(c *Config) {
				c.Redis = RedisConfig{}
				c.Cache.Backend = CacheBackendMemory
			},
		},
		{
			name: "disabled cache skips backend",
			mutate: func(c *Config) {
				c.Cache.Enabled = false
				c.Cache.Backend = "memcached"
			},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Cache.Backend = "memcached" },
			wantErr: "invalid cache backend",
		},
		{
			name:    "chunk size",
			mutate:  func(c *Config) { c.Sync.ChunkSize = -1 },
			wantErr: "chunk_size must be positive",
		},
		{
			name:    "workers",
			mutate:  func(c *Config) { c.Workers.MaxWorkers = 0 },
			wantErr: "max_workers must be positive",
		},
		{
			name: "rate limiter",
			mutate: func(c *Config) {
				c.RateLimiter = RateLimiterConfig{Enabled: true, BurstSize: 1}
			},
			wantErr: "requests_per_second must be positive",
		},
		{
			name:    "metrics port",
			mutate:  func(c *Config) { c.Metrics.Port = 70000 },
			wantErr: "invalid metrics port",
		},
		{
			name:    "logging format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: "invalid logging format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
