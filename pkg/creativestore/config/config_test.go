package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creativestore/creative-store/pkg/creativestore/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "memory", cfg.StorageType)
	assert.Equal(t, "memory", cfg.LockType)
	assert.Equal(t, "creative-objects", cfg.Buckets.Objects)
	assert.Equal(t, "creative-content", cfg.Buckets.Content)
	assert.NotZero(t, cfg.SessionTTL)
	assert.NotZero(t, cfg.FetchConcurrency)
	assert.NotZero(t, cfg.MemoryBudget)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.ServerConfig)
		wantErr string
	}{
		{
			name:    "empty port",
			mutate:  func(c *config.ServerConfig) { c.Port = "" },
			wantErr: "port is required",
		},
		{
			name:    "unknown storage type",
			mutate:  func(c *config.ServerConfig) { c.StorageType = "postgres" },
			wantErr: "storage_type",
		},
		{
			name:    "unknown lock type",
			mutate:  func(c *config.ServerConfig) { c.LockType = "zookeeper" },
			wantErr: "lock_type",
		},
		{
			name:    "redis locks without endpoints",
			mutate:  func(c *config.ServerConfig) { c.LockType = "redis" },
			wantErr: "redis endpoints are required",
		},
		{
			name: "s3 storage with a missing bucket",
			mutate: func(c *config.ServerConfig) {
				c.StorageType = "s3"
				c.Buckets.Templates = ""
			},
			wantErr: "bucket name for templates is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := config.Load(func(c *config.ServerConfig) error {
				tt.mutate(c)
				return nil
			})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestWithEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOCK_TYPE", "redis")
	t.Setenv("REDIS_ENDPOINTS", "redis-1:6379, redis-2:6379 ,")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("FETCH_CONCURRENCY", "4")

	cfg, err := config.Load(config.WithEnv())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "redis", cfg.LockType)
	assert.Equal(t, []string{"redis-1:6379", "redis-2:6379"}, cfg.Redis.Endpoints)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 4, cfg.FetchConcurrency)

	// Variables that are not set keep their defaults.
	assert.Equal(t, "memory", cfg.StorageType)
	assert.Equal(t, "creative-sessions", cfg.Buckets.Sessions)
}

func TestBuildMemoryRuntime(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)

	runtime, err := cfg.Build()
	require.NoError(t, err)
	require.NotNil(t, runtime.Service)
	require.NotNil(t, runtime.Renderer)
	require.NotNil(t, runtime.Locks)

	assert.NoError(t, runtime.Close())
}

func TestBuildRejectsUnknownStorage(t *testing.T) {
	cfg := &config.ServerConfig{
		Port:        "8080",
		StorageType: "memory",
		LockType:    "memory",
	}
	cfg.StorageType = "bogus"
	_, err := cfg.Build()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage type")
}
