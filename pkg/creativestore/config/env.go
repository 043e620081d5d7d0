package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// envConfig is the flat environment mapping read by WithEnv.
type envConfig struct {
	Port        string `env:"PORT" env-default:""`
	Environment string `env:"ENVIRONMENT" env-default:""`

	StorageType string `env:"STORAGE_TYPE" env-default:""`

	S3Region          string `env:"AWS_S3_REGION" env-default:""`
	S3Endpoint        string `env:"AWS_S3_ENDPOINT" env-default:""`
	S3AccessKeyID     string `env:"AWS_ACCESS_KEY_ID" env-default:""`
	S3SecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" env-default:""`
	S3UsePathStyle    bool   `env:"AWS_S3_USE_PATH_STYLE" env-default:"false"`
	S3CreateBuckets   bool   `env:"AWS_S3_CREATE_BUCKETS" env-default:"false"`

	ObjectsBucket   string `env:"OBJECTS_BUCKET" env-default:""`
	TemplatesBucket string `env:"TEMPLATES_BUCKET" env-default:""`
	SessionsBucket  string `env:"SESSIONS_BUCKET" env-default:""`
	ContentBucket   string `env:"CONTENT_BUCKET" env-default:""`

	LockType          string        `env:"LOCK_TYPE" env-default:""`
	RedisEndpoints    string        `env:"REDIS_ENDPOINTS" env-default:""`
	RedisPassword     string        `env:"REDIS_PASSWORD" env-default:""`
	RedisLockTTL      time.Duration `env:"REDIS_LOCK_TTL" env-default:"0s"`
	RedisPingInterval time.Duration `env:"REDIS_PING_INTERVAL" env-default:"0s"`

	SessionTTL       time.Duration `env:"SESSION_TTL" env-default:"0s"`
	FetchConcurrency int           `env:"FETCH_CONCURRENCY" env-default:"0"`

	MemoryBudget      int64   `env:"PREVIEW_MEMORY_BUDGET" env-default:"0"`
	CornerEpsilon     float64 `env:"CROP_CORNER_EPSILON" env-default:"0"`
	EdgeSampleDivisor int     `env:"CROP_EDGE_SAMPLE_DIVISOR" env-default:"0"`
}

// WithEnv applies environment variable overrides on top of the current
// configuration. Unset variables leave the existing values untouched.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env envConfig
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("failed to read environment: %w", err)
		}

		setString(&c.Port, env.Port)
		setString(&c.Environment, env.Environment)
		setString(&c.StorageType, env.StorageType)

		setString(&c.S3.Region, env.S3Region)
		setString(&c.S3.Endpoint, env.S3Endpoint)
		setString(&c.S3.AccessKeyID, env.S3AccessKeyID)
		setString(&c.S3.SecretAccessKey, env.S3SecretAccessKey)
		if env.S3UsePathStyle {
			c.S3.UsePathStyle = true
		}
		if env.S3CreateBuckets {
			c.S3.CreateBucketIfNotExist = true
		}

		setString(&c.Buckets.Objects, env.ObjectsBucket)
		setString(&c.Buckets.Templates, env.TemplatesBucket)
		setString(&c.Buckets.Sessions, env.SessionsBucket)
		setString(&c.Buckets.Content, env.ContentBucket)

		setString(&c.LockType, env.LockType)
		if env.RedisEndpoints != "" {
			c.Redis.Endpoints = splitEndpoints(env.RedisEndpoints)
		}
		setString(&c.Redis.Password, env.RedisPassword)
		if env.RedisLockTTL > 0 {
			c.Redis.LockTTL = env.RedisLockTTL
		}
		if env.RedisPingInterval > 0 {
			c.Redis.PingInterval = env.RedisPingInterval
		}

		if env.SessionTTL > 0 {
			c.SessionTTL = env.SessionTTL
		}
		if env.FetchConcurrency > 0 {
			c.FetchConcurrency = env.FetchConcurrency
		}
		if env.MemoryBudget > 0 {
			c.MemoryBudget = env.MemoryBudget
		}
		if env.CornerEpsilon > 0 {
			c.CornerEpsilon = env.CornerEpsilon
		}
		if env.EdgeSampleDivisor > 0 {
			c.EdgeSampleDivisor = env.EdgeSampleDivisor
		}

		return nil
	}
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func splitEndpoints(raw string) []string {
	parts := strings.Split(raw, ",")
	endpoints := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			endpoints = append(endpoints, trimmed)
		}
	}
	return endpoints
}
