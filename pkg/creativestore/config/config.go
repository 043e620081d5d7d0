// Package config loads server configuration and assembles the storage engine
// from it.
package config

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/creativestore/creative-store/pkg/creativestore"
	"github.com/creativestore/creative-store/pkg/creativestore/imaging"
	lockmemory "github.com/creativestore/creative-store/pkg/creativestore/lock/memory"
	lockredis "github.com/creativestore/creative-store/pkg/creativestore/lock/redis"
	storagememory "github.com/creativestore/creative-store/pkg/creativestore/storage/memory"
	storages3 "github.com/creativestore/creative-store/pkg/creativestore/storage/s3"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:        "8080",
		Environment: "development",
		StorageType: "memory",
		LockType:    "memory",
		Buckets: BucketConfig{
			Objects:   "creative-objects",
			Templates: "creative-templates",
			Sessions:  "creative-sessions",
			Content:   "creative-content",
		},
		SessionTTL:       creativestore.DefaultSessionTTL,
		FetchConcurrency: creativestore.DefaultFetchConcurrency,
		MemoryBudget:     imaging.DefaultMemoryBudget,
		Logger:           zerolog.Nop(),
	}
}

// ServerConfig represents server configuration for the creative store
// service.
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Storage configuration
	StorageType string // "memory", "s3"
	S3          S3Config
	Buckets     BucketConfig

	// Lock configuration
	LockType string // "memory", "redis"
	Redis    RedisConfig

	// Service tuning
	SessionTTL       time.Duration
	FetchConcurrency int

	// Preview engine tuning
	MemoryBudget      int64
	CornerEpsilon     float64
	EdgeSampleDivisor int

	Logger zerolog.Logger
}

// S3Config carries the connection settings shared by all four buckets.
type S3Config struct {
	Region                 string
	Endpoint               string
	AccessKeyID            string
	SecretAccessKey        string
	UsePathStyle           bool
	CreateBucketIfNotExist bool
}

// BucketConfig names the version-enabled buckets the engine uses.
type BucketConfig struct {
	Objects   string
	Templates string
	Sessions  string
	Content   string
}

// RedisConfig carries the quorum lock backend settings.
type RedisConfig struct {
	Endpoints    []string
	Password     string
	LockTTL      time.Duration
	PingInterval time.Duration
}

// WithLogger sets the logger handle threaded into every component Build
// assembles.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *ServerConfig) error {
		c.Logger = logger
		return nil
	}
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.StorageType != "memory" && c.StorageType != "s3" {
		return errors.New("storage_type must be 'memory' or 's3'")
	}
	if c.LockType != "memory" && c.LockType != "redis" {
		return errors.New("lock_type must be 'memory' or 'redis'")
	}
	if c.LockType == "redis" && len(c.Redis.Endpoints) == 0 {
		return errors.New("redis endpoints are required when using the redis lock backend")
	}
	if c.StorageType == "s3" {
		for name, bucket := range map[string]string{
			"objects":   c.Buckets.Objects,
			"templates": c.Buckets.Templates,
			"sessions":  c.Buckets.Sessions,
			"content":   c.Buckets.Content,
		} {
			if bucket == "" {
				return fmt.Errorf("bucket name for %s is required", name)
			}
		}
	}
	return nil
}

// Runtime bundles the components Build assembles. Locks is exposed so the
// caller can close the supervisor loop on shutdown.
type Runtime struct {
	Service  creativestore.Service
	Renderer *imaging.Renderer
	Locks    creativestore.LockManager
}

// Close releases backend resources held by the runtime.
func (r *Runtime) Close() error {
	if closer, ok := r.Locks.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// Build creates the service and preview renderer from the configuration.
// Extra service options (event sinks, overrides) are appended after the
// configured ones.
func (c *ServerConfig) Build(extra ...creativestore.Option) (*Runtime, error) {
	objects, err := c.buildStore(c.Buckets.Objects)
	if err != nil {
		return nil, fmt.Errorf("failed to build object store: %w", err)
	}
	templates, err := c.buildStore(c.Buckets.Templates)
	if err != nil {
		return nil, fmt.Errorf("failed to build template store: %w", err)
	}
	sessions, err := c.buildStore(c.Buckets.Sessions)
	if err != nil {
		return nil, fmt.Errorf("failed to build session store: %w", err)
	}
	content, err := c.buildStore(c.Buckets.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to build content store: %w", err)
	}

	locks, err := c.buildLockManager()
	if err != nil {
		return nil, fmt.Errorf("failed to build lock manager: %w", err)
	}

	options := []creativestore.Option{
		creativestore.WithObjectStore(objects),
		creativestore.WithTemplateStore(templates),
		creativestore.WithSessionStore(sessions),
		creativestore.WithContentStore(content),
		creativestore.WithLockManager(locks),
		creativestore.WithLogger(c.Logger),
		creativestore.WithSessionTTL(c.SessionTTL),
		creativestore.WithFetchConcurrency(c.FetchConcurrency),
	}
	options = append(options, extra...)

	svc, err := creativestore.New(options...)
	if err != nil {
		return nil, err
	}

	renderer := imaging.NewRenderer(content,
		imaging.WithLimiter(imaging.NewLimiter(c.MemoryBudget)),
		imaging.WithCropConfig(imaging.CropConfig{
			CornerEpsilon:     c.CornerEpsilon,
			EdgeSampleDivisor: c.EdgeSampleDivisor,
		}),
		imaging.WithLogger(c.Logger),
	)

	return &Runtime{Service: svc, Renderer: renderer, Locks: locks}, nil
}

func (c *ServerConfig) buildStore(bucket string) (creativestore.VersionedBlobStore, error) {
	switch c.StorageType {
	case "memory":
		return storagememory.New(), nil
	case "s3":
		return storages3.New(storages3.Config{
			Region:                 c.S3.Region,
			Bucket:                 bucket,
			AccessKeyID:            c.S3.AccessKeyID,
			SecretAccessKey:        c.S3.SecretAccessKey,
			Endpoint:               c.S3.Endpoint,
			UsePathStyle:           c.S3.UsePathStyle,
			CreateBucketIfNotExist: c.S3.CreateBucketIfNotExist,
		})
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", c.StorageType)
	}
}

func (c *ServerConfig) buildLockManager() (creativestore.LockManager, error) {
	switch c.LockType {
	case "memory":
		return lockmemory.New(), nil
	case "redis":
		return lockredis.New(lockredis.Config{
			Endpoints:    c.Redis.Endpoints,
			Password:     c.Redis.Password,
			LockTTL:      c.Redis.LockTTL,
			PingInterval: c.Redis.PingInterval,
		}, c.Logger)
	default:
		return nil, fmt.Errorf("unsupported lock type: %s", c.LockType)
	}
}
