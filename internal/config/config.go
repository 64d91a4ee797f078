// Package config reads the service configuration from the environment (and
// an optional .env file) into a typed Config.
package config

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/TobyX424242/ZeroShare/internal/share"
)

// Metadata backends.
const (
	MetaMemory   = "memory"
	MetaRedis    = "redis"
	MetaPostgres = "postgres"
	MetaBolt     = "bolt"
)

// Blob backends.
const (
	BlobMemory = "memory"
	BlobMinio  = "minio"
	BlobS3     = "s3"
)

const (
	defaultAddress       = ":8080"
	defaultMaxFileSize   = 100 << 20 // 100 MiB
	defaultPBKDF2        = 100_000
	defaultSweepPageSize = 100
	defaultJanitors      = 2
	defaultConcurrency   = 4
)

// Config represents runtime configuration for the server, worker and CLI.
type Config struct {
	Address     string `env:"ZEROSHARE_ADDRESS" envDefault:":8080"`
	MaxFileSize int64  `env:"MAX_FILE_SIZE" envDefault:"104857600"`

	MaxRetentionHours     float64       `env:"MAX_RETENTION_HOURS" envDefault:"24"`
	DefaultRetentionHours float64       `env:"DEFAULT_RETENTION_HOURS" envDefault:"24"`
	MaxViewsLimit         int           `env:"MAX_VIEWS_LIMIT" envDefault:"50"`
	MaxPasswordLength     int           `env:"MAX_PASSWORD_LENGTH" envDefault:"512"`
	MaxMetadataLength     int           `env:"MAX_METADATA_LENGTH" envDefault:"8192"`
	MinTTL                time.Duration `env:"MIN_TTL" envDefault:"60s"`
	PBKDF2Iterations      int           `env:"PBKDF2_ITERATIONS" envDefault:"100000"`

	MetadataBackend string `env:"METADATA_BACKEND" envDefault:"memory"`
	BlobBackend     string `env:"BLOB_BACKEND" envDefault:"memory"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	DatabaseURL   string `env:"DATABASE_URL"`
	BoltPath      string `env:"BOLT_PATH" envDefault:"data/zeroshare.db"`

	S3Endpoint  string `env:"S3_ENDPOINT" envDefault:"127.0.0.1:9000"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
	S3Bucket    string `env:"S3_BUCKET" envDefault:"zeroshare"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3UseSSL    bool   `env:"S3_USE_SSL" envDefault:"false"`

	SweepSchedule     string `env:"SWEEP_SCHEDULE" envDefault:"@every 10m"`
	SweepPageSize     int    `env:"SWEEP_PAGE_SIZE" envDefault:"100"`
	AdminSecret       string `env:"ADMIN_SECRET"`
	CORSOrigin        string `env:"CORS_ORIGIN" envDefault:"*"`
	JanitorWorkers    int    `env:"JANITOR_WORKERS" envDefault:"2"`
	WorkerConcurrency int    `env:"WORKER_CONCURRENCY" envDefault:"4"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat         string `env:"LOG_FORMAT" envDefault:"json"`

	// SigningSecret is AdminSecret as bytes, or random when unset, which
	// leaves the signed sweep trigger unusable from outside the process.
	SigningSecret []byte `env:"-"`
}

// Load reads .env (if present) and the environment, then fills in defaults
// for non-positive values and rejects unknown backends.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	if c.Address == "" {
		c.Address = defaultAddress
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = defaultMaxFileSize
	}
	if c.MaxRetentionHours <= 0 {
		c.MaxRetentionHours = share.DefaultMaxRetentionHours
	}
	if c.DefaultRetentionHours <= 0 {
		c.DefaultRetentionHours = share.DefaultDefaultRetentionHours
	}
	if c.MaxViewsLimit <= 0 {
		c.MaxViewsLimit = share.DefaultMaxViewsLimit
	}
	if c.MaxPasswordLength <= 0 {
		c.MaxPasswordLength = share.DefaultMaxPasswordLength
	}
	if c.MaxMetadataLength <= 0 {
		c.MaxMetadataLength = share.DefaultMaxMetadataLength
	}
	if c.MinTTL <= 0 {
		c.MinTTL = share.DefaultMinTTL
	}
	if c.PBKDF2Iterations <= 0 {
		c.PBKDF2Iterations = defaultPBKDF2
	}
	if c.SweepPageSize <= 0 {
		c.SweepPageSize = defaultSweepPageSize
	}
	if c.JanitorWorkers <= 0 {
		c.JanitorWorkers = defaultJanitors
	}
	if c.WorkerConcurrency <= 0 {
		c.WorkerConcurrency = defaultConcurrency
	}

	switch c.MetadataBackend {
	case MetaMemory, MetaRedis, MetaBolt:
	case MetaPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: METADATA_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown METADATA_BACKEND %q", c.MetadataBackend)
	}
	switch c.BlobBackend {
	case BlobMemory, BlobMinio, BlobS3:
	default:
		return fmt.Errorf("config: unknown BLOB_BACKEND %q", c.BlobBackend)
	}

	if c.AdminSecret != "" {
		c.SigningSecret = []byte(c.AdminSecret)
	} else {
		c.SigningSecret = randomSecret()
	}
	return nil
}

// Limits returns the upload caps as share.Limits.
func (c *Config) Limits() share.Limits {
	return share.Limits{
		MaxRetentionHours:     c.MaxRetentionHours,
		DefaultRetentionHours: c.DefaultRetentionHours,
		MaxViews:              c.MaxViewsLimit,
		MaxPasswordLength:     c.MaxPasswordLength,
		MaxMetadataLength:     c.MaxMetadataLength,
		MinTTL:                c.MinTTL,
	}
}

func randomSecret() []byte {
	buf := make([]byte, 32)
	// crypto/rand.Read never returns an error on supported platforms.
	_, _ = rand.Read(buf)
	return buf
}
