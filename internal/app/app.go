// Package app builds the stores, engine and sweeper described by a Config.
// cmd/server, cmd/worker and cmd/zeroshare all wire through it.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/TobyX424242/ZeroShare/internal/blobstore"
	"github.com/TobyX424242/ZeroShare/internal/blobstore/miniostore"
	"github.com/TobyX424242/ZeroShare/internal/blobstore/s3store"
	"github.com/TobyX424242/ZeroShare/internal/config"
	"github.com/TobyX424242/ZeroShare/internal/database"
	"github.com/TobyX424242/ZeroShare/internal/metastore"
	"github.com/TobyX424242/ZeroShare/internal/metastore/boltstore"
	"github.com/TobyX424242/ZeroShare/internal/metastore/pgstore"
	"github.com/TobyX424242/ZeroShare/internal/metastore/redisstore"
	"github.com/TobyX424242/ZeroShare/internal/metrics"
	"github.com/TobyX424242/ZeroShare/internal/password"
	"github.com/TobyX424242/ZeroShare/internal/shares"
	"github.com/TobyX424242/ZeroShare/internal/sweeper"
)

// Stores holds the two backing stores and whatever must be closed with them.
type Stores struct {
	Meta    metastore.Store
	Blobs   blobstore.Store
	closers []func() error
}

// Close releases every store in reverse open order.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// OpenStores connects to the configured backends.
func OpenStores(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) (*Stores, error) {
	s := &Stores{}
	meta, err := s.openMetadata(ctx, cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Meta = meta

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.Blobs = blobs

	if cfg.MetadataBackend == config.MetaMemory || cfg.BlobBackend == config.BlobMemory {
		log.Warnw("in-memory backend selected; shares do not survive a restart and are not shared across processes",
			"metadata_backend", cfg.MetadataBackend,
			"blob_backend", cfg.BlobBackend,
		)
	}
	log.Infow("stores ready", "metadata_backend", cfg.MetadataBackend, "blob_backend", cfg.BlobBackend)
	return s, nil
}

func (s *Stores) openMetadata(ctx context.Context, cfg *config.Config) (metastore.Store, error) {
	switch cfg.MetadataBackend {
	case config.MetaRedis:
		store, err := redisstore.New(ctx, RedisOptions(cfg))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, store.Close)
		return store, nil
	case config.MetaPostgres:
		db, err := database.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, db.Close)
		if err := database.Migrate(ctx, db); err != nil {
			return nil, err
		}
		return pgstore.New(db), nil
	case config.MetaBolt:
		store, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, store.Close)
		return store, nil
	case config.MetaMemory:
		return metastore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown metadata backend %q", cfg.MetadataBackend)
	}
}

func openBlobs(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	switch cfg.BlobBackend {
	case config.BlobMinio:
		store, err := miniostore.New(miniostore.Options{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return store, nil
	case config.BlobS3:
		return s3store.New(ctx, s3store.Options{
			Endpoint:  endpointURL(cfg.S3Endpoint, cfg.S3UseSSL),
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
		})
	case config.BlobMemory:
		return blobstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.BlobBackend)
	}
}

// endpointURL turns a host:port endpoint into a URL for the AWS SDK.
func endpointURL(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// RedisOptions maps the config onto the metadata store options.
func RedisOptions(cfg *config.Config) redisstore.Options {
	return redisstore.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// AsynqRedis maps the config onto asynq's connection options.
func AsynqRedis(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
}

// NewService builds the share engine. reporter may be nil.
func NewService(cfg *config.Config, stores *Stores, reporter shares.OrphanReporter, m *metrics.Metrics, log *zap.SugaredLogger) *shares.Service {
	opts := []shares.Option{
		shares.WithLimits(cfg.Limits()),
		shares.WithHasher(password.NewHasher(cfg.PBKDF2Iterations)),
		shares.WithMetrics(m),
		shares.WithLogger(log),
	}
	if reporter != nil {
		opts = append(opts, shares.WithOrphanReporter(reporter))
	}
	return shares.New(stores.Meta, stores.Blobs, opts...)
}

// NewSweeper builds the expiry sweeper.
func NewSweeper(cfg *config.Config, stores *Stores, m *metrics.Metrics, log *zap.SugaredLogger) *sweeper.Sweeper {
	return sweeper.New(stores.Meta, stores.Blobs,
		sweeper.WithPageSize(cfg.SweepPageSize),
		sweeper.WithMetrics(m),
		sweeper.WithLogger(log),
	)
}
