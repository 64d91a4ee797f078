package app

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/TobyX424242/ZeroShare/internal/blobstore"
	"github.com/TobyX424242/ZeroShare/internal/config"
	"github.com/TobyX424242/ZeroShare/internal/metastore"
	"github.com/TobyX424242/ZeroShare/internal/metastore/boltstore"
	"github.com/TobyX424242/ZeroShare/internal/metastore/redisstore"
	"github.com/TobyX424242/ZeroShare/internal/share"
	"github.com/TobyX424242/ZeroShare/internal/shares"
	"github.com/TobyX424242/ZeroShare/internal/sweeper"
)

func baseConfig() *config.Config {
	return &config.Config{
		MetadataBackend:       config.MetaMemory,
		BlobBackend:           config.BlobMemory,
		MaxRetentionHours:     24,
		DefaultRetentionHours: 24,
		MaxViewsLimit:         50,
		MaxPasswordLength:     512,
		MaxMetadataLength:     8192,
		MinTTL:                share.DefaultMinTTL,
		PBKDF2Iterations:      1000,
		SweepPageSize:         10,
	}
}

func TestOpenStores_Memory(t *testing.T) {
	stores, err := OpenStores(context.Background(), baseConfig(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer stores.Close()
	assert.IsType(t, &metastore.MemoryStore{}, stores.Meta)
	assert.IsType(t, &blobstore.MemoryStore{}, stores.Blobs)
}

func TestOpenStores_Bolt(t *testing.T) {
	cfg := baseConfig()
	cfg.MetadataBackend = config.MetaBolt
	cfg.BoltPath = filepath.Join(t.TempDir(), "meta.db")

	stores, err := OpenStores(context.Background(), cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	assert.IsType(t, &boltstore.Store{}, stores.Meta)
	require.NoError(t, stores.Close())
}

func TestOpenStores_RedisRoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.MetadataBackend = config.MetaRedis
	cfg.RedisAddr = mr.Addr()
	log := zaptest.NewLogger(t).Sugar()

	stores, err := OpenStores(context.Background(), cfg, log)
	require.NoError(t, err)
	defer stores.Close()
	assert.IsType(t, &redisstore.Store{}, stores.Meta)

	svc := NewService(cfg, stores, nil, nil, log)
	ctx := context.Background()
	res, err := svc.Upload(ctx, shares.UploadRequest{Body: strings.NewReader("abc"), Size: 3})
	require.NoError(t, err)
	assert.True(t, mr.Exists(share.MetadataKey(res.ShareID)))

	st, err := svc.Check(ctx, res.ShareID)
	require.NoError(t, err)
	assert.True(t, st.Exists)

	res2, err := NewSweeper(cfg, stores, nil, log).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res2.Scanned)
	assert.Zero(t, res2.Deleted)
}

func TestOpenStores_RedisSweepsLapsedShares(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := baseConfig()
	cfg.MetadataBackend = config.MetaRedis
	cfg.RedisAddr = mr.Addr()
	log := zaptest.NewLogger(t).Sugar()

	stores, err := OpenStores(context.Background(), cfg, log)
	require.NoError(t, err)
	defer stores.Close()
	blobs := stores.Blobs.(*blobstore.MemoryStore)

	svc := NewService(cfg, stores, nil, nil, log)
	ctx := context.Background()
	hours := 1.0
	res, err := svc.Upload(ctx, shares.UploadRequest{
		Body:   strings.NewReader("abc"),
		Size:   3,
		Access: share.AccessRequest{ExpiresInHours: &hours},
	})
	require.NoError(t, err)

	mr.FastForward(2 * time.Hour)
	assert.False(t, mr.Exists(share.MetadataKey(res.ShareID)))
	assert.True(t, blobs.Has(share.BlobKeyFor(res.ShareID)))

	later := func() time.Time { return time.Now().Add(2 * time.Hour) }
	swept, err := sweeper.New(stores.Meta, stores.Blobs, sweeper.WithClock(later)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, swept.Deleted)
	assert.False(t, blobs.Has(share.BlobKeyFor(res.ShareID)))

	again, err := sweeper.New(stores.Meta, stores.Blobs, sweeper.WithClock(later)).Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Deleted)
}

func TestOpenStores_RedisDown(t *testing.T) {
	cfg := baseConfig()
	cfg.MetadataBackend = config.MetaRedis
	cfg.RedisAddr = "127.0.0.1:1"
	_, err := OpenStores(context.Background(), cfg, zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
}

func TestEndpointURL(t *testing.T) {
	assert.Equal(t, "http://minio:9000", endpointURL("minio:9000", false))
	assert.Equal(t, "https://minio:9000", endpointURL("minio:9000", true))
	assert.Equal(t, "https://s3.amazonaws.com", endpointURL("https://s3.amazonaws.com", false))
	assert.Equal(t, "", endpointURL("", true))
}
