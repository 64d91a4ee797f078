package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobyX424242/ZeroShare/internal/share"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Address)
	assert.Equal(t, int64(100<<20), cfg.MaxFileSize)
	assert.Equal(t, MetaMemory, cfg.MetadataBackend)
	assert.Equal(t, BlobMemory, cfg.BlobBackend)
	assert.Equal(t, "@every 10m", cfg.SweepSchedule)
	assert.Len(t, cfg.SigningSecret, 32)
	assert.Equal(t, share.DefaultLimits(), cfg.Limits())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ZEROSHARE_ADDRESS", ":9999")
	t.Setenv("MAX_RETENTION_HOURS", "168")
	t.Setenv("DEFAULT_RETENTION_HOURS", "1.5")
	t.Setenv("MAX_VIEWS_LIMIT", "10")
	t.Setenv("MIN_TTL", "2m")
	t.Setenv("METADATA_BACKEND", "redis")
	t.Setenv("BLOB_BACKEND", "s3")
	t.Setenv("S3_USE_SSL", "true")
	t.Setenv("ADMIN_SECRET", "hush")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Address)
	assert.Equal(t, MetaRedis, cfg.MetadataBackend)
	assert.Equal(t, BlobS3, cfg.BlobBackend)
	assert.True(t, cfg.S3UseSSL)
	assert.Equal(t, []byte("hush"), cfg.SigningSecret)

	l := cfg.Limits()
	assert.Equal(t, 168.0, l.MaxRetentionHours)
	assert.Equal(t, 1.5, l.DefaultRetentionHours)
	assert.Equal(t, 10, l.MaxViews)
	assert.Equal(t, 2*time.Minute, l.MinTTL)
}

func TestLoad_NonPositiveFallsBack(t *testing.T) {
	t.Setenv("MAX_VIEWS_LIMIT", "-3")
	t.Setenv("MAX_FILE_SIZE", "0")
	t.Setenv("SWEEP_PAGE_SIZE", "-1")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, share.DefaultMaxViewsLimit, cfg.MaxViewsLimit)
	assert.Equal(t, int64(defaultMaxFileSize), cfg.MaxFileSize)
	assert.Equal(t, defaultSweepPageSize, cfg.SweepPageSize)
}

func TestLoad_Rejects(t *testing.T) {
	tests := map[string]map[string]string{
		"unknown metadata": {"METADATA_BACKEND": "mongo"},
		"unknown blob":     {"BLOB_BACKEND": "ftp"},
		"postgres no dsn":  {"METADATA_BACKEND": "postgres"},
		"bad number":       {"MAX_VIEWS_LIMIT": "lots"},
	}
	for name, vars := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
