package blobstore

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	meta := Meta{ContentType: "application/octet-stream", EncryptedMetadata: "enc", CreatedAt: time.Now().UTC()}

	require.NoError(t, s.Put(ctx, "shares/a.bin", strings.NewReader("cipher"), 6, meta))
	obj, err := s.Get(ctx, "shares/a.bin")
	require.NoError(t, err)
	defer obj.Body.Close()

	body, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, "cipher", string(body))
	assert.Equal(t, int64(6), obj.Size)
	assert.Equal(t, meta, obj.Meta)
}

func TestMemoryStore_SizeMismatch(t *testing.T) {
	s := NewMemoryStore()
	err := s.Put(context.Background(), "k", strings.NewReader("abc"), 10, Meta{})
	assert.Error(t, err)
	assert.False(t, s.Has("k"))
}

func TestMemoryStore_DeleteMissing(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Delete(ctx, "nope"))

	_, err := s.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSidecarCodec(t *testing.T) {
	meta := Meta{
		ContentType:       "image/png",
		EncryptedMetadata: strings.Repeat("x", 8192),
		CreatedAt:         time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		ExpiresAt:         time.Date(2025, 1, 3, 3, 4, 5, 0, time.UTC),
	}
	data, err := EncodeMeta(meta)
	require.NoError(t, err)
	got, err := DecodeMeta(data)
	require.NoError(t, err)
	assert.Equal(t, meta, got)

	_, err = DecodeMeta([]byte("{"))
	assert.Error(t, err)
	assert.Equal(t, "shares/x.bin.meta", SidecarKey("shares/x.bin"))
}
