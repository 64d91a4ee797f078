package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobyX424242/ZeroShare/internal/metastore"
	"github.com/TobyX424242/ZeroShare/internal/metastore/storetest"
	"github.com/TobyX424242/ZeroShare/internal/share"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewFromClient(client), mr
}

func TestStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) metastore.Store {
		s, _ := newTestStore(t)
		return s
	})
}

func TestStore_PutSetsTTL(t *testing.T) {
	s, mr := newTestStore(t)
	defer s.Close()
	rec := storetest.NewRecord(t, 2, false)
	require.NoError(t, s.Put(context.Background(), rec, 90*time.Second))

	assert.True(t, mr.Exists(share.MetadataKey(rec.ID)))
	assert.Equal(t, 90*time.Second, mr.TTL(share.MetadataKey(rec.ID)))

	mr.FastForward(91 * time.Second)
	_, err := s.Get(context.Background(), rec.ID)
	assert.ErrorIs(t, err, metastore.ErrNotFound)
}

func TestStore_ConsumeRefreshesTTL(t *testing.T) {
	s, mr := newTestStore(t)
	defer s.Close()
	ctx := context.Background()
	rec := storetest.NewRecord(t, 3, false)
	require.NoError(t, s.Put(ctx, rec, time.Hour))

	now := time.Now()
	_, final, err := s.ConsumeView(ctx, rec.ID, now)
	require.NoError(t, err)
	require.False(t, final)

	ttl := mr.TTL(share.MetadataKey(rec.ID))
	assert.InDelta(t, rec.ExpiresAt.Sub(now).Seconds(), ttl.Seconds(), 2)
}

func TestStore_ListSkipsForeignKeys(t *testing.T) {
	s, mr := newTestStore(t)
	defer s.Close()
	require.NoError(t, mr.Set("asynq:queue", "x"))
	require.NoError(t, mr.Set(share.MetadataKey("deadbeefdeadbeefdeadbeefdeadbeef"), "{broken"))
	rec := storetest.NewRecord(t, 1, false)
	require.NoError(t, s.Put(context.Background(), rec, time.Hour))

	page, err := s.List(context.Background(), "", 100)
	require.NoError(t, err)
	var good, bad int
	for _, e := range page.Entries {
		if e.Err != nil {
			bad++
			continue
		}
		good++
		assert.Equal(t, rec.ID, e.ID)
	}
	assert.Equal(t, 1, good)
	assert.Equal(t, 1, bad)
}

func TestStore_ListRejectsBadCursor(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()
	_, err := s.List(context.Background(), "not-a-number", 10)
	assert.Error(t, err)
}

func TestStore_LapsedAfterNativeExpiry(t *testing.T) {
	s, mr := newTestStore(t)
	defer s.Close()
	ctx := context.Background()
	rec := storetest.NewRecord(t, 3, false)
	require.NoError(t, s.Put(ctx, rec, time.Hour))

	lapsed, err := s.Lapsed(ctx, time.Now(), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, lapsed)

	mr.FastForward(2 * time.Hour)
	later := time.Now().Add(2 * time.Hour)

	_, err = s.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, metastore.ErrNotFound)
	page, err := s.List(ctx, "", 100)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)

	lapsed, err = s.Lapsed(ctx, later, 0, 10)
	require.NoError(t, err)
	require.Len(t, lapsed, 1)
	assert.Equal(t, rec.ID, lapsed[0].ID)
	assert.Equal(t, rec.BlobKey, lapsed[0].Record.BlobKey)
	assert.WithinDuration(t, rec.ExpiresAt, lapsed[0].Record.ExpiresAt, time.Millisecond)

	require.NoError(t, s.Delete(ctx, rec.ID))
	lapsed, err = s.Lapsed(ctx, later, 0, 10)
	require.NoError(t, err)
	assert.Empty(t, lapsed)
}

func TestStore_LapsedPagesByOffset(t *testing.T) {
	s, _ := newTestStore(t)
	defer s.Close()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Put(ctx, storetest.NewRecord(t, 1, false), time.Hour))
	}
	later := time.Now().Add(2 * time.Hour)

	first, err := s.Lapsed(ctx, later, 0, 3)
	require.NoError(t, err)
	rest, err := s.Lapsed(ctx, later, 3, 3)
	require.NoError(t, err)
	assert.Len(t, first, 3)
	assert.Len(t, rest, 2)
}

func TestStore_FinalViewLeavesExpiryIndex(t *testing.T) {
	s, mr := newTestStore(t)
	defer s.Close()
	ctx := context.Background()
	rec := storetest.NewRecord(t, 1, false)
	require.NoError(t, s.Put(ctx, rec, time.Hour))
	members, err := mr.ZMembers(ExpiryIndexKey)
	require.NoError(t, err)
	assert.Equal(t, []string{rec.ID}, members)

	_, final, err := s.ConsumeView(ctx, rec.ID, time.Now())
	require.NoError(t, err)
	require.True(t, final)

	lapsed, err := s.Lapsed(ctx, time.Now().Add(48*time.Hour), 0, 10)
	require.NoError(t, err)
	assert.Empty(t, lapsed)
}
