package metastore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobyX424242/ZeroShare/internal/metastore"
	"github.com/TobyX424242/ZeroShare/internal/metastore/storetest"
)

func TestMemoryStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) metastore.Store {
		return metastore.NewMemoryStore()
	})
}

func TestMemoryStore_TTLLapses(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	s := metastore.NewMemoryStore(metastore.WithClock(clock))
	ctx := context.Background()

	rec := storetest.NewRecord(t, 1, false)
	require.NoError(t, s.Put(ctx, rec, time.Minute))
	_, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, metastore.ErrNotFound)
	_, _, err = s.ConsumeView(ctx, rec.ID, now)
	assert.ErrorIs(t, err, metastore.ErrNotFound)

	page, err := s.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 1, "lapsed records stay listed for the sweeper")
	assert.Equal(t, rec.ID, page.Entries[0].ID)

	require.NoError(t, s.Delete(ctx, rec.ID))
	page, err = s.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
}

func TestMemoryStore_ListReportsCorruptEntries(t *testing.T) {
	s := metastore.NewMemoryStore()
	ctx := context.Background()
	good := storetest.NewRecord(t, 1, false)
	require.NoError(t, s.Put(ctx, good, time.Hour))
	s.PutRaw("00000000000000000000000000000000", []byte("{not json"), time.Hour)

	page, err := s.List(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, page.Entries, 2)
	assert.Error(t, page.Entries[0].Err)
	assert.Nil(t, page.Entries[0].Record)
	assert.NoError(t, page.Entries[1].Err)
}
