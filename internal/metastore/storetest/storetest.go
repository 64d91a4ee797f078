// Package storetest is a conformance suite for metastore.Store
// implementations.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobyX424242/ZeroShare/internal/metastore"
	"github.com/TobyX424242/ZeroShare/internal/share"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) metastore.Store

// NewRecord builds a valid record expiring in an hour.
func NewRecord(t *testing.T, maxViews int, burn bool) *share.Record {
	t.Helper()
	id, err := share.NewID()
	require.NoError(t, err)
	now := time.Now().UTC()
	return &share.Record{
		ID:            id,
		ExpiresAt:     now.Add(time.Hour),
		BlobKey:       share.BlobKeyFor(id),
		MaxViews:      maxViews,
		BurnAfterRead: burn,
		CreatedAt:     now,
	}
}

// Run executes every conformance test against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := map[string]func(*testing.T, metastore.Store){
		"GetMissing":            testGetMissing,
		"PutGet":                testPutGet,
		"PutRejectsBadTTL":      testPutRejectsBadTTL,
		"DeleteIdempotent":      testDeleteIdempotent,
		"ConsumeLimited":        testConsumeLimited,
		"ConsumeUnlimited":      testConsumeUnlimited,
		"ConsumeBurn":           testConsumeBurn,
		"ConsumeExpired":        testConsumeExpired,
		"ConsumeMissing":        testConsumeMissing,
		"ConcurrentSingleView":  testConcurrentSingleView,
		"ConcurrentLimitedView": testConcurrentLimitedView,
		"ListPaginates":         testListPaginates,
	}
	for name, fn := range tests {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			fn(t, s)
		})
	}
}

func testGetMissing(t *testing.T, s metastore.Store) {
	_, err := s.Get(context.Background(), "0123456789abcdef0123456789abcdef")
	assert.ErrorIs(t, err, metastore.ErrNotFound)
}

func testPutGet(t *testing.T, s metastore.Store) {
	ctx := context.Background()
	rec := NewRecord(t, 3, false)
	require.NoError(t, s.Put(ctx, rec, time.Hour))

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.BlobKey, got.BlobKey)
	assert.Equal(t, 3, got.MaxViews)
	assert.Equal(t, 0, got.CurrentViews)
	assert.True(t, rec.ExpiresAt.Equal(got.ExpiresAt))
}

func testPutRejectsBadTTL(t *testing.T, s metastore.Store) {
	err := s.Put(context.Background(), NewRecord(t, 1, false), 0)
	assert.ErrorIs(t, err, metastore.ErrInvalidTTL)
}

func testDeleteIdempotent(t *testing.T, s metastore.Store) {
	ctx := context.Background()
	rec := NewRecord(t, 1, false)
	require.NoError(t, s.Put(ctx, rec, time.Hour))
	require.NoError(t, s.Delete(ctx, rec.ID))
	require.NoError(t, s.Delete(ctx, rec.ID))
	_, err := s.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, metastore.ErrNotFound)
}

func testConsumeLimited(t *testing.T, s metastore.Store) {
	ctx := context.Background()
	rec := NewRecord(t, 3, false)
	require.NoError(t, s.Put(ctx, rec, time.Hour))

	for i := 1; i <= 3; i++ {
		got, final, err := s.ConsumeView(ctx, rec.ID, time.Now())
		require.NoError(t, err)
		assert.Equal(t, i, got.CurrentViews)
		assert.Equal(t, i == 3, final)
	}
	_, _, err := s.ConsumeView(ctx, rec.ID, time.Now())
	assert.ErrorIs(t, err, metastore.ErrNotFound, "final view removes the record")
	_, err = s.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, metastore.ErrNotFound)
}

func testConsumeUnlimited(t *testing.T, s metastore.Store) {
	ctx := context.Background()
	rec := NewRecord(t, share.Unlimited, false)
	require.NoError(t, s.Put(ctx, rec, time.Hour))
	for i := 0; i < 10; i++ {
		_, final, err := s.ConsumeView(ctx, rec.ID, time.Now())
		require.NoError(t, err)
		require.False(t, final)
	}
	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.CurrentViews)
}

func testConsumeBurn(t *testing.T, s metastore.Store) {
	ctx := context.Background()
	rec := NewRecord(t, 10, true)
	require.NoError(t, s.Put(ctx, rec, time.Hour))
	_, final, err := s.ConsumeView(ctx, rec.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, final)
	_, err = s.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, metastore.ErrNotFound)
}

func testConsumeExpired(t *testing.T, s metastore.Store) {
	ctx := context.Background()
	rec := NewRecord(t, 2, false)
	require.NoError(t, s.Put(ctx, rec, time.Hour))
	got, _, err := s.ConsumeView(ctx, rec.ID, rec.ExpiresAt.Add(time.Second))
	assert.ErrorIs(t, err, share.ErrExpired)
	if got != nil {
		assert.Equal(t, rec.BlobKey, got.BlobKey)
	}
}

func testConsumeMissing(t *testing.T, s metastore.Store) {
	_, _, err := s.ConsumeView(context.Background(), "ffffffffffffffffffffffffffffffff", time.Now())
	assert.ErrorIs(t, err, metastore.ErrNotFound)
}

// race runs n concurrent ConsumeView calls and counts successes.
func race(t *testing.T, s metastore.Store, id string, n int) int {
	t.Helper()
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, _, err := s.ConsumeView(context.Background(), id, time.Now())
			switch {
			case err == nil:
				mu.Lock()
				successes++
				mu.Unlock()
			case errors.Is(err, metastore.ErrNotFound),
				errors.Is(err, metastore.ErrConflict),
				errors.Is(err, share.ErrViewLimitExceeded):
			default:
				t.Errorf("unexpected consume error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()
	return successes
}

func testConcurrentSingleView(t *testing.T, s metastore.Store) {
	ctx := context.Background()
	rec := NewRecord(t, 1, false)
	require.NoError(t, s.Put(ctx, rec, time.Hour))

	assert.Equal(t, 1, race(t, s, rec.ID, 16))
	_, _, err := s.ConsumeView(ctx, rec.ID, time.Now())
	assert.ErrorIs(t, err, metastore.ErrNotFound)
}

func testConcurrentLimitedView(t *testing.T, s metastore.Store) {
	ctx := context.Background()
	rec := NewRecord(t, 5, false)
	require.NoError(t, s.Put(ctx, rec, time.Hour))

	total := race(t, s, rec.ID, 20)
	require.LessOrEqual(t, total, 5)
	// Optimistic stores may turn some racers away; drain the remainder.
	for {
		_, _, err := s.ConsumeView(ctx, rec.ID, time.Now())
		if err != nil {
			require.ErrorIs(t, err, metastore.ErrNotFound)
			break
		}
		total++
	}
	assert.Equal(t, 5, total)
}

func testListPaginates(t *testing.T, s metastore.Store) {
	ctx := context.Background()
	want := make(map[string]bool)
	for i := 0; i < 7; i++ {
		rec := NewRecord(t, 1, false)
		require.NoError(t, s.Put(ctx, rec, time.Hour))
		want[rec.ID] = true
	}

	seen := make(map[string]bool)
	cursor := ""
	for pages := 0; ; pages++ {
		require.Less(t, pages, 20, "scan did not terminate")
		page, err := s.List(ctx, cursor, 3)
		require.NoError(t, err)
		for _, e := range page.Entries {
			require.NoError(t, e.Err)
			require.NotNil(t, e.Record)
			seen[e.ID] = true
		}
		if page.Next == "" {
			break
		}
		cursor = page.Next
	}
	assert.Equal(t, want, seen, fmt.Sprintf("listed %d of %d", len(seen), len(want)))
}
