package processing

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/TobyX424242/ZeroShare/internal/blobstore"
)

// stubbornBlobs fails its first n deletes, n being failures.
type stubbornBlobs struct {
	*blobstore.MemoryStore
	failures int32
	calls    atomic.Int32
}

func (s *stubbornBlobs) Delete(ctx context.Context, key string) error {
	if s.calls.Add(1) <= s.failures {
		return errors.New("unavailable")
	}
	return s.MemoryStore.Delete(ctx, key)
}

func TestJanitor_RetriesUntilDeleted(t *testing.T) {
	blobs := &stubbornBlobs{MemoryStore: blobstore.NewMemoryStore(), failures: 2}
	require.NoError(t, blobs.Put(context.Background(), "shares/a.bin", strings.NewReader("x"), 1, blobstore.Meta{}))

	j := New(blobs, 1, WithRetry(5, time.Millisecond), WithLogger(zaptest.NewLogger(t).Sugar()))
	ctx, cancel := context.WithCancel(context.Background())
	j.Start(ctx)
	defer func() {
		cancel()
		j.Wait()
	}()

	j.ReportOrphan(ctx, "shares/a.bin", errors.New("first try failed"))
	assert.Eventually(t, func() bool { return !blobs.Has("shares/a.bin") }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), blobs.calls.Load())
}

func TestJanitor_GivesUp(t *testing.T) {
	blobs := &stubbornBlobs{MemoryStore: blobstore.NewMemoryStore(), failures: 100}
	j := New(blobs, 2, WithRetry(3, 0))
	ctx, cancel := context.WithCancel(context.Background())
	j.Start(ctx)

	require.True(t, j.Submit(Job{BlobKey: "shares/b.bin"}))
	assert.Eventually(t, func() bool { return blobs.calls.Load() == 3 }, time.Second, 5*time.Millisecond)
	cancel()
	j.Wait()
	assert.Equal(t, int32(3), blobs.calls.Load())
}

func TestJanitor_SubmitDropsWhenFull(t *testing.T) {
	j := New(blobstore.NewMemoryStore(), 1)
	accepted := 0
	for i := 0; i < cap(j.queue)+5; i++ {
		if j.Submit(Job{BlobKey: "k"}) {
			accepted++
		}
	}
	assert.Equal(t, cap(j.queue), accepted)
}
