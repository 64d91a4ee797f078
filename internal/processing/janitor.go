// Package processing runs the in-process orphan janitor: a small worker pool
// fed by a buffered channel that retries blob deletes whose first attempt
// failed after the share record was already gone.
package processing

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/TobyX424242/ZeroShare/internal/blobstore"
)

const (
	defaultMaxAttempts = 5
	defaultBackoff     = 500 * time.Millisecond
)

// Job is one blob waiting to be deleted.
type Job struct {
	BlobKey string
}

// Janitor consumes Jobs and deletes their blobs with linear backoff.
type Janitor struct {
	blobs       blobstore.Store
	queue       chan Job
	workers     int
	maxAttempts int
	backoff     time.Duration
	log         *zap.SugaredLogger
	wg          sync.WaitGroup
}

// Option configures a Janitor.
type Option func(*Janitor)

// WithRetry sets the attempt budget and the base backoff between attempts.
func WithRetry(attempts int, backoff time.Duration) Option {
	return func(j *Janitor) {
		if attempts > 0 {
			j.maxAttempts = attempts
		}
		if backoff >= 0 {
			j.backoff = backoff
		}
	}
}

func WithLogger(l *zap.SugaredLogger) Option { return func(j *Janitor) { j.log = l } }

// New builds a Janitor with queue capacity tied to worker count.
func New(blobs blobstore.Store, workers int, opts ...Option) *Janitor {
	if workers <= 0 {
		workers = 1
	}
	j := &Janitor{
		blobs:       blobs,
		queue:       make(chan Job, workers*64),
		workers:     workers,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		log:         zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Start launches worker goroutines. They exit when ctx is cancelled.
func (j *Janitor) Start(ctx context.Context) {
	for i := 0; i < j.workers; i++ {
		j.wg.Add(1)
		go j.worker(ctx)
	}
}

// Wait blocks until every worker has exited.
func (j *Janitor) Wait() {
	j.wg.Wait()
}

// Submit queues a job without blocking. It reports false when the buffer is
// full and the job was dropped.
func (j *Janitor) Submit(job Job) bool {
	select {
	case j.queue <- job:
		return true
	default:
		j.log.Warnw("janitor queue full, dropping orphan", "blob_key", job.BlobKey)
		return false
	}
}

// ReportOrphan implements shares.OrphanReporter.
func (j *Janitor) ReportOrphan(_ context.Context, blobKey string, _ error) {
	j.Submit(Job{BlobKey: blobKey})
}

func (j *Janitor) worker(ctx context.Context) {
	defer j.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-j.queue:
			j.process(ctx, job)
		}
	}
}

func (j *Janitor) process(ctx context.Context, job Job) {
	var err error
	for attempt := 1; attempt <= j.maxAttempts; attempt++ {
		if err = j.blobs.Delete(ctx, job.BlobKey); err == nil {
			j.log.Infow("orphan blob deleted", "blob_key", job.BlobKey, "attempt", attempt)
			return
		}
		if attempt == j.maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(j.backoff * time.Duration(attempt)):
		}
	}
	j.log.Errorw("giving up on orphan blob", "blob_key", job.BlobKey, "attempts", j.maxAttempts, "error", err)
}
