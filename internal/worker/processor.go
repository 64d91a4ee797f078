// Package worker holds the asynq handlers run by cmd/worker.
package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/TobyX424242/ZeroShare/internal/blobstore"
	"github.com/TobyX424242/ZeroShare/internal/queue"
	"github.com/TobyX424242/ZeroShare/internal/sweeper"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	sweeper *sweeper.Sweeper
	blobs   blobstore.Store
	log     *zap.SugaredLogger
}

// NewProcessor constructs a worker processor.
func NewProcessor(sw *sweeper.Sweeper, blobs blobstore.Store, log *zap.SugaredLogger) *Processor {
	return &Processor{sweeper: sw, blobs: blobs, log: log}
}

// Handler registers the task handlers.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeSweep, p.handleSweep)
	mux.HandleFunc(queue.TypeDeleteBlob, p.handleDeleteBlob)
	return mux
}

func (p *Processor) handleSweep(ctx context.Context, _ *asynq.Task) error {
	res, err := p.sweeper.Run(ctx)
	if err != nil {
		return fmt.Errorf("sweep: %w", err)
	}
	p.log.Infow("sweep task done", "deleted", res.Deleted, "failed", res.Failed)
	return nil
}

func (p *Processor) handleDeleteBlob(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseDeleteBlob(task)
	if err != nil {
		// A malformed payload will never succeed.
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	if err := p.blobs.Delete(ctx, payload.BlobKey); err != nil {
		p.log.Warnw("orphan delete failed", "blob_key", payload.BlobKey, "error", err)
		return err
	}
	p.log.Infow("orphan blob deleted", "blob_key", payload.BlobKey)
	return nil
}
