// Package queue defines the asynq tasks the service enqueues: the periodic
// expiry sweep and the retryable delete of an orphaned blob.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	// TypeSweep runs one pass of the expiry sweeper.
	TypeSweep = "share:sweep"
	// TypeDeleteBlob deletes a blob whose record is already gone.
	TypeDeleteBlob = "blob:delete"
)

// sweepUniqueFor keeps overlapping triggers from stacking up sweeps.
const sweepUniqueFor = 5 * time.Minute

// DeleteBlobPayload is serialized into blob:delete tasks.
type DeleteBlobPayload struct {
	BlobKey string `json:"blob_key"`
	Reason  string `json:"reason,omitempty"`
}

// NewSweepTask builds a sweep task.
func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeSweep, nil, asynq.Unique(sweepUniqueFor), asynq.MaxRetry(1))
}

// NewDeleteBlobTask builds a blob:delete task.
func NewDeleteBlobTask(payload DeleteBlobPayload) (*asynq.Task, error) {
	if payload.BlobKey == "" {
		return nil, errors.New("queue: empty blob key")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(TypeDeleteBlob, data, asynq.MaxRetry(10)), nil
}

// ParseDeleteBlob decodes a blob:delete payload.
func ParseDeleteBlob(task *asynq.Task) (DeleteBlobPayload, error) {
	var payload DeleteBlobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.BlobKey == "" {
		return payload, errors.New("queue: empty blob key")
	}
	return payload, nil
}

// EnqueueSweep enqueues a sweep unless one is already pending.
func EnqueueSweep(ctx context.Context, client *asynq.Client) error {
	if _, err := client.EnqueueContext(ctx, NewSweepTask()); err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue sweep task: %w", err)
	}
	return nil
}

// EnqueueDeleteBlob enqueues a blob delete.
func EnqueueDeleteBlob(ctx context.Context, client *asynq.Client, payload DeleteBlobPayload) error {
	task, err := NewDeleteBlobTask(payload)
	if err != nil {
		return err
	}
	if _, err := client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue blob delete: %w", err)
	}
	return nil
}

// RegisterSweep adds the periodic sweep to scheduler using a cron spec such
// as "@every 10m".
func RegisterSweep(scheduler *asynq.Scheduler, cronspec string) (string, error) {
	id, err := scheduler.Register(cronspec, NewSweepTask())
	if err != nil {
		return "", fmt.Errorf("register sweep %q: %w", cronspec, err)
	}
	return id, nil
}

// Reporter receives orphaned blob keys.
type Reporter interface {
	ReportOrphan(ctx context.Context, blobKey string, cause error)
}

// OrphanQueue hands orphaned blobs to the worker through asynq so the delete
// survives a server restart. When enqueueing fails it falls back to the
// in-process reporter, if any.
type OrphanQueue struct {
	client   *asynq.Client
	fallback Reporter
	log      *zap.SugaredLogger
}

// NewOrphanQueue constructs an OrphanQueue. fallback may be nil.
func NewOrphanQueue(client *asynq.Client, fallback Reporter, log *zap.SugaredLogger) *OrphanQueue {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &OrphanQueue{client: client, fallback: fallback, log: log}
}

func (q *OrphanQueue) ReportOrphan(ctx context.Context, blobKey string, cause error) {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	err := EnqueueDeleteBlob(ctx, q.client, DeleteBlobPayload{BlobKey: blobKey, Reason: reason})
	if err == nil {
		return
	}
	q.log.Warnw("enqueue orphan delete", "blob_key", blobKey, "error", err)
	if q.fallback != nil {
		q.fallback.ReportOrphan(ctx, blobKey, cause)
	}
}
