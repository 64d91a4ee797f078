package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type captured struct {
	keys []string
}

func (c *captured) ReportOrphan(_ context.Context, key string, _ error) {
	c.keys = append(c.keys, key)
}

func TestDeleteBlobTask_RoundTrip(t *testing.T) {
	task, err := NewDeleteBlobTask(DeleteBlobPayload{BlobKey: "shares/a.bin", Reason: "timeout"})
	require.NoError(t, err)
	assert.Equal(t, TypeDeleteBlob, task.Type())

	payload, err := ParseDeleteBlob(task)
	require.NoError(t, err)
	assert.Equal(t, "shares/a.bin", payload.BlobKey)
	assert.Equal(t, "timeout", payload.Reason)
}

func TestDeleteBlobTask_RejectsEmptyKey(t *testing.T) {
	_, err := NewDeleteBlobTask(DeleteBlobPayload{})
	assert.Error(t, err)

	_, err = ParseDeleteBlob(asynq.NewTask(TypeDeleteBlob, []byte(`{"blob_key":""}`)))
	assert.Error(t, err)
	_, err = ParseDeleteBlob(asynq.NewTask(TypeDeleteBlob, []byte(`not json`)))
	assert.Error(t, err)
}

func TestSweepTask(t *testing.T) {
	assert.Equal(t, TypeSweep, NewSweepTask().Type())
}

func TestOrphanQueue_FallsBackWhenRedisDown(t *testing.T) {
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: "127.0.0.1:1"})
	defer client.Close()
	fallback := &captured{}
	q := NewOrphanQueue(client, fallback, zaptest.NewLogger(t).Sugar())

	q.ReportOrphan(context.Background(), "shares/b.bin", errors.New("s3 timeout"))
	assert.Equal(t, []string{"shares/b.bin"}, fallback.keys)
}
