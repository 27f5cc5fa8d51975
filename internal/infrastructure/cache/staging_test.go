package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"kirimart/internal/domain/entity"
)

// All staging operations must degrade to no-ops when Redis is unreachable:
// the send path keeps working off the event log and durable store alone.
func TestDegradedCacheIsANoOp(t *testing.T) {
	c := NewStagingCache("redis://127.0.0.1:1/0", time.Minute)
	ctx := context.Background()

	assert.NotPanics(t, func() {
		c.Stage(ctx, "room-1", "tmp-1", &entity.Message{ID: "m1", ChatID: "room-1"})
	})
	assert.Empty(t, c.StagedForChat(ctx, "room-1"))
	assert.NotPanics(t, func() { c.Remove(ctx, "room-1", "tmp-1") })
	assert.NotPanics(t, func() { c.EnqueueFailed(ctx, []byte(`{}`)) })
	assert.Nil(t, c.DequeueFailed(ctx))
	assert.Empty(t, c.FailedQueue(ctx))
	assert.NoError(t, c.Close())
}

func TestDegradedCacheOnBadURL(t *testing.T) {
	c := NewStagingCache("not-a-redis-url", time.Minute)

	assert.NotPanics(t, func() {
		c.Stage(context.Background(), "room-1", "tmp-1", &entity.Message{ID: "m1"})
	})
	assert.Empty(t, c.StagedForChat(context.Background(), "room-1"))
}
