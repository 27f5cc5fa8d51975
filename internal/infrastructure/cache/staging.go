package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"kirimart/internal/domain/entity"
	"kirimart/pkg/logger"
)

const failedQueueKey = "failed_messages"

// StagingCache is the ephemeral write-through buffer for messages awaiting
// durable commit, plus the holding list for events the publisher could not
// hand to the broker. When Redis is unreachable every operation degrades to
// a logged no-op; durable storage and the socket broadcast remain the source
// of truth.
type StagingCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStagingCache connects to Redis at the given URL. A connection failure
// does not return an error: the cache comes up degraded and stays usable.
func NewStagingCache(redisURL string, ttl time.Duration) *StagingCache {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn("staging cache: invalid REDIS_URL, running degraded: %v", err)
		return &StagingCache{ttl: ttl}
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("staging cache: redis unreachable, running degraded: %v", err)
		_ = client.Close()
		return &StagingCache{ttl: ttl}
	}

	return &StagingCache{client: client, ttl: ttl}
}

func stagingKey(chatID, tempID string) string {
	return fmt.Sprintf("staging:%s:%s", chatID, tempID)
}

// Stage upserts the message under (chatId, tempId) so the sender's client
// gets read-after-write visibility before durable commit.
func (c *StagingCache) Stage(ctx context.Context, chatID, tempID string, message *entity.Message) {
	if c.client == nil {
		logger.Warn("staging cache degraded, skipping stage for chat %s", chatID)
		return
	}

	payload, err := json.Marshal(message)
	if err != nil {
		logger.Warn("staging cache: marshal message %s: %v", message.ID, err)
		return
	}

	if err := c.client.Set(ctx, stagingKey(chatID, tempID), payload, c.ttl).Err(); err != nil {
		logger.Warn("staging cache: stage %s/%s: %v", chatID, tempID, err)
	}
}

// StagedForChat returns every message still staged for the chat. The read
// path merges these into a sender's history so a send is visible to its own
// devices before durable commit. Empty when the cache is degraded.
func (c *StagingCache) StagedForChat(ctx context.Context, chatID string) []*entity.Message {
	if c.client == nil {
		return nil
	}

	var messages []*entity.Message
	iter := c.client.Scan(ctx, 0, stagingKey(chatID, "*"), 100).Iterator()
	for iter.Next(ctx) {
		payload, err := c.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			// Expired between scan and get, or transient; skip.
			continue
		}
		var message entity.Message
		if err := json.Unmarshal(payload, &message); err != nil {
			logger.Warn("staging cache: unmarshal %s: %v", iter.Val(), err)
			continue
		}
		messages = append(messages, &message)
	}
	if err := iter.Err(); err != nil {
		logger.Warn("staging cache: scan chat %s: %v", chatID, err)
	}
	return messages
}

// Remove drops the staging entry once the durable record exists.
func (c *StagingCache) Remove(ctx context.Context, chatID, tempID string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, stagingKey(chatID, tempID)).Err(); err != nil {
		logger.Warn("staging cache: remove %s/%s: %v", chatID, tempID, err)
	}
}

// EnqueueFailed appends an event the publisher could not deliver to the
// retry list.
func (c *StagingCache) EnqueueFailed(ctx context.Context, payload []byte) {
	if c.client == nil {
		logger.Warn("staging cache degraded, dropping failed event from retry list")
		return
	}
	if err := c.client.RPush(ctx, failedQueueKey, payload).Err(); err != nil {
		logger.Warn("staging cache: enqueue failed event: %v", err)
	}
}

// DequeueFailed pops the oldest failed event, returning nil when the list is
// empty or the cache is degraded.
func (c *StagingCache) DequeueFailed(ctx context.Context) []byte {
	if c.client == nil {
		return nil
	}
	payload, err := c.client.LPop(ctx, failedQueueKey).Bytes()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		logger.Warn("staging cache: dequeue failed event: %v", err)
		return nil
	}
	return payload
}

// FailedQueue returns the retry list without consuming it.
func (c *StagingCache) FailedQueue(ctx context.Context) [][]byte {
	if c.client == nil {
		return nil
	}
	values, err := c.client.LRange(ctx, failedQueueKey, 0, -1).Result()
	if err != nil {
		logger.Warn("staging cache: read failed queue: %v", err)
		return nil
	}
	queue := make([][]byte, 0, len(values))
	for _, v := range values {
		queue = append(queue, []byte(v))
	}
	return queue
}

func (c *StagingCache) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}
