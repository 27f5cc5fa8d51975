package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"kirimart/internal/domain/entity"
	"kirimart/internal/domain/repository"
	"kirimart/pkg/logger"
)

const maxRetryBackoff = 30 * time.Second

// Broadcaster receives committed-message notifications so the gateway can
// confirm delivery to connected clients. A nil broadcaster (the standalone
// worker binary) persists without fanning out.
type Broadcaster interface {
	MessageCommitted(message *entity.Message, room *entity.ChatRoom)
}

// StagingRemover drops the staging entry once the durable record exists.
type StagingRemover interface {
	Remove(ctx context.Context, chatID, tempID string)
}

// Consumer reads the event log and moves each message into durable storage.
// Delivery is at-least-once; the upsert keyed by durable message ID keeps
// redelivered events from creating duplicates.
type Consumer struct {
	reader      *kafkago.Reader
	messages    repository.MessageRepository
	chats       repository.ChatRepository
	staging     StagingRemover
	broadcaster Broadcaster

	retryBackoff time.Duration
}

func NewReader(brokers []string, topic, groupID string) *kafkago.Reader {
	return kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0, // explicit commits, after persistence
	})
}

func NewConsumer(
	reader *kafkago.Reader,
	messages repository.MessageRepository,
	chats repository.ChatRepository,
	staging StagingRemover,
	broadcaster Broadcaster,
) *Consumer {
	return &Consumer{
		reader:       reader,
		messages:     messages,
		chats:        chats,
		staging:      staging,
		broadcaster:  broadcaster,
		retryBackoff: time.Second,
	}
}

// Run blocks until the context is cancelled. Offsets are committed only
// after the message has been persisted, so a crash between persist and
// commit redelivers the event and the idempotent upsert absorbs it.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		record, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		if err := c.handleWithRetry(ctx, record.Value); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}

		if err := c.reader.CommitMessages(ctx, record); err != nil {
			logger.Warn("consumer: commit offset %d: %v", record.Offset, err)
		}
	}
}

// handleWithRetry blocks on the current event until it persists. Skipping a
// failed event and committing a later one would mark the failed offset as
// consumed, losing a durably published message; retrying in place also keeps
// the partition's per-chat order intact.
func (c *Consumer) handleWithRetry(ctx context.Context, payload []byte) error {
	backoff := c.retryBackoff
	for {
		err := c.handle(ctx, payload)
		if err == nil {
			return nil
		}
		logger.Error("consumer: handling event failed, retrying in %s: %v", backoff, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < maxRetryBackoff {
			backoff *= 2
		}
	}
}

func (c *Consumer) handle(ctx context.Context, payload []byte) error {
	var message entity.Message
	if err := json.Unmarshal(payload, &message); err != nil {
		// Poison event. Log and commit past it rather than loop forever.
		logger.Error("consumer: undecodable event, skipping: %v", err)
		return nil
	}

	if message.ID == "" || message.ChatID == "" {
		logger.Warn("consumer: event missing id or chatId, skipping")
		return nil
	}

	inserted, err := c.messages.Upsert(ctx, &message)
	if err != nil {
		return err
	}

	room, err := c.chats.GetByID(ctx, message.ChatID)
	if err != nil {
		// The room may have been deleted since the send. The message is
		// durable either way.
		logger.Warn("consumer: room %s lookup after commit: %v", message.ChatID, err)
		room = nil
	}

	// Counter and preview bookkeeping runs once per message: a redelivered
	// event (inserted == false) already had its turn.
	if room != nil && inserted {
		if err := c.chats.UpdateLastMessage(ctx, room.ID, message.Content, message.SentAt); err != nil {
			logger.Warn("consumer: update last message for room %s: %v", room.ID, err)
		}
		for _, participantID := range room.OtherParticipants(message.SenderID) {
			if err := c.chats.IncrementUnread(ctx, room.ID, participantID); err != nil {
				logger.Warn("consumer: increment unread for %s in room %s: %v", participantID, room.ID, err)
			}
		}
		// Reload so the broadcast carries the updated counters.
		if updated, err := c.chats.GetByID(ctx, room.ID); err == nil {
			room = updated
		}
	}

	if c.staging != nil && message.TempID != "" {
		c.staging.Remove(ctx, message.ChatID, message.TempID)
	}

	if c.broadcaster != nil {
		c.broadcaster.MessageCommitted(&message, room)
	}

	return nil
}

// Close releases the underlying reader. Run returns once the reader closes.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
