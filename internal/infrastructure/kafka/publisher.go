package kafka

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"kirimart/internal/domain/entity"
	"kirimart/pkg/logger"
)

// MessageWriter is the slice of kafka-go's Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
}

// FailedEventQueue holds events the broker would not take.
type FailedEventQueue interface {
	EnqueueFailed(ctx context.Context, payload []byte)
	DequeueFailed(ctx context.Context) []byte
}

// Publisher appends staged messages to the event log, keyed by chat ID so
// a chat's messages land on one partition and keep their send order. A
// failed append is retried once; after that the event goes to the failed
// queue instead of being dropped.
type Publisher struct {
	writer MessageWriter
	failed FailedEventQueue
}

// NewWriter builds the production kafka-go writer. The hash balancer maps
// equal keys to equal partitions, which is what carries the per-chat
// ordering guarantee.
func NewWriter(brokers []string, topic string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
	}
}

func NewPublisher(writer MessageWriter, failed FailedEventQueue) *Publisher {
	return &Publisher{
		writer: writer,
		failed: failed,
	}
}

// Publish serializes the message and appends it to the topic. Broker
// failures are absorbed here: the caller's send already succeeded locally
// via the staging cache, so the error is never surfaced to the sender.
func (p *Publisher) Publish(ctx context.Context, message *entity.Message) {
	payload, err := json.Marshal(message)
	if err != nil {
		logger.Error("publisher: marshal message %s: %v", message.ID, err)
		return
	}

	p.publishPayload(ctx, message.ChatID, payload)
}

func (p *Publisher) publishPayload(ctx context.Context, chatID string, payload []byte) {
	record := kafkago.Message{
		Key:   []byte(chatID),
		Value: payload,
	}

	err := p.writer.WriteMessages(ctx, record)
	if err == nil {
		return
	}

	logger.Warn("publisher: broker write failed, retrying once: %v", err)
	if err = p.writer.WriteMessages(ctx, record); err == nil {
		return
	}

	logger.Error("publisher: broker unreachable, parking event for chat %s: %v", chatID, err)
	p.failed.EnqueueFailed(ctx, payload)
}

// StartDrain re-publishes parked events on a fixed interval until the
// context is cancelled. An interval of zero disables the loop; the failed
// queue then requires manual intervention.
func (p *Publisher) StartDrain(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		logger.Info("publisher: retry drain disabled, failed_messages requires manual replay")
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				p.drainOnce(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (p *Publisher) drainOnce(ctx context.Context) {
	for {
		payload := p.failed.DequeueFailed(ctx)
		if payload == nil {
			return
		}

		var message entity.Message
		if err := json.Unmarshal(payload, &message); err != nil {
			logger.Error("publisher: dropping undecodable parked event: %v", err)
			continue
		}

		record := kafkago.Message{
			Key:   []byte(message.ChatID),
			Value: payload,
		}
		if err := p.writer.WriteMessages(ctx, record); err != nil {
			// Still down. Push the event back and stop this round.
			logger.Warn("publisher: drain attempt failed, re-parking event: %v", err)
			p.failed.EnqueueFailed(ctx, payload)
			return
		}
		logger.Info("publisher: replayed parked event %s for chat %s", message.ID, message.ChatID)
	}
}
