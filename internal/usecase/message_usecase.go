package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"kirimart/internal/domain/entity"
	"kirimart/internal/domain/repository"
	"kirimart/internal/infrastructure/ratelimit"
	"kirimart/pkg/errors"
	"kirimart/pkg/logger"
)

// MessageStager is the staging-cache surface of the send and read pipelines.
type MessageStager interface {
	Stage(ctx context.Context, chatID, tempID string, message *entity.Message)
	StagedForChat(ctx context.Context, chatID string) []*entity.Message
}

// EventPublisher hands a staged message to the durable event pipeline.
// Implementations absorb broker failures; publishing never fails the send.
type EventPublisher interface {
	Publish(ctx context.Context, message *entity.Message)
}

type MessageUseCase struct {
	messages  repository.MessageRepository
	chats     repository.ChatRepository
	staging   MessageStager
	publisher EventPublisher
	limiter   *ratelimit.RateLimiter
}

func NewMessageUseCase(
	messages repository.MessageRepository,
	chats repository.ChatRepository,
	staging MessageStager,
	publisher EventPublisher,
) *MessageUseCase {
	limiter := ratelimit.NewRateLimiter()
	limiter.StartCleanupRoutine()

	return &MessageUseCase{
		messages:  messages,
		chats:     chats,
		staging:   staging,
		publisher: publisher,
		limiter:   limiter,
	}
}

type SendMessageInput struct {
	ChatID      string
	Content     string
	MessageType string
	Attachments []string
	TempID      string
	SentAt      time.Time
}

// Send assigns the durable ID, writes the staging entry and publishes the
// event. It returns as soon as the event is handed off; durable commit is
// the consumer's job and its failure modes never surface here.
func (uc *MessageUseCase) Send(ctx context.Context, senderID string, in SendMessageInput) (*entity.Message, error) {
	allowed, waitTime := uc.limiter.Allow(senderID, "send_message")
	if !allowed {
		logger.Warn("send rate limited: participant %s must wait %v", senderID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before sending another message", waitTime)
	}

	if in.ChatID == "" || in.Content == "" || in.TempID == "" || senderID == "" {
		return nil, errors.BadRequest("chatId, content, tempId and sender are required", nil)
	}

	room, err := uc.chats.GetByID(ctx, in.ChatID)
	if err != nil {
		return nil, err
	}
	if !room.HasParticipant(senderID) {
		return nil, errors.Forbidden("You are not a participant of this chat", nil)
	}

	messageType := entity.MessageType(in.MessageType)
	if messageType == "" {
		messageType = entity.MessageTypeText
	}
	sentAt := in.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	attachments := in.Attachments
	if attachments == nil {
		attachments = []string{}
	}

	message := &entity.Message{
		ID:          uuid.New().String(),
		TempID:      in.TempID,
		ChatID:      in.ChatID,
		SenderID:    senderID,
		Content:     in.Content,
		MessageType: messageType,
		Attachments: attachments,
		Status:      entity.StatusSent,
		SentAt:      sentAt,
	}

	uc.staging.Stage(ctx, message.ChatID, message.TempID, message)
	uc.publisher.Publish(ctx, message)

	return message, nil
}

func (uc *MessageUseCase) MarkDelivered(ctx context.Context, messageID string) (*entity.Message, error) {
	return uc.messages.Transition(ctx, messageID, entity.StatusDelivered, time.Now())
}

func (uc *MessageUseCase) MarkRead(ctx context.Context, messageID string) (*entity.Message, error) {
	return uc.messages.Transition(ctx, messageID, entity.StatusRead, time.Now())
}

// Transition maps a client-supplied status string onto the state machine.
func (uc *MessageUseCase) Transition(ctx context.Context, messageID, status string) (*entity.Message, error) {
	switch entity.MessageStatus(status) {
	case entity.StatusDelivered:
		return uc.MarkDelivered(ctx, messageID)
	case entity.StatusRead:
		return uc.MarkRead(ctx, messageID)
	default:
		return nil, errors.BadRequest("status must be delivered or read", nil)
	}
}

// MarkAllRead transitions every message in the room not sent by the
// participant and zeroes their unread counter. Returns the refreshed room.
func (uc *MessageUseCase) MarkAllRead(ctx context.Context, roomID, participantID string) (*entity.ChatRoom, error) {
	transitioned, err := uc.messages.BulkMarkRead(ctx, roomID, participantID, time.Now())
	if err != nil {
		return nil, err
	}
	if transitioned > 0 {
		logger.Debug("marked %d messages read in room %s for %s", transitioned, roomID, participantID)
	}

	return uc.chats.ResetUnread(ctx, roomID, participantID)
}

func (uc *MessageUseCase) ListMessages(ctx context.Context, participantID, chatID string, limit, offset int) ([]*entity.Message, int64, error) {
	room, err := uc.chats.GetByID(ctx, chatID)
	if err != nil {
		return nil, 0, err
	}
	if !room.HasParticipant(participantID) {
		return nil, 0, errors.Forbidden("You are not a participant of this chat", nil)
	}

	messages, total, err := uc.messages.ListByChat(ctx, chatID, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	// Prepend the participant's own in-flight messages to the first page so
	// a send is readable by its sender before durable commit.
	if offset == 0 {
		committed := make(map[string]struct{}, len(messages))
		for _, m := range messages {
			committed[m.ID] = struct{}{}
		}
		for _, staged := range uc.staging.StagedForChat(ctx, chatID) {
			if staged.SenderID != participantID {
				continue
			}
			if _, ok := committed[staged.ID]; ok {
				continue
			}
			messages = append([]*entity.Message{staged}, messages...)
		}
	}

	return messages, total, nil
}
