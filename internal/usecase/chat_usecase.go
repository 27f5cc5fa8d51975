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

// ChatUseCase is the chat/room directory: lookup-or-create, listing by
// recency and membership checks.
type ChatUseCase struct {
	chats    repository.ChatRepository
	messages *MessageUseCase
	limiter  *ratelimit.RateLimiter
}

func NewChatUseCase(chats repository.ChatRepository, messages *MessageUseCase) *ChatUseCase {
	limiter := ratelimit.NewRateLimiter()
	limiter.StartCleanupRoutine()

	return &ChatUseCase{
		chats:    chats,
		messages: messages,
		limiter:  limiter,
	}
}

type CreateChatInput struct {
	ParticipantID  string
	InitialMessage string
}

// CreateChat returns the existing two-party room for the pair or creates
// one, optionally sending an opening message through the normal pipeline.
func (uc *ChatUseCase) CreateChat(ctx context.Context, userID string, in CreateChatInput) (*entity.ChatRoom, error) {
	allowed, waitTime := uc.limiter.Allow(userID, "create_chat")
	if !allowed {
		logger.Warn("create chat rate limited: participant %s must wait %v", userID, waitTime)
		return nil, errors.TooManyRequests("Rate limit exceeded. Please wait before creating another chat", waitTime)
	}

	if in.ParticipantID == "" {
		return nil, errors.BadRequest("participantId is required", nil)
	}
	if userID == in.ParticipantID {
		return nil, errors.BadRequest("You cannot create a chat with yourself", nil)
	}

	room, err := uc.GetOrCreateRoom(ctx, userID, in.ParticipantID)
	if err != nil {
		return nil, err
	}

	if in.InitialMessage != "" {
		if _, err := uc.messages.Send(ctx, userID, SendMessageInput{
			ChatID:  room.ID,
			Content: in.InitialMessage,
			TempID:  uuid.New().String(),
		}); err != nil {
			logger.Warn("initial message for room %s: %v", room.ID, err)
		}
	}

	return room, nil
}

// GetOrCreateRoom is the directory primitive: one room per participant
// pair, created on first contact with zeroed unread counters.
func (uc *ChatUseCase) GetOrCreateRoom(ctx context.Context, participantA, participantB string) (*entity.ChatRoom, error) {
	room, err := uc.chats.GetByParticipants(ctx, participantA, participantB)
	if err == nil {
		return room, nil
	}
	if !errors.Is(err, "NOT_FOUND") {
		return nil, err
	}

	room = &entity.ChatRoom{
		Participants: []string{participantA, participantB},
		UnreadCount: map[string]int{
			participantA: 0,
			participantB: 0,
		},
		LastMessageAt: time.Now(),
	}
	if err := uc.chats.Create(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// ListRooms returns the participant's rooms ordered by last-message recency.
func (uc *ChatUseCase) ListRooms(ctx context.Context, participantID string, limit, offset int) ([]*entity.ChatRoom, int64, error) {
	return uc.chats.ListByParticipant(ctx, participantID, limit, offset)
}

// GetRoomWith returns the two-party room shared with the given counterpart.
func (uc *ChatUseCase) GetRoomWith(ctx context.Context, participantID, otherID string) (*entity.ChatRoom, error) {
	return uc.chats.GetByParticipants(ctx, participantID, otherID)
}

// DeleteRoom removes the room document. Messages already committed for the
// room are kept.
func (uc *ChatUseCase) DeleteRoom(ctx context.Context, participantID, roomID string) error {
	room, err := uc.chats.GetByID(ctx, roomID)
	if err != nil {
		return err
	}
	if !room.HasParticipant(participantID) {
		return errors.Forbidden("You are not a participant of this chat", nil)
	}

	return uc.chats.Delete(ctx, roomID)
}
