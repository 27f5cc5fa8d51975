package repository

import (
	"context"
	"time"

	"kirimart/internal/domain/entity"
)

type ChatRepository interface {
	Create(ctx context.Context, room *entity.ChatRoom) error
	GetByID(ctx context.Context, id string) (*entity.ChatRoom, error)
	GetByParticipants(ctx context.Context, participantA, participantB string) (*entity.ChatRoom, error)
	ListByParticipant(ctx context.Context, participantID string, limit, offset int) ([]*entity.ChatRoom, int64, error)
	Delete(ctx context.Context, id string) error

	// Unread-counter and last-message bookkeeping, invoked by the send
	// pipeline and the read-acknowledgement path.
	UpdateLastMessage(ctx context.Context, roomID, preview string, at time.Time) error
	IncrementUnread(ctx context.Context, roomID, participantID string) error
	ResetUnread(ctx context.Context, roomID, participantID string) (*entity.ChatRoom, error)
}
