package repository

import (
	"context"
	"time"

	"kirimart/internal/domain/entity"
)

type MessageRepository interface {
	// Upsert persists the message keyed by its durable ID and reports whether
	// a new record was inserted. Re-delivery of an already-committed message
	// must not create a duplicate record or overwrite a status that has since
	// advanced; it returns false so callers can skip first-insert bookkeeping.
	Upsert(ctx context.Context, message *entity.Message) (bool, error)

	GetByID(ctx context.Context, id string) (*entity.Message, error)
	ListByChat(ctx context.Context, chatID string, limit, offset int) ([]*entity.Message, int64, error)

	// Transition advances the message status via an atomic conditional
	// update. A target at or below the current status leaves the record
	// unchanged and returns it as-is; the matching timestamp is set exactly
	// once, by whichever caller wins the race.
	Transition(ctx context.Context, id string, target entity.MessageStatus, at time.Time) (*entity.Message, error)

	// BulkMarkRead transitions every message in the room not sent by the
	// participant and not already read. Returns the number of messages
	// transitioned.
	BulkMarkRead(ctx context.Context, chatID, participantID string, at time.Time) (int64, error)
}
