package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kirimart/internal/domain/entity"
	"kirimart/internal/domain/repository"
	"kirimart/pkg/errors"
)

type mongoMessageRepository struct {
	db *mongo.Database
}

func NewMongoMessageRepository(db *mongo.Database) repository.MessageRepository {
	return &mongoMessageRepository{
		db: db,
	}
}

func (r *mongoMessageRepository) messages() *mongo.Collection {
	return r.db.Collection("messages")
}

// Upsert inserts the message if its durable ID is new. $setOnInsert keeps
// redelivered events from clobbering a status that has already advanced past
// "sent"; UpsertedCount tells the caller whether this delivery was the first.
func (r *mongoMessageRepository) Upsert(ctx context.Context, message *entity.Message) (bool, error) {
	update := bson.M{"$setOnInsert": bson.M{
		"tempId":      message.TempID,
		"chatId":      message.ChatID,
		"senderId":    message.SenderID,
		"content":     message.Content,
		"messageType": message.MessageType,
		"attachments": message.Attachments,
		"status":      message.Status,
		"sentAt":      message.SentAt,
	}}

	opts := options.Update().SetUpsert(true)
	res, err := r.messages().UpdateOne(ctx, bson.M{"_id": message.ID}, update, opts)
	if err != nil {
		return false, errors.Internal("Failed to upsert message", err)
	}
	return res.UpsertedCount > 0, nil
}

func (r *mongoMessageRepository) GetByID(ctx context.Context, id string) (*entity.Message, error) {
	var message entity.Message
	err := r.messages().FindOne(ctx, bson.M{"_id": id}).Decode(&message)
	if err == mongo.ErrNoDocuments {
		return nil, errors.NotFound("Message", err)
	}
	if err != nil {
		return nil, errors.Internal("Failed to get message", err)
	}
	return &message, nil
}

func (r *mongoMessageRepository) ListByChat(ctx context.Context, chatID string, limit, offset int) ([]*entity.Message, int64, error) {
	filter := bson.M{"chatId": chatID}

	total, err := r.messages().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, errors.Internal("Failed to count messages", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "sentAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}

	cursor, err := r.messages().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, errors.Internal("Failed to list messages", err)
	}
	defer cursor.Close(ctx)

	var messageList []*entity.Message
	if err := cursor.All(ctx, &messageList); err != nil {
		return nil, 0, errors.Internal("Failed to decode messages", err)
	}

	return messageList, total, nil
}

// Transition performs the status upgrade as a single conditional update so
// concurrent delivery/read events for the same message converge: the filter
// only matches while the stored status is strictly earlier than the target,
// which makes duplicate calls no-ops and sets each timestamp exactly once.
func (r *mongoMessageRepository) Transition(ctx context.Context, id string, target entity.MessageStatus, at time.Time) (*entity.Message, error) {
	var filter, update bson.M

	switch target {
	case entity.StatusDelivered:
		filter = bson.M{"_id": id, "status": entity.StatusSent}
		update = bson.M{"$set": bson.M{"status": entity.StatusDelivered, "deliveredAt": at}}
	case entity.StatusRead:
		filter = bson.M{"_id": id, "status": bson.M{"$in": bson.A{entity.StatusSent, entity.StatusDelivered}}}
		update = bson.M{"$set": bson.M{"status": entity.StatusRead, "readAt": at}}
	default:
		// "sent" is never an upgrade target.
		return r.GetByID(ctx, id)
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var message entity.Message
	err := r.messages().FindOneAndUpdate(ctx, filter, update, opts).Decode(&message)
	if err == mongo.ErrNoDocuments {
		// Already at or past the target, or the id is unknown. GetByID
		// distinguishes the two.
		return r.GetByID(ctx, id)
	}
	if err != nil {
		return nil, errors.Internal("Failed to transition message status", err)
	}
	return &message, nil
}

func (r *mongoMessageRepository) BulkMarkRead(ctx context.Context, chatID, participantID string, at time.Time) (int64, error) {
	filter := bson.M{
		"chatId":   chatID,
		"senderId": bson.M{"$ne": participantID},
		"status":   bson.M{"$ne": entity.StatusRead},
	}
	update := bson.M{"$set": bson.M{"status": entity.StatusRead, "readAt": at}}

	res, err := r.messages().UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, errors.Internal("Failed to bulk mark messages as read", err)
	}
	return res.ModifiedCount, nil
}
