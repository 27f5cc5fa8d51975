package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kirimart/internal/domain/entity"
	"kirimart/internal/domain/repository"
	"kirimart/pkg/errors"
)

type mongoChatRepository struct {
	db *mongo.Database
}

func NewMongoChatRepository(db *mongo.Database) repository.ChatRepository {
	return &mongoChatRepository{
		db: db,
	}
}

func (r *mongoChatRepository) rooms() *mongo.Collection {
	return r.db.Collection("chats")
}

func (r *mongoChatRepository) Create(ctx context.Context, room *entity.ChatRoom) error {
	if room.ID == "" {
		room.ID = uuid.New().String()
	}
	if room.UnreadCount == nil {
		room.UnreadCount = make(map[string]int)
	}

	now := time.Now()
	room.CreatedAt = now
	room.UpdatedAt = now

	if _, err := r.rooms().InsertOne(ctx, room); err != nil {
		return errors.Internal("Failed to create chat room", err)
	}

	return nil
}

func (r *mongoChatRepository) GetByID(ctx context.Context, id string) (*entity.ChatRoom, error) {
	var room entity.ChatRoom
	err := r.rooms().FindOne(ctx, bson.M{"_id": id}).Decode(&room)
	if err == mongo.ErrNoDocuments {
		return nil, errors.NotFound("Chat room", err)
	}
	if err != nil {
		return nil, errors.Internal("Failed to get chat room", err)
	}
	return &room, nil
}

func (r *mongoChatRepository) GetByParticipants(ctx context.Context, participantA, participantB string) (*entity.ChatRoom, error) {
	filter := bson.M{"participants": bson.M{"$all": []string{participantA, participantB}}}

	var room entity.ChatRoom
	err := r.rooms().FindOne(ctx, filter).Decode(&room)
	if err == mongo.ErrNoDocuments {
		return nil, errors.NotFound("Chat room", err)
	}
	if err != nil {
		return nil, errors.Internal("Failed to get chat room", err)
	}
	return &room, nil
}

func (r *mongoChatRepository) ListByParticipant(ctx context.Context, participantID string, limit, offset int) ([]*entity.ChatRoom, int64, error) {
	filter := bson.M{"participants": participantID}

	total, err := r.rooms().CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, errors.Internal("Failed to count chat rooms", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "lastMessageAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	if offset > 0 {
		opts.SetSkip(int64(offset))
	}

	cursor, err := r.rooms().Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, errors.Internal("Failed to list chat rooms", err)
	}
	defer cursor.Close(ctx)

	var roomList []*entity.ChatRoom
	if err := cursor.All(ctx, &roomList); err != nil {
		return nil, 0, errors.Internal("Failed to decode chat rooms", err)
	}

	return roomList, total, nil
}

// Delete removes the room document only. Messages already committed for the
// room stay in the messages collection.
func (r *mongoChatRepository) Delete(ctx context.Context, id string) error {
	res, err := r.rooms().DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return errors.Internal("Failed to delete chat room", err)
	}
	if res.DeletedCount == 0 {
		return errors.NotFound("Chat room", nil)
	}
	return nil
}

func (r *mongoChatRepository) UpdateLastMessage(ctx context.Context, roomID, preview string, at time.Time) error {
	update := bson.M{"$set": bson.M{
		"lastMessage":   preview,
		"lastMessageAt": at,
		"updatedAt":     time.Now(),
	}}

	_, err := r.rooms().UpdateOne(ctx, bson.M{"_id": roomID}, update)
	if err != nil {
		return errors.Internal("Failed to update last message", err)
	}
	return nil
}

func (r *mongoChatRepository) IncrementUnread(ctx context.Context, roomID, participantID string) error {
	update := bson.M{"$inc": bson.M{"unreadCount." + participantID: 1}}

	_, err := r.rooms().UpdateOne(ctx, bson.M{"_id": roomID}, update)
	if err != nil {
		return errors.Internal("Failed to increment unread count", err)
	}
	return nil
}

func (r *mongoChatRepository) ResetUnread(ctx context.Context, roomID, participantID string) (*entity.ChatRoom, error) {
	update := bson.M{"$set": bson.M{"unreadCount." + participantID: 0}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var room entity.ChatRoom
	err := r.rooms().FindOneAndUpdate(ctx, bson.M{"_id": roomID}, update, opts).Decode(&room)
	if err == mongo.ErrNoDocuments {
		return nil, errors.NotFound("Chat room", err)
	}
	if err != nil {
		return nil, errors.Internal("Failed to reset unread count", err)
	}
	return &room, nil
}
