package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kirimart/internal/domain/entity"
	"kirimart/pkg/errors"
)

type memMessageRepo struct {
	byID        map[string]*entity.Message
	failUpserts int // upserts to fail before succeeding
}

func (r *memMessageRepo) Upsert(ctx context.Context, message *entity.Message) (bool, error) {
	if r.failUpserts > 0 {
		r.failUpserts--
		return false, errors.Internal("store unavailable", nil)
	}
	if _, exists := r.byID[message.ID]; exists {
		return false, nil
	}
	cp := *message
	r.byID[message.ID] = &cp
	return true, nil
}

func (r *memMessageRepo) GetByID(ctx context.Context, id string) (*entity.Message, error) {
	m, ok := r.byID[id]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	return m, nil
}

func (r *memMessageRepo) ListByChat(ctx context.Context, chatID string, limit, offset int) ([]*entity.Message, int64, error) {
	return nil, 0, nil
}

func (r *memMessageRepo) Transition(ctx context.Context, id string, target entity.MessageStatus, at time.Time) (*entity.Message, error) {
	return r.GetByID(ctx, id)
}

func (r *memMessageRepo) BulkMarkRead(ctx context.Context, chatID, participantID string, at time.Time) (int64, error) {
	return 0, nil
}

type memChatRepo struct {
	room *entity.ChatRoom
}

func (r *memChatRepo) Create(ctx context.Context, room *entity.ChatRoom) error { return nil }

func (r *memChatRepo) GetByID(ctx context.Context, id string) (*entity.ChatRoom, error) {
	if r.room == nil || r.room.ID != id {
		return nil, errors.NotFound("Chat room", nil)
	}
	return r.room, nil
}

func (r *memChatRepo) GetByParticipants(ctx context.Context, a, b string) (*entity.ChatRoom, error) {
	return nil, errors.NotFound("Chat room", nil)
}

func (r *memChatRepo) ListByParticipant(ctx context.Context, participantID string, limit, offset int) ([]*entity.ChatRoom, int64, error) {
	return nil, 0, nil
}

func (r *memChatRepo) Delete(ctx context.Context, id string) error { return nil }

func (r *memChatRepo) UpdateLastMessage(ctx context.Context, roomID, preview string, at time.Time) error {
	r.room.LastMessage = preview
	r.room.LastMessageAt = at
	return nil
}

func (r *memChatRepo) IncrementUnread(ctx context.Context, roomID, participantID string) error {
	r.room.UnreadCount[participantID]++
	return nil
}

func (r *memChatRepo) ResetUnread(ctx context.Context, roomID, participantID string) (*entity.ChatRoom, error) {
	r.room.UnreadCount[participantID] = 0
	return r.room, nil
}

type memStaging struct {
	removed []string
}

func (s *memStaging) Remove(ctx context.Context, chatID, tempID string) {
	s.removed = append(s.removed, chatID+":"+tempID)
}

type memBroadcaster struct {
	messages []*entity.Message
	rooms    []*entity.ChatRoom
}

func (b *memBroadcaster) MessageCommitted(message *entity.Message, room *entity.ChatRoom) {
	b.messages = append(b.messages, message)
	b.rooms = append(b.rooms, room)
}

func consumerFixture() (*Consumer, *memMessageRepo, *memChatRepo, *memStaging, *memBroadcaster) {
	messages := &memMessageRepo{byID: make(map[string]*entity.Message)}
	chats := &memChatRepo{room: &entity.ChatRoom{
		ID:           "room-1",
		Participants: []string{"alice", "bob"},
		UnreadCount:  map[string]int{"alice": 0, "bob": 0},
	}}
	staging := &memStaging{}
	broadcaster := &memBroadcaster{}
	consumer := NewConsumer(nil, messages, chats, staging, broadcaster)
	return consumer, messages, chats, staging, broadcaster
}

func eventPayload(t *testing.T) []byte {
	t.Helper()
	payload, err := json.Marshal(&entity.Message{
		ID:       "m1",
		TempID:   "tmp-1",
		ChatID:   "room-1",
		SenderID: "alice",
		Content:  "hello",
		Status:   entity.StatusSent,
		SentAt:   time.Now(),
	})
	require.NoError(t, err)
	return payload
}

func TestConsumerPersistsAndNotifies(t *testing.T) {
	consumer, messages, chats, staging, broadcaster := consumerFixture()

	require.NoError(t, consumer.handle(context.Background(), eventPayload(t)))

	stored, err := messages.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Content)

	assert.Equal(t, "hello", chats.room.LastMessage)
	assert.Equal(t, 1, chats.room.UnreadCount["bob"], "recipient counter increments")
	assert.Equal(t, 0, chats.room.UnreadCount["alice"], "sender counter untouched")

	assert.Equal(t, []string{"room-1:tmp-1"}, staging.removed)

	require.Len(t, broadcaster.messages, 1)
	assert.Equal(t, "m1", broadcaster.messages[0].ID)
	require.Len(t, broadcaster.rooms, 1)
	assert.Equal(t, 1, broadcaster.rooms[0].UnreadCount["bob"])
}

func TestConsumerRedeliveryIsIdempotent(t *testing.T) {
	consumer, messages, chats, _, _ := consumerFixture()
	payload := eventPayload(t)

	require.NoError(t, consumer.handle(context.Background(), payload))

	// Simulate the message advancing before the event is redelivered.
	now := time.Now()
	messages.byID["m1"].Status = entity.StatusRead
	messages.byID["m1"].ReadAt = &now

	require.NoError(t, consumer.handle(context.Background(), payload))

	stored, err := messages.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRead, stored.Status, "redelivery must not rewind status")
	assert.Len(t, messages.byID, 1, "no duplicate record")

	// Bookkeeping is keyed to the first insert, so a redelivered event must
	// not bump the counter again.
	assert.Equal(t, 1, chats.room.UnreadCount["bob"])
}

func TestConsumerRetriesTransientPersistFailure(t *testing.T) {
	consumer, messages, chats, _, _ := consumerFixture()
	consumer.retryBackoff = time.Millisecond
	messages.failUpserts = 2

	require.NoError(t, consumer.handleWithRetry(context.Background(), eventPayload(t)))

	stored, err := messages.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Content, "event survives transient store failures")
	assert.Equal(t, 1, chats.room.UnreadCount["bob"], "bookkeeping runs exactly once")
}

func TestConsumerRetryStopsOnShutdown(t *testing.T) {
	consumer, messages, _, _, broadcaster := consumerFixture()
	consumer.retryBackoff = time.Millisecond
	messages.failUpserts = 1 << 30

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Millisecond)
	defer cancel()

	err := consumer.handleWithRetry(ctx, eventPayload(t))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, messages.byID, "nothing persisted, offset stays uncommitted")
	assert.Empty(t, broadcaster.messages)
}

func TestConsumerSkipsPoisonEvents(t *testing.T) {
	consumer, messages, _, _, broadcaster := consumerFixture()

	require.NoError(t, consumer.handle(context.Background(), []byte("not json")))
	require.NoError(t, consumer.handle(context.Background(), []byte(`{"content":"no ids"}`)))

	assert.Empty(t, messages.byID)
	assert.Empty(t, broadcaster.messages)
}

func TestConsumerSurvivesMissingRoom(t *testing.T) {
	consumer, messages, chats, _, broadcaster := consumerFixture()
	chats.room = &entity.ChatRoom{ID: "other-room", UnreadCount: map[string]int{}}

	require.NoError(t, consumer.handle(context.Background(), eventPayload(t)))

	// The message is durable even though the room vanished.
	_, err := messages.GetByID(context.Background(), "m1")
	require.NoError(t, err)

	require.Len(t, broadcaster.messages, 1)
	assert.Nil(t, broadcaster.rooms[0])
}
