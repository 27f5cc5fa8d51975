package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kirimart/internal/domain/entity"
	"kirimart/pkg/errors"
)

type fakeMessageRepo struct {
	mu   sync.Mutex
	byID map[string]*entity.Message
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{byID: make(map[string]*entity.Message)}
}

func (f *fakeMessageRepo) Upsert(ctx context.Context, message *entity.Message) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.byID[message.ID]; exists {
		return false, nil
	}
	cp := *message
	f.byID[message.ID] = &cp
	return true, nil
}

func seedMessage(t *testing.T, repo *fakeMessageRepo, m *entity.Message) {
	t.Helper()
	_, err := repo.Upsert(context.Background(), m)
	require.NoError(t, err)
}

func (f *fakeMessageRepo) GetByID(ctx context.Context, id string) (*entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMessageRepo) ListByChat(ctx context.Context, chatID string, limit, offset int) ([]*entity.Message, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*entity.Message
	for _, m := range f.byID {
		if m.ChatID == chatID {
			cp := *m
			result = append(result, &cp)
		}
	}
	return result, int64(len(result)), nil
}

// Transition mirrors the conditional-update discipline of the Mongo
// repository: the upgrade only applies while the stored status is strictly
// earlier than the target.
func (f *fakeMessageRepo) Transition(ctx context.Context, id string, target entity.MessageStatus, at time.Time) (*entity.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.byID[id]
	if !ok {
		return nil, errors.NotFound("Message", nil)
	}
	if target.Rank() <= m.Status.Rank() {
		cp := *m
		return &cp, nil
	}
	m.Status = target
	ts := at
	switch target {
	case entity.StatusDelivered:
		m.DeliveredAt = &ts
	case entity.StatusRead:
		m.ReadAt = &ts
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMessageRepo) BulkMarkRead(ctx context.Context, chatID, participantID string, at time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, m := range f.byID {
		if m.ChatID == chatID && m.SenderID != participantID && m.Status != entity.StatusRead {
			m.Status = entity.StatusRead
			ts := at
			m.ReadAt = &ts
			count++
		}
	}
	return count, nil
}

type fakeChatRepo struct {
	mu   sync.Mutex
	byID map[string]*entity.ChatRoom
}

func newFakeChatRepo(rooms ...*entity.ChatRoom) *fakeChatRepo {
	f := &fakeChatRepo{byID: make(map[string]*entity.ChatRoom)}
	for _, r := range rooms {
		f.byID[r.ID] = r
	}
	return f
}

func (f *fakeChatRepo) Create(ctx context.Context, room *entity.ChatRoom) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if room.ID == "" {
		room.ID = "room-" + time.Now().Format("150405.000000000")
	}
	if room.UnreadCount == nil {
		room.UnreadCount = make(map[string]int)
	}
	f.byID[room.ID] = room
	return nil
}

func (f *fakeChatRepo) GetByID(ctx context.Context, id string) (*entity.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[id]
	if !ok {
		return nil, errors.NotFound("Chat room", nil)
	}
	return r, nil
}

func (f *fakeChatRepo) GetByParticipants(ctx context.Context, a, b string) (*entity.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.byID {
		if r.HasParticipant(a) && r.HasParticipant(b) {
			return r, nil
		}
	}
	return nil, errors.NotFound("Chat room", nil)
}

func (f *fakeChatRepo) ListByParticipant(ctx context.Context, participantID string, limit, offset int) ([]*entity.ChatRoom, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*entity.ChatRoom
	for _, r := range f.byID {
		if r.HasParticipant(participantID) {
			result = append(result, r)
		}
	}
	return result, int64(len(result)), nil
}

func (f *fakeChatRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return errors.NotFound("Chat room", nil)
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeChatRepo) UpdateLastMessage(ctx context.Context, roomID, preview string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.byID[roomID]; ok {
		r.LastMessage = preview
		r.LastMessageAt = at
	}
	return nil
}

func (f *fakeChatRepo) IncrementUnread(ctx context.Context, roomID, participantID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.byID[roomID]; ok {
		r.UnreadCount[participantID]++
	}
	return nil
}

func (f *fakeChatRepo) ResetUnread(ctx context.Context, roomID, participantID string) (*entity.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.byID[roomID]
	if !ok {
		return nil, errors.NotFound("Chat room", nil)
	}
	r.UnreadCount[participantID] = 0
	return r, nil
}

type fakeStager struct {
	mu     sync.Mutex
	staged map[string]*entity.Message
}

func newFakeStager() *fakeStager {
	return &fakeStager{staged: make(map[string]*entity.Message)}
}

func (f *fakeStager) Stage(ctx context.Context, chatID, tempID string, message *entity.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.staged[chatID+":"+tempID] = message
}

func (f *fakeStager) StagedForChat(ctx context.Context, chatID string) []*entity.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	var result []*entity.Message
	for key, m := range f.staged {
		if strings.HasPrefix(key, chatID+":") {
			result = append(result, m)
		}
	}
	return result
}

type fakePublisher struct {
	mu        sync.Mutex
	published []*entity.Message
}

func (f *fakePublisher) Publish(ctx context.Context, message *entity.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, message)
}

func testRoom() *entity.ChatRoom {
	return &entity.ChatRoom{
		ID:           "room-1",
		Participants: []string{"alice", "bob"},
		UnreadCount:  map[string]int{"alice": 0, "bob": 0},
	}
}

func TestSendStagesAndPublishes(t *testing.T) {
	messages := newFakeMessageRepo()
	chats := newFakeChatRepo(testRoom())
	stager := newFakeStager()
	publisher := &fakePublisher{}
	uc := NewMessageUseCase(messages, chats, stager, publisher)

	msg, err := uc.Send(context.Background(), "alice", SendMessageInput{
		ChatID:  "room-1",
		Content: "hello",
		TempID:  "tmp-1",
	})
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID, "durable id must be assigned before publish")
	assert.Equal(t, "tmp-1", msg.TempID)
	assert.Equal(t, entity.StatusSent, msg.Status)
	assert.Equal(t, entity.MessageTypeText, msg.MessageType)
	assert.False(t, msg.SentAt.IsZero())

	assert.NotNil(t, stager.staged["room-1:tmp-1"], "sender must get a local echo")
	require.Len(t, publisher.published, 1)
	assert.Equal(t, msg.ID, publisher.published[0].ID)
}

func TestSendRequiresFields(t *testing.T) {
	uc := NewMessageUseCase(newFakeMessageRepo(), newFakeChatRepo(testRoom()), newFakeStager(), &fakePublisher{})

	_, err := uc.Send(context.Background(), "alice", SendMessageInput{ChatID: "room-1", Content: "hi"})
	assert.True(t, errors.Is(err, "BAD_REQUEST"))

	_, err = uc.Send(context.Background(), "alice", SendMessageInput{Content: "hi", TempID: "t"})
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}

func TestSendRejectsNonParticipant(t *testing.T) {
	uc := NewMessageUseCase(newFakeMessageRepo(), newFakeChatRepo(testRoom()), newFakeStager(), &fakePublisher{})

	_, err := uc.Send(context.Background(), "mallory", SendMessageInput{
		ChatID:  "room-1",
		Content: "hi",
		TempID:  "t",
	})
	assert.True(t, errors.Is(err, "FORBIDDEN"))
}

func TestMarkDeliveredIsIdempotent(t *testing.T) {
	messages := newFakeMessageRepo()
	uc := NewMessageUseCase(messages, newFakeChatRepo(testRoom()), newFakeStager(), &fakePublisher{})

	seedMessage(t, messages, &entity.Message{
		ID: "m1", ChatID: "room-1", SenderID: "alice", Status: entity.StatusSent,
	})

	first, err := uc.MarkDelivered(context.Background(), "m1")
	require.NoError(t, err)
	require.NotNil(t, first.DeliveredAt)

	second, err := uc.MarkDelivered(context.Background(), "m1")
	require.NoError(t, err)
	require.NotNil(t, second.DeliveredAt)

	assert.Equal(t, *first.DeliveredAt, *second.DeliveredAt, "duplicate delivery must not move the timestamp")
	assert.Equal(t, entity.StatusDelivered, second.Status)
}

func TestStatusNeverMovesBackwards(t *testing.T) {
	messages := newFakeMessageRepo()
	uc := NewMessageUseCase(messages, newFakeChatRepo(testRoom()), newFakeStager(), &fakePublisher{})

	seedMessage(t, messages, &entity.Message{
		ID: "m1", ChatID: "room-1", SenderID: "alice", Status: entity.StatusSent,
	})

	read, err := uc.MarkRead(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRead, read.Status)

	// A late delivery event must not demote the status or set deliveredAt.
	after, err := uc.MarkDelivered(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRead, after.Status)
	assert.Nil(t, after.DeliveredAt)
	assert.Equal(t, *read.ReadAt, *after.ReadAt)
}

func TestConcurrentMarkReadConverges(t *testing.T) {
	messages := newFakeMessageRepo()
	uc := NewMessageUseCase(messages, newFakeChatRepo(testRoom()), newFakeStager(), &fakePublisher{})

	seedMessage(t, messages, &entity.Message{
		ID: "m1", ChatID: "room-1", SenderID: "alice", Status: entity.StatusDelivered,
	})

	// Two devices ack "read" at once.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := uc.MarkRead(context.Background(), "m1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := messages.GetByID(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusRead, final.Status)
	require.NotNil(t, final.ReadAt, "exactly one readAt must survive")
}

func TestMarkAllReadZeroesCounterAndTransitions(t *testing.T) {
	messages := newFakeMessageRepo()
	room := testRoom()
	room.UnreadCount["alice"] = 3
	room.UnreadCount["bob"] = 1
	chats := newFakeChatRepo(room)
	uc := NewMessageUseCase(messages, chats, newFakeStager(), &fakePublisher{})

	for _, id := range []string{"m1", "m2", "m3"} {
		seedMessage(t, messages, &entity.Message{
			ID: id, ChatID: "room-1", SenderID: "bob", Status: entity.StatusSent,
		})
	}

	updated, err := uc.MarkAllRead(context.Background(), "room-1", "alice")
	require.NoError(t, err)

	assert.Equal(t, 0, updated.UnreadCount["alice"])
	assert.Equal(t, 1, updated.UnreadCount["bob"], "other participants' counters stay put")

	for _, id := range []string{"m1", "m2", "m3"} {
		m, err := messages.GetByID(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusRead, m.Status)
	}
}

func TestListMessagesEchoesSendersStagedMessages(t *testing.T) {
	messages := newFakeMessageRepo()
	chats := newFakeChatRepo(testRoom())
	stager := newFakeStager()
	uc := NewMessageUseCase(messages, chats, stager, &fakePublisher{})

	seedMessage(t, messages, &entity.Message{
		ID: "m1", ChatID: "room-1", SenderID: "alice", Status: entity.StatusSent,
	})

	ctx := context.Background()
	// In flight for the requester.
	stager.Stage(ctx, "room-1", "tmp-2", &entity.Message{
		ID: "m2", TempID: "tmp-2", ChatID: "room-1", SenderID: "alice", Status: entity.StatusSent,
	})
	// In flight for the other participant: not echoed to the requester.
	stager.Stage(ctx, "room-1", "tmp-3", &entity.Message{
		ID: "m3", TempID: "tmp-3", ChatID: "room-1", SenderID: "bob", Status: entity.StatusSent,
	})
	// Already durable: the echo must not duplicate it.
	stager.Stage(ctx, "room-1", "tmp-1", &entity.Message{
		ID: "m1", TempID: "tmp-1", ChatID: "room-1", SenderID: "alice", Status: entity.StatusSent,
	})

	list, total, err := uc.ListMessages(ctx, "alice", "room-1", 20, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total, "total counts durable messages only")

	ids := make([]string, 0, len(list))
	for _, m := range list {
		ids = append(ids, m.ID)
	}
	assert.ElementsMatch(t, []string{"m1", "m2"}, ids)
}

func TestListMessagesSkipsStagedEchoPastFirstPage(t *testing.T) {
	messages := newFakeMessageRepo()
	chats := newFakeChatRepo(testRoom())
	stager := newFakeStager()
	uc := NewMessageUseCase(messages, chats, stager, &fakePublisher{})

	stager.Stage(context.Background(), "room-1", "tmp-1", &entity.Message{
		ID: "m1", TempID: "tmp-1", ChatID: "room-1", SenderID: "alice", Status: entity.StatusSent,
	})

	list, _, err := uc.ListMessages(context.Background(), "alice", "room-1", 20, 20)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTransitionRejectsUnknownStatus(t *testing.T) {
	uc := NewMessageUseCase(newFakeMessageRepo(), newFakeChatRepo(testRoom()), newFakeStager(), &fakePublisher{})

	_, err := uc.Transition(context.Background(), "m1", "archived")
	assert.True(t, errors.Is(err, "BAD_REQUEST"))
}
