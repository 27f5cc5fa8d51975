package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"kirimart/internal/domain/entity"
	"kirimart/internal/usecase"
	apperrors "kirimart/pkg/errors"
	"kirimart/pkg/logger"
)

// Inbound event names. These are the client protocol and must not change.
const (
	eventJoinChat        = "join_chat"
	eventLeaveChat       = "leave_chat"
	eventSendMessage     = "send_message"
	eventMarkAsRead      = "mark_as_read"
	eventMarkAsDelivered = "mark_as_delivered"
	eventMarkAllAsRead   = "mark_all_as_read"
)

// Outbound event names.
const (
	eventIsOnline          = "is_online"
	eventMessageDelivered  = "message_delivered"
	eventMessageRead       = "message_read"
	eventUpdateUnreadCount = "update_unread_count"
	eventError             = "error"
)

// MessageService is the slice of the message use case the gateway drives.
type MessageService interface {
	Send(ctx context.Context, senderID string, in usecase.SendMessageInput) (*entity.Message, error)
	MarkDelivered(ctx context.Context, messageID string) (*entity.Message, error)
	MarkRead(ctx context.Context, messageID string) (*entity.Message, error)
	MarkAllRead(ctx context.Context, roomID, participantID string) (*entity.ChatRoom, error)
}

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type roomPayload struct {
	RoomID string `json:"roomId"`
}

type sendMessagePayload struct {
	ChatID      string    `json:"chatId"`
	SenderID    string    `json:"senderId"`
	Content     string    `json:"content"`
	MessageType string    `json:"messageType"`
	Attachments []string  `json:"attachments"`
	TempID      string    `json:"tempId"`
	SentAt      time.Time `json:"sentAt"`
}

type messageIDPayload struct {
	MessageID string `json:"messageId"`
}

type presencePayload struct {
	UserID   string `json:"userId"`
	IsOnline bool   `json:"is_online"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// HandleClientMessage dispatches one inbound frame. Malformed frames produce
// an error event on the originating connection only; downstream
// infrastructure failures are logged and never close the connection.
func (m *Manager) HandleClientMessage(ctx context.Context, client *Client, payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		m.sendError(client, "invalid event payload")
		return
	}

	switch env.Event {
	case eventJoinChat:
		m.handleJoinChat(ctx, client, env.Data)
	case eventLeaveChat:
		m.handleLeaveChat(client, env.Data)
	case eventSendMessage:
		m.handleSendMessage(ctx, client, env.Data)
	case eventMarkAsDelivered:
		m.handleMarkDelivered(ctx, client, env.Data)
	case eventMarkAsRead:
		m.handleMarkRead(ctx, client, env.Data)
	case eventMarkAllAsRead:
		m.handleMarkAllRead(ctx, client, env.Data)
	default:
		m.sendError(client, "unknown event: "+env.Event)
	}
}

// handleJoinChat subscribes the connection to the room. Joining counts as
// having seen every message in it, so the bulk read transition runs right
// after the subscribe.
func (m *Manager) handleJoinChat(ctx context.Context, client *Client, data json.RawMessage) {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		m.sendError(client, "join_chat requires roomId")
		return
	}

	m.joinRoom(client, p.RoomID)

	room, err := m.messages.MarkAllRead(ctx, p.RoomID, client.ParticipantID)
	if err != nil {
		logger.Warn("gateway: mark all read on join of room %s: %v", p.RoomID, err)
		return
	}
	m.BroadcastToRoom(p.RoomID, eventUpdateUnreadCount, room)
}

func (m *Manager) handleLeaveChat(client *Client, data json.RawMessage) {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		m.sendError(client, "leave_chat requires roomId")
		return
	}
	m.leaveRoom(client, p.RoomID)
}

// handleSendMessage stages the message and hands it to the publisher, then
// returns without waiting for durable commit. The committed message comes
// back through the consumer's broadcast.
func (m *Manager) handleSendMessage(ctx context.Context, client *Client, data json.RawMessage) {
	var p sendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		m.sendError(client, "invalid send_message payload")
		return
	}
	if p.ChatID == "" || p.Content == "" || p.TempID == "" {
		m.sendError(client, "send_message requires chatId, content and tempId")
		return
	}

	_, err := m.messages.Send(ctx, client.ParticipantID, usecase.SendMessageInput{
		ChatID:      p.ChatID,
		Content:     p.Content,
		MessageType: p.MessageType,
		Attachments: p.Attachments,
		TempID:      p.TempID,
		SentAt:      p.SentAt,
	})
	if err != nil {
		var appErr *apperrors.AppError
		if errors.As(err, &appErr) && appErr.Status < 500 {
			m.sendError(client, appErr.Message)
			return
		}
		// Infrastructure trouble is absorbed; the send already has its
		// local echo in the staging cache.
		logger.Error("gateway: send_message for chat %s: %v", p.ChatID, err)
	}
}

func (m *Manager) handleMarkDelivered(ctx context.Context, client *Client, data json.RawMessage) {
	var p messageIDPayload
	if err := json.Unmarshal(data, &p); err != nil || p.MessageID == "" {
		m.sendError(client, "mark_as_delivered requires messageId")
		return
	}

	message, err := m.messages.MarkDelivered(ctx, p.MessageID)
	if err != nil {
		logger.Warn("gateway: mark delivered %s: %v", p.MessageID, err)
		return
	}
	m.BroadcastToRoom(message.ChatID, eventMessageDelivered, message)
}

func (m *Manager) handleMarkRead(ctx context.Context, client *Client, data json.RawMessage) {
	var p messageIDPayload
	if err := json.Unmarshal(data, &p); err != nil || p.MessageID == "" {
		m.sendError(client, "mark_as_read requires messageId")
		return
	}

	message, err := m.messages.MarkRead(ctx, p.MessageID)
	if err != nil {
		logger.Warn("gateway: mark read %s: %v", p.MessageID, err)
		return
	}
	m.BroadcastToRoom(message.ChatID, eventMessageRead, message)
}

func (m *Manager) handleMarkAllRead(ctx context.Context, client *Client, data json.RawMessage) {
	var p roomPayload
	if err := json.Unmarshal(data, &p); err != nil || p.RoomID == "" {
		m.sendError(client, "mark_all_as_read requires roomId")
		return
	}

	room, err := m.messages.MarkAllRead(ctx, p.RoomID, client.ParticipantID)
	if err != nil {
		logger.Warn("gateway: mark all read for room %s: %v", p.RoomID, err)
		return
	}
	m.BroadcastToRoom(p.RoomID, eventUpdateUnreadCount, room)
}

func (m *Manager) sendEvent(client *Client, event string, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		logger.Error("gateway: marshal %s payload: %v", event, err)
		return
	}
	frame, err := json.Marshal(envelope{Event: event, Data: body})
	if err != nil {
		logger.Error("gateway: marshal %s frame: %v", event, err)
		return
	}

	// Verify the client is still registered while holding the lock so the
	// send cannot race UnregisterClient closing the channel.
	m.mu.RLock()
	defer m.mu.RUnlock()
	conns, ok := m.clients[client.ParticipantID]
	if !ok {
		return
	}
	if _, ok := conns[client]; !ok {
		return
	}

	select {
	case client.Send <- frame:
	default:
		logger.Warn("gateway: send buffer full for %s, dropping %s", client.ParticipantID, event)
	}
}

func (m *Manager) sendError(client *Client, message string) {
	m.sendEvent(client, eventError, errorPayload{Message: message})
}
