package websocket

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"kirimart/internal/domain/entity"
	"kirimart/pkg/errors"
	"kirimart/pkg/logger"
)

// RoleDriver is excluded from presence broadcast. Product decision carried
// over from the mobile apps; confirm before extending to other roles.
const RoleDriver = "driver"

// Client represents one WebSocket connection of a participant. A participant
// may hold several clients at once (multiple devices).
type Client struct {
	ParticipantID string
	Role          string
	Conn          *websocket.Conn
	Send          chan []byte
}

// Manager is the connection gateway: it owns every live connection on this
// process, the room membership table, and presence fan-out. Exactly one
// Manager may exist per process; a second construction is an error, not a
// silent reuse.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // participant id -> live connections
	rooms   map[string]map[*Client]struct{} // room id -> subscribed connections

	messages MessageService
}

var constructed atomic.Bool

func NewManager(messages MessageService) (*Manager, error) {
	if !constructed.CompareAndSwap(false, true) {
		return nil, errors.Internal("connection gateway already constructed", nil)
	}
	return &Manager{
		clients:  make(map[string]map[*Client]struct{}),
		rooms:    make(map[string]map[*Client]struct{}),
		messages: messages,
	}, nil
}

// RegisterClient adds the connection under the participant's private channel
// and broadcasts online presence, at most once, unless the role is excluded.
func (m *Manager) RegisterClient(client *Client) {
	m.mu.Lock()
	if m.clients[client.ParticipantID] == nil {
		m.clients[client.ParticipantID] = make(map[*Client]struct{})
	}
	m.clients[client.ParticipantID][client] = struct{}{}
	m.mu.Unlock()

	logger.Info("gateway: participant %s connected (role %s)", client.ParticipantID, client.Role)

	if m.presenceEligible(client) {
		m.broadcastPresence(client.ParticipantID, true)
	}
}

// UnregisterClient removes the connection from its rooms and private channel
// and broadcasts offline presence with the same role exclusion as connect.
func (m *Manager) UnregisterClient(client *Client) {
	m.mu.Lock()
	for roomID, members := range m.rooms {
		if _, ok := members[client]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(m.rooms, roomID)
			}
		}
	}
	if conns, ok := m.clients[client.ParticipantID]; ok {
		if _, ok := conns[client]; ok {
			delete(conns, client)
			close(client.Send)
		}
		if len(conns) == 0 {
			delete(m.clients, client.ParticipantID)
		}
	}
	m.mu.Unlock()

	logger.Info("gateway: participant %s disconnected", client.ParticipantID)

	if m.presenceEligible(client) {
		m.broadcastPresence(client.ParticipantID, false)
	}
}

// presenceEligible applies the driver exclusion and the persisted-identity
// format check: presence only fires for identities that look like durable
// participant ids, not anonymous handshake tokens.
func (m *Manager) presenceEligible(client *Client) bool {
	if client.Role == RoleDriver {
		return false
	}
	return isPersistedID(client.ParticipantID)
}

func isPersistedID(id string) bool {
	if uuid.Validate(id) == nil {
		return true
	}
	// 24-char hex, the document store's native object id format.
	if len(id) != 24 {
		return false
	}
	for _, c := range id {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

func (m *Manager) joinRoom(client *Client, roomID string) {
	m.mu.Lock()
	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[*Client]struct{})
	}
	m.rooms[roomID][client] = struct{}{}
	m.mu.Unlock()

	logger.Debug("gateway: participant %s joined room %s", client.ParticipantID, roomID)
}

func (m *Manager) leaveRoom(client *Client, roomID string) {
	m.mu.Lock()
	if members, ok := m.rooms[roomID]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(m.rooms, roomID)
		}
	}
	m.mu.Unlock()

	logger.Debug("gateway: participant %s left room %s", client.ParticipantID, roomID)
}

// broadcastPresence tells every other participant's connections that this
// participant went on- or offline.
func (m *Manager) broadcastPresence(participantID string, online bool) {
	payload := presencePayload{UserID: participantID, IsOnline: online}

	m.mu.RLock()
	targets := make([]*Client, 0)
	for pid, conns := range m.clients {
		if pid == participantID {
			continue
		}
		for c := range conns {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range targets {
		m.sendEvent(c, eventIsOnline, payload)
	}
}

// BroadcastToRoom fans an event out to every connection subscribed to the
// room on this gateway instance.
func (m *Manager) BroadcastToRoom(roomID, event string, data interface{}) {
	m.mu.RLock()
	targets := make([]*Client, 0, len(m.rooms[roomID]))
	for c := range m.rooms[roomID] {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	for _, c := range targets {
		m.sendEvent(c, event, data)
	}
}

// SendToParticipant delivers an event to every connection of one
// participant (their private channel).
func (m *Manager) SendToParticipant(participantID, event string, data interface{}) {
	m.mu.RLock()
	targets := make([]*Client, 0, len(m.clients[participantID]))
	for c := range m.clients[participantID] {
		targets = append(targets, c)
	}
	m.mu.RUnlock()

	for _, c := range targets {
		m.sendEvent(c, event, data)
	}
}

// MessageCommitted is the durable-commit notification from the consumer:
// the message is broadcast to the room and the refreshed unread counters go
// to each participant's private channel.
func (m *Manager) MessageCommitted(message *entity.Message, room *entity.ChatRoom) {
	m.BroadcastToRoom(message.ChatID, eventMessageDelivered, message)

	if room != nil {
		for _, participantID := range room.Participants {
			m.SendToParticipant(participantID, eventUpdateUnreadCount, room)
		}
	}
}

// ReadPump reads frames off the connection and dispatches them until the
// connection drops. Runs as one goroutine per client.
func (c *Client) ReadPump(m *Manager) {
	defer func() {
		m.UnregisterClient(c)
		c.Conn.Close()
	}()

	for {
		_, payload, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("gateway: read error for %s: %v", c.ParticipantID, err)
			}
			break
		}

		m.HandleClientMessage(context.Background(), c, payload)
	}
}

// WritePump drains the send channel onto the connection.
func (c *Client) WritePump() {
	defer c.Conn.Close()

	for {
		payload, ok := <-c.Send
		if !ok {
			c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}

		if err := c.Conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			logger.Warn("gateway: write error for %s: %v", c.ParticipantID, err)
			return
		}
	}
}
