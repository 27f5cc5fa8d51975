package entity

import "time"

// ChatRoom is a two-party conversation. UnreadCount maps each participant ID
// to the number of messages they have not read yet.
type ChatRoom struct {
	ID            string         `json:"id" bson:"_id"`
	Participants  []string       `json:"participants" bson:"participants"`
	LastMessage   string         `json:"lastMessage,omitempty" bson:"lastMessage,omitempty"`
	LastMessageAt time.Time      `json:"lastMessageAt" bson:"lastMessageAt"`
	UnreadCount   map[string]int `json:"unreadCount" bson:"unreadCount"`
	CreatedAt     time.Time      `json:"createdAt" bson:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt" bson:"updatedAt"`
}

// HasParticipant reports whether the given participant belongs to the room.
func (r *ChatRoom) HasParticipant(participantID string) bool {
	for _, p := range r.Participants {
		if p == participantID {
			return true
		}
	}
	return false
}

// OtherParticipants returns every participant except the given one.
func (r *ChatRoom) OtherParticipants(participantID string) []string {
	others := make([]string, 0, len(r.Participants))
	for _, p := range r.Participants {
		if p != participantID {
			others = append(others, p)
		}
	}
	return others
}
