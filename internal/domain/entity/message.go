package entity

import "time"

type MessageStatus string

const (
	StatusSent      MessageStatus = "sent"
	StatusDelivered MessageStatus = "delivered"
	StatusRead      MessageStatus = "read"
)

// Rank orders statuses along the sent -> delivered -> read progression.
// Unknown statuses rank below sent so they can never win a transition.
func (s MessageStatus) Rank() int {
	switch s {
	case StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

type MessageType string

const (
	MessageTypeText       MessageType = "text"
	MessageTypeAttachment MessageType = "attachment"
)

type Message struct {
	ID          string        `json:"id" bson:"_id"`
	TempID      string        `json:"tempId,omitempty" bson:"tempId,omitempty"`
	ChatID      string        `json:"chatId" bson:"chatId"`
	SenderID    string        `json:"senderId" bson:"senderId"`
	Content     string        `json:"content" bson:"content"`
	MessageType MessageType   `json:"messageType" bson:"messageType"`
	Attachments []string      `json:"attachments" bson:"attachments"`
	Status      MessageStatus `json:"status" bson:"status"`
	SentAt      time.Time     `json:"sentAt" bson:"sentAt"`
	DeliveredAt *time.Time    `json:"deliveredAt,omitempty" bson:"deliveredAt,omitempty"`
	ReadAt      *time.Time    `json:"readAt,omitempty" bson:"readAt,omitempty"`
}
