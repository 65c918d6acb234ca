package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type NotificationType string

const (
	NotificationChatMessage NotificationType = "chat_message"
)

// Notification is the persisted record handed to the delivery layer.
// Immutable except for the read flag. Delivery transport is external.
type Notification struct {
	ID        uuid.UUID
	Recipient string
	Sender    string
	Type      NotificationType
	Message   string
	Room      RoomID
	CreatedAt time.Time
	IsRead    bool
}

// NewChatMessageNotification builds the record created once per other
// participant whenever a message is persisted in one of their rooms.
func NewChatMessageNotification(recipient, sender string, room RoomID, at time.Time) Notification {
	return Notification{
		ID:        uuid.New(),
		Recipient: recipient,
		Sender:    sender,
		Type:      NotificationChatMessage,
		Message:   fmt.Sprintf("New message from %s", sender),
		Room:      room,
		CreatedAt: at,
	}
}
