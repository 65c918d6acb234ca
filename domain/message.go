// Package domain contains core concepts of the chat system.
// This file defines Message entities and related rules.
// Messages are immutable once created; only the read flag mutates.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID        uuid.UUID
	Room      RoomID
	Sender    string
	Content   string
	CreatedAt time.Time
	IsRead    bool
}
