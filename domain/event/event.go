// Package event defines the closed set of domain events fanned out to
// room subscribers. Adding a variant means updating every exhaustive
// switch over DomainEvent, which is the point.
package event

import (
	"time"

	"chat-hub/domain"

	"github.com/google/uuid"
)

type DomainEvent interface {
	RoomID() domain.RoomID
}

// MessagePosted is emitted after a message has been durably persisted.
// It carries the server-assigned identifier and timestamp so that every
// subscriber observes the same ordering key. AuthorName is the display
// identity shown to subscribers; Author stays the stable identifier.
type MessagePosted struct {
	ID         uuid.UUID
	Room       domain.RoomID
	Author     string
	AuthorName string
	Content    string
	At         time.Time
}

func (m MessagePosted) RoomID() domain.RoomID { return m.Room }

// TypingChanged is a best-effort presence hint. It is never persisted
// and dropping it is not an error.
type TypingChanged struct {
	Room     domain.RoomID
	User     string
	UserName string
	IsTyping bool
}

func (t TypingChanged) RoomID() domain.RoomID { return t.Room }
