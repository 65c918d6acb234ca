// Package domain contains core concepts of the chat system.
// This file defines Participant entities and the read cursor.
package domain

import "time"

// Participant binds a user to a room. Unique per (user, room).
// LastRead is the read cursor: the instant up to which the user has
// acknowledged the room's messages. It only ever moves forward.
type Participant struct {
	User     string
	Room     RoomID
	JoinedAt time.Time
	LastRead *time.Time
	IsMuted  bool
}

// AdvanceLastRead moves the cursor to at, if and only if at is later
// than the current cursor. Reports whether the cursor moved.
func (p *Participant) AdvanceLastRead(at time.Time) bool {
	if p.LastRead != nil && !at.After(*p.LastRead) {
		return false
	}
	p.LastRead = &at
	return true
}
