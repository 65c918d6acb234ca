// Package domain contains core concepts of the chat system.
// This file defines Room entities and membership invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"fmt"
	"time"
)

type RoomID string

type RoomKind string

const (
	KindDirect RoomKind = "direct"
	KindGroup  RoomKind = "group"
)

// Room is a conversation scoped to a fixed participant set.
// Direct rooms hold exactly two participants, groups three or more.
type Room struct {
	ID           RoomID
	Kind         RoomKind
	Name         string
	Creator      string
	Participants []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (r *Room) HasParticipant(userID string) bool {
	for _, p := range r.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// AddParticipant appends a user to the room if absent and reconciles the kind.
// It reports whether the membership actually changed.
func (r *Room) AddParticipant(userID string) bool {
	if r.HasParticipant(userID) {
		return false
	}
	r.Participants = append(r.Participants, userID)
	r.ReconcileKind()
	return true
}

// ReconcileKind enforces the direct -> group transition.
// A direct room becomes a group once it holds more than two participants.
// The transition is monotonic: a group never turns back into a direct room,
// even if departures bring it down to two participants again.
func (r *Room) ReconcileKind() {
	if r.Kind == KindDirect && len(r.Participants) > 2 {
		r.Kind = KindGroup
	}
}

// RemoveParticipant drops a user from the room if present. The kind is
// deliberately left alone: a group shrinking back to two participants
// stays a group. Reports whether the membership actually changed.
func (r *Room) RemoveParticipant(userID string) bool {
	for i, p := range r.Participants {
		if p == userID {
			r.Participants = append(r.Participants[:i], r.Participants[i+1:]...)
			return true
		}
	}
	return false
}

// OtherParticipants returns every participant except the given user.
func (r *Room) OtherParticipants(userID string) []string {
	var others []string
	for _, p := range r.Participants {
		if p != userID {
			others = append(others, p)
		}
	}
	return others
}

// DisplayName derives a human readable name when none was set.
func (r *Room) DisplayName() string {
	if r.Kind == KindDirect && len(r.Participants) == 2 {
		return fmt.Sprintf("Chat between %s and %s", r.Participants[0], r.Participants[1])
	}
	if r.Name != "" {
		return r.Name
	}
	return fmt.Sprintf("Group Chat %s", r.ID)
}
