// Package domain contains core concepts of the chat system.
// This file defines the authenticated identity behind a connection.
package domain

// User is the identity the auth layer attached to a connection: the
// stable identifier plus the display name shown to other participants.
type User struct {
	ID   string
	Name string
}

// DisplayName returns the name to show other participants, falling back
// to the identifier when the auth layer attached none.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}
