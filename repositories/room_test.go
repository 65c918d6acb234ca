package repositories

import (
	"log/slog"
	"testing"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/stretchr/testify/require"
)

func Test_Room_CreateAndGet(t *testing.T) {
	req := require.New(t)
	repository := NewRoomRepository(openTestDB(t), slog.Default())

	created, err := repository.Create(domain.Room{
		Creator:      "alice",
		Participants: []string{"alice", "bob"},
	})
	req.NoError(err)
	req.NotEmpty(created.ID)
	req.Equal(domain.KindDirect, created.Kind)

	fetched, err := repository.Get(created.ID)
	req.NoError(err)
	req.Equal(created.ID, fetched.ID)
	req.Equal([]string{"alice", "bob"}, fetched.Participants)
}

func Test_Room_GetForUser_Taxonomy(t *testing.T) {
	req := require.New(t)
	repository := NewRoomRepository(openTestDB(t), slog.Default())

	_, err := repository.GetForUser("missing", "alice")
	req.ErrorIs(err, errors.ErrRoomNotFound)

	created, err := repository.Create(domain.Room{
		Creator:      "alice",
		Participants: []string{"alice", "bob"},
	})
	req.NoError(err)

	_, err = repository.GetForUser(created.ID, "mallory")
	req.ErrorIs(err, errors.ErrForbidden)

	room, err := repository.GetForUser(created.ID, "bob")
	req.NoError(err)
	req.Equal(created.ID, room.ID)
}

func Test_Room_AddParticipant_KindTransition(t *testing.T) {
	req := require.New(t)
	repository := NewRoomRepository(openTestDB(t), slog.Default())

	created, err := repository.Create(domain.Room{
		Creator:      "alice",
		Participants: []string{"alice", "bob"},
	})
	req.NoError(err)
	req.Equal(domain.KindDirect, created.Kind)

	room, err := repository.AddParticipant(created.ID, "clara")
	req.NoError(err)
	req.Equal(domain.KindGroup, room.Kind)
	req.Len(room.Participants, 3)

	// Adding an existing member changes nothing.
	room, err = repository.AddParticipant(created.ID, "clara")
	req.NoError(err)
	req.Len(room.Participants, 3)

	// A departure back to two participants keeps the group kind.
	room, err = repository.RemoveParticipant(created.ID, "clara")
	req.NoError(err)
	req.Len(room.Participants, 2)
	req.Equal(domain.KindGroup, room.Kind)
}

func Test_Room_CreateWithThreeParticipantsIsGroup(t *testing.T) {
	req := require.New(t)
	repository := NewRoomRepository(openTestDB(t), slog.Default())

	created, err := repository.Create(domain.Room{
		Kind:         domain.KindDirect,
		Creator:      "alice",
		Participants: []string{"alice", "bob", "clara"},
	})
	req.NoError(err)
	req.Equal(domain.KindGroup, created.Kind)
}
