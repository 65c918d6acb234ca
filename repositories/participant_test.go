package repositories

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/stretchr/testify/require"
)

func Test_Touch_CreatesParticipantOnFirstContact(t *testing.T) {
	req := require.New(t)
	repository := NewParticipantRepository(openTestDB(t), slog.Default())
	now := time.Now().UTC()

	participant, advanced, err := repository.Touch("alice", "r1", now)
	req.NoError(err)
	req.True(advanced)
	req.Equal("alice", participant.User)
	req.Equal(domain.RoomID("r1"), participant.Room)
	req.Equal(now, participant.JoinedAt)
	req.NotNil(participant.LastRead)
	req.Equal(now, *participant.LastRead)
	req.False(participant.IsMuted)
}

func Test_Touch_LastReadNeverRegresses(t *testing.T) {
	req := require.New(t)
	repository := NewParticipantRepository(openTestDB(t), slog.Default())
	now := time.Now().UTC()

	_, advanced, err := repository.Touch("alice", "r1", now)
	req.NoError(err)
	req.True(advanced)

	// An out-of-order touch with an earlier timestamp is a no-op.
	participant, advanced, err := repository.Touch("alice", "r1", now.Add(-time.Minute))
	req.NoError(err)
	req.False(advanced)
	req.Equal(now, *participant.LastRead)

	later := now.Add(time.Second)
	participant, advanced, err = repository.Touch("alice", "r1", later)
	req.NoError(err)
	req.True(advanced)
	req.Equal(later, *participant.LastRead)
	// The join timestamp never changes after creation.
	req.Equal(now, participant.JoinedAt)
}

func Test_Touch_ConcurrentFirstJoins(t *testing.T) {
	req := require.New(t)
	repository := NewParticipantRepository(openTestDB(t), slog.Default())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := repository.Touch("alice", "r1", time.Now().UTC())
			req.NoError(err)
		}()
	}
	wg.Wait()

	participants, err := repository.ListForRoom("r1")
	req.NoError(err)
	req.Len(participants, 1, "the (user, room) pair is unique")
}

func Test_SetMuted(t *testing.T) {
	req := require.New(t)
	repository := NewParticipantRepository(openTestDB(t), slog.Default())

	req.ErrorIs(repository.SetMuted("alice", "r1", true), errors.ErrForbidden)

	_, _, err := repository.Touch("alice", "r1", time.Now().UTC())
	req.NoError(err)
	req.NoError(repository.SetMuted("alice", "r1", true))

	participant, err := repository.Get("alice", "r1")
	req.NoError(err)
	req.True(participant.IsMuted)
}

func Test_DeleteRoomParticipants(t *testing.T) {
	req := require.New(t)
	repository := NewParticipantRepository(openTestDB(t), slog.Default())
	now := time.Now().UTC()

	_, _, err := repository.Touch("alice", "r1", now)
	req.NoError(err)
	_, _, err = repository.Touch("bob", "r1", now)
	req.NoError(err)
	_, _, err = repository.Touch("alice", "r2", now)
	req.NoError(err)

	req.NoError(repository.DeleteRoomParticipants("r1"))

	gone, err := repository.ListForRoom("r1")
	req.NoError(err)
	req.Empty(gone)

	kept, err := repository.ListForRoom("r2")
	req.NoError(err)
	req.Len(kept, 1)
}
