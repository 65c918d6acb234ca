package repositories

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *badger.DB {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func Test_Append_OrderingKeysStrictlyIncrease(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	room := domain.RoomID("r1")

	var previous time.Time
	for i := 0; i < 50; i++ {
		message, err := repository.Append(room, "alice", "this message will self destruct in 5 seconds")
		req.NoError(err)
		req.True(message.CreatedAt.After(previous),
			"ordering key must be strictly after the previous append")
		previous = message.CreatedAt
	}
}

func Test_Append_ConcurrentWritersOneRoom(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	room := domain.RoomID("r1")

	const writers = 8
	const perWriter = 20
	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := repository.Append(room, "bob", "hi")
				req.NoError(err)
			}
		}()
	}
	wg.Wait()

	messages, _, err := repository.GetMessages(room, nil)
	req.NoError(err)
	req.Len(messages, writers*perWriter)

	// GetMessages walks newest first; timestamps must strictly decrease.
	for i := 1; i < len(messages); i++ {
		req.True(messages[i].CreatedAt.Before(messages[i-1].CreatedAt))
	}
}

func Test_Append_RejectsEmptyContent(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	_, err := repository.Append("r1", "alice", "")
	req.ErrorIs(err, errors.ErrEmptyContent)
	_, err = repository.Append("r1", "alice", "   ")
	req.ErrorIs(err, errors.ErrEmptyContent)
	_, err = repository.Append("", "alice", "hello")
	req.ErrorIs(err, errors.ErrMalformedEvent)
}

func Test_GetMessages_CursorPagination(t *testing.T) {
	req := require.New(t)
	limit := 2
	repository := NewMessageRepository(openTestDB(t), slog.Default(), &limit)
	room := domain.RoomID("r1")

	for _, content := range []string{"one", "two", "three", "four", "five"} {
		_, err := repository.Append(room, "alice", content)
		req.NoError(err)
	}

	var fetched []string
	var cursor *string
	for {
		page, next, err := repository.GetMessages(room, cursor)
		req.NoError(err)
		if len(page) == 0 {
			break
		}
		for _, message := range page {
			fetched = append(fetched, message.Content)
		}
		req.LessOrEqual(len(page), limit)
		cursor = next
	}

	// Newest first over all pages.
	req.Equal([]string{"five", "four", "three", "two", "one"}, fetched)
}

func Test_MarkReadThrough_OnlyOtherSendersThroughCutoff(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	room := domain.RoomID("r1")

	first, err := repository.Append(room, "bob", "early from bob")
	req.NoError(err)
	mine, err := repository.Append(room, "alice", "from alice herself")
	req.NoError(err)
	cutoffMessage, err := repository.Append(room, "bob", "at the cutoff")
	req.NoError(err)
	_, err = repository.Append(room, "bob", "after the cutoff")
	req.NoError(err)

	updated, err := repository.MarkReadThrough(room, "alice", cutoffMessage.CreatedAt)
	req.NoError(err)
	req.Equal(2, updated)

	messages, _, err := repository.GetMessages(room, nil)
	req.NoError(err)
	readByContent := map[string]bool{}
	for _, message := range messages {
		readByContent[message.Content] = message.IsRead
	}
	req.True(readByContent[first.Content])
	req.True(readByContent[cutoffMessage.Content])
	req.False(readByContent[mine.Content], "own messages are never marked read by the sender's cursor")
	req.False(readByContent["after the cutoff"])

	// Idempotent: a second pass updates nothing.
	updated, err = repository.MarkReadThrough(room, "alice", cutoffMessage.CreatedAt)
	req.NoError(err)
	req.Zero(updated)
}

func Test_UnreadCount(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)
	room := domain.RoomID("r1")

	_, err := repository.Append(room, "bob", "one")
	req.NoError(err)
	second, err := repository.Append(room, "bob", "two")
	req.NoError(err)
	_, err = repository.Append(room, "alice", "mine")
	req.NoError(err)
	_, err = repository.Append(room, "bob", "three")
	req.NoError(err)

	count, err := repository.UnreadCount(room, "alice", nil)
	req.NoError(err)
	req.Equal(3, count)

	cursor := second.CreatedAt
	count, err = repository.UnreadCount(room, "alice", &cursor)
	req.NoError(err)
	req.Equal(1, count)
}

func Test_DeleteRoomMessages_LeavesOtherRoomsAlone(t *testing.T) {
	req := require.New(t)
	repository := NewMessageRepository(openTestDB(t), slog.Default(), nil)

	_, err := repository.Append("r1", "alice", "doomed")
	req.NoError(err)
	_, err = repository.Append("r2", "alice", "survivor")
	req.NoError(err)

	req.NoError(repository.DeleteRoomMessages("r1"))

	gone, _, err := repository.GetMessages("r1", nil)
	req.NoError(err)
	req.Empty(gone)

	kept, _, err := repository.GetMessages("r2", nil)
	req.NoError(err)
	req.Len(kept, 1)
}
