package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/mocks"
	"chat-hub/repositories"
	"chat-hub/runtime"
	"chat-hub/sink"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fixture struct {
	service      *ChatService
	hub          *runtime.Hub
	messages     *repositories.MessageRepository
	participants *repositories.ParticipantRepository
	rooms        *repositories.RoomRepository
	notifier     *mocks.MockINotifier
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := slog.Default()
	ctrl := gomock.NewController(t)
	f := fixture{
		hub:          runtime.NewHub(log, time.Second),
		messages:     repositories.NewMessageRepository(db, log, nil),
		participants: repositories.NewParticipantRepository(db, log),
		rooms:        repositories.NewRoomRepository(db, log),
		notifier:     mocks.NewMockINotifier(ctrl),
	}
	f.service = NewChatService(log, f.rooms, f.messages, f.participants, f.hub, f.notifier)
	return f
}

func (f fixture) directRoom(t *testing.T, participants ...string) domain.Room {
	t.Helper()
	room, err := f.rooms.Create(domain.Room{Creator: participants[0], Participants: participants})
	require.NoError(t, err)
	return room
}

func Test_PostMessage_PersistBroadcastNotify(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	room := f.directRoom(t, "alice", "bob")

	bobSink := sink.NewSessionSink(slog.Default(), 8)
	f.hub.Subscribe(room.ID, "session-bob", bobSink)

	// One notification for bob only, never for the sender.
	f.notifier.EXPECT().
		CreateChatMessageNotification("bob", "alice", room.ID).
		Return(domain.Notification{}, nil).
		Times(1)

	message, err := f.service.PostMessage(context.Background(), room.ID, domain.User{ID: "alice", Name: "Alice"}, "hi")
	req.NoError(err)
	req.Equal("hi", message.Content)
	req.Equal("alice", message.Sender)

	// Broadcast carries the persisted identifier, timestamp and the
	// author's display identity.
	received := <-bobSink.Events
	posted, ok := received.(event.MessagePosted)
	req.True(ok)
	req.Equal(message.ID, posted.ID)
	req.Equal(message.CreatedAt, posted.At)
	req.Equal("hi", posted.Content)
	req.Equal("alice", posted.Author)
	req.Equal("Alice", posted.AuthorName)

	// History shows exactly what was broadcast.
	history, _, err := f.service.History(room.ID, "bob", nil)
	req.NoError(err)
	req.Len(history, 1)
	req.Equal(message.ID, history[0].ID)
}

func Test_PostMessage_MutedParticipantGetsNoNotification(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	room := f.directRoom(t, "alice", "bob", "clara")

	now := time.Now().UTC()
	_, _, err := f.participants.Touch("bob", room.ID, now)
	req.NoError(err)
	req.NoError(f.participants.SetMuted("bob", room.ID, true))

	// Only clara is notified; bob muted the room.
	f.notifier.EXPECT().
		CreateChatMessageNotification("clara", "alice", room.ID).
		Return(domain.Notification{}, nil).
		Times(1)

	_, err = f.service.PostMessage(context.Background(), room.ID, domain.User{ID: "alice"}, "hi")
	req.NoError(err)
}

func Test_PostMessage_ValidationAbortsFanout(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	room := f.directRoom(t, "alice", "bob")

	// Strict mocks: any Publish or notification call fails the test.
	hub := mocks.NewMockIHub(ctrl)
	notifier := mocks.NewMockINotifier(ctrl)
	service := NewChatService(slog.Default(), f.rooms, f.messages, f.participants, hub, notifier)

	_, err := service.PostMessage(context.Background(), room.ID, domain.User{ID: "alice"}, "")
	req.ErrorIs(err, errors.ErrEmptyContent)
}

// failingMessageStore simulates a durable-write failure.
type failingMessageStore struct {
	repositories.IMessageRepository
}

func (f failingMessageStore) Append(domain.RoomID, string, string) (domain.Message, error) {
	return domain.Message{}, badger.ErrDBClosed
}

func Test_PostMessage_DurableWriteFailureAbortsBroadcast(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	room := f.directRoom(t, "alice", "bob")

	hub := mocks.NewMockIHub(ctrl)
	notifier := mocks.NewMockINotifier(ctrl)
	service := NewChatService(slog.Default(), f.rooms, failingMessageStore{}, f.participants, hub, notifier)

	_, err := service.PostMessage(context.Background(), room.ID, domain.User{ID: "alice"}, "hi")
	req.Error(err, "the failure surfaces to the sender and nothing is fanned out")
}

func Test_PostMessage_MembershipTaxonomy(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	room := f.directRoom(t, "alice", "bob")

	_, err := f.service.PostMessage(context.Background(), "missing", domain.User{ID: "alice"}, "hi")
	req.ErrorIs(err, errors.ErrRoomNotFound)

	_, err = f.service.PostMessage(context.Background(), room.ID, domain.User{ID: "mallory"}, "hi")
	req.ErrorIs(err, errors.ErrForbidden)
}

func Test_Typing_BroadcastOnlyNoPersistence(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	room := f.directRoom(t, "alice", "bob")

	bobSink := sink.NewSessionSink(slog.Default(), 8)
	f.hub.Subscribe(room.ID, "session-bob", bobSink)
	// clara exists but is not subscribed anywhere.

	f.service.Typing(context.Background(), room.ID, domain.User{ID: "alice", Name: "Alice"}, true)

	received := <-bobSink.Events
	typingEvent, ok := received.(event.TypingChanged)
	req.True(ok)
	req.Equal("alice", typingEvent.User)
	req.Equal("Alice", typingEvent.UserName)
	req.True(typingEvent.IsTyping)

	history, _, err := f.service.History(room.ID, "alice", nil)
	req.NoError(err)
	req.Empty(history, "typing events are never persisted")
}

func Test_Join_RefusedBeforeSubscription(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	f := newFixture(t)
	room := f.directRoom(t, "alice", "bob")

	// Strict hub mock: a refused connection must never subscribe.
	hub := mocks.NewMockIHub(ctrl)
	service := NewChatService(slog.Default(), f.rooms, f.messages, f.participants, hub, f.notifier)

	s := sink.NewSessionSink(slog.Default(), 1)
	_, err := service.Join(context.Background(), "mallory", room.ID, "session-1", s)
	req.ErrorIs(err, errors.ErrForbidden)

	_, err = service.Join(context.Background(), "alice", "missing", "session-1", s)
	req.ErrorIs(err, errors.ErrRoomNotFound)
}

func Test_Join_SubscribesAndTouchesCursor(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	room := f.directRoom(t, "alice", "bob")

	// A message from bob exists before alice connects.
	_, err := f.messages.Append(room.ID, "bob", "early")
	req.NoError(err)

	s := sink.NewSessionSink(slog.Default(), 1)
	joined, err := f.service.Join(context.Background(), "alice", room.ID, "session-alice", s)
	req.NoError(err)
	req.Equal(room.ID, joined.ID)
	req.Equal(1, f.hub.SubscriberCount(room.ID))

	// The connect touch created the participant and swept bob's message.
	participant, err := f.participants.Get("alice", room.ID)
	req.NoError(err)
	req.NotNil(participant.LastRead)

	count, err := f.service.UnreadCount("alice", room.ID)
	req.NoError(err)
	req.Zero(count)

	f.service.Leave(room.ID, "session-alice")
	req.Zero(f.hub.SubscriberCount(room.ID))
}

func Test_UnreadCount_BeforeFirstTouch(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	room := f.directRoom(t, "alice", "bob")

	_, err := f.messages.Append(room.ID, "bob", "one")
	req.NoError(err)
	_, err = f.messages.Append(room.ID, "bob", "two")
	req.NoError(err)

	// No participant record yet: everything from others counts.
	count, err := f.service.UnreadCount("alice", room.ID)
	req.NoError(err)
	req.Equal(2, count)
}

func Test_MarkRead_MonotonicCursor(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	room := f.directRoom(t, "alice", "bob")

	req.NoError(f.service.MarkRead("alice", room.ID))
	first, err := f.participants.Get("alice", room.ID)
	req.NoError(err)

	time.Sleep(time.Millisecond)
	req.NoError(f.service.MarkRead("alice", room.ID))
	second, err := f.participants.Get("alice", room.ID)
	req.NoError(err)

	req.True(second.LastRead.After(*first.LastRead) || second.LastRead.Equal(*first.LastRead))
}

func Test_DeleteRoom_ExplicitCascade(t *testing.T) {
	req := require.New(t)
	f := newFixture(t)
	room := f.directRoom(t, "alice", "bob")

	_, err := f.messages.Append(room.ID, "alice", "hello")
	req.NoError(err)
	_, _, err = f.participants.Touch("alice", room.ID, time.Now().UTC())
	req.NoError(err)

	req.NoError(f.service.DeleteRoom(room.ID))

	_, err = f.rooms.Get(room.ID)
	req.ErrorIs(err, errors.ErrRoomNotFound)
	messages, _, err := f.messages.GetMessages(room.ID, nil)
	req.NoError(err)
	req.Empty(messages)
	participants, err := f.participants.ListForRoom(room.ID)
	req.NoError(err)
	req.Empty(participants)
}
