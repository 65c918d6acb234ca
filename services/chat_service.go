//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/repositories"
)

type IChatService interface {
	Join(ctx context.Context, userID string, roomID domain.RoomID, sessionID contract.SessionID, sink contract.EventSink) (domain.Room, error)
	Leave(roomID domain.RoomID, sessionID contract.SessionID)
	PostMessage(ctx context.Context, roomID domain.RoomID, sender domain.User, content string) (domain.Message, error)
	Typing(ctx context.Context, roomID domain.RoomID, user domain.User, isTyping bool)
	MarkRead(userID string, roomID domain.RoomID) error
	History(roomID domain.RoomID, requester string, cursor *string) ([]domain.Message, *string, error)
	UnreadCount(userID string, roomID domain.RoomID) (int, error)
	CreateRoom(room domain.Room) (domain.Room, error)
	DeleteRoom(roomID domain.RoomID) error
}

// ChatService ties the room registry, message store, read cursors, hub
// and notification dispatcher together. One instance serves all
// connections; per-connection state lives in the gateway.
type ChatService struct {
	log          *slog.Logger
	rooms        repositories.IRoomRepository
	messages     repositories.IMessageRepository
	participants repositories.IParticipantRepository
	hub          contract.IHub
	notifier     contract.INotifier
}

func NewChatService(log *slog.Logger,
	rooms repositories.IRoomRepository,
	messages repositories.IMessageRepository,
	participants repositories.IParticipantRepository,
	hub contract.IHub,
	notifier contract.INotifier) *ChatService {
	return &ChatService{
		log:          log,
		rooms:        rooms,
		messages:     messages,
		participants: participants,
		hub:          hub,
		notifier:     notifier,
	}
}

// Join validates membership, subscribes the session to the room's group
// and advances the caller's read cursor, in that order. A NotFound or
// Forbidden error means the connection never reaches the Joined state.
func (s *ChatService) Join(_ context.Context, userID string, roomID domain.RoomID,
	sessionID contract.SessionID, sink contract.EventSink) (domain.Room, error) {
	room, err := s.rooms.GetForUser(roomID, userID)
	if err != nil {
		return domain.Room{}, err
	}
	s.hub.Subscribe(roomID, sessionID, sink)
	if err := s.MarkRead(userID, roomID); err != nil {
		// The subscription stands; a failed cursor update is repairable
		// on the next touch and must not refuse the connection.
		s.log.Error("Read cursor update failed on join",
			"user_id", userID, "room_id", string(roomID), "error", err)
	}
	return room, nil
}

// Leave unsubscribes the session unconditionally. Idempotent, and safe to
// call whatever state the connection died in.
func (s *ChatService) Leave(roomID domain.RoomID, sessionID contract.SessionID) {
	s.hub.Unsubscribe(roomID, sessionID)
}

// PostMessage persists the message, then broadcasts it, then creates one
// notification per other participant. The durable write completes before
// any fan-out: a failed append aborts broadcast and notifications
// entirely, so no subscriber ever sees a message history would not show.
func (s *ChatService) PostMessage(ctx context.Context, roomID domain.RoomID, sender domain.User, content string) (domain.Message, error) {
	room, err := s.rooms.GetForUser(roomID, sender.ID)
	if err != nil {
		return domain.Message{}, err
	}

	message, err := s.messages.Append(roomID, sender.ID, content)
	if err != nil {
		return domain.Message{}, err
	}

	s.hub.Publish(ctx, roomID, event.MessagePosted{
		ID:         message.ID,
		Room:       roomID,
		Author:     sender.ID,
		AuthorName: sender.DisplayName(),
		Content:    message.Content,
		At:         message.CreatedAt,
	})

	s.notifyParticipants(room, sender.ID)
	return message, nil
}

// notifyParticipants creates one notification record per other current
// participant. It runs synchronously before the gateway reads the next
// inbound event; see DESIGN.md for the trade-off. A failed record is
// logged and skipped, it never unwinds the already-persisted message.
func (s *ChatService) notifyParticipants(room domain.Room, sender string) {
	for _, other := range room.OtherParticipants(sender) {
		if participant, err := s.participants.Get(other, room.ID); err == nil && participant.IsMuted {
			continue
		}
		if _, err := s.notifier.CreateChatMessageNotification(other, sender, room.ID); err != nil {
			s.log.Error("Notification creation failed",
				"recipient", other, "room_id", string(room.ID), "error", err)
		}
	}
}

// Typing broadcasts a typing hint to the room. Best effort: nothing is
// persisted, nothing is retried, and a dropped event is not an error.
func (s *ChatService) Typing(ctx context.Context, roomID domain.RoomID, user domain.User, isTyping bool) {
	s.hub.Publish(ctx, roomID, event.TypingChanged{
		Room:     roomID,
		User:     user.ID,
		UserName: user.DisplayName(),
		IsTyping: isTyping,
	})
}

// MarkRead is the read-cursor tracker: an idempotent upsert of the
// participant record, a monotonic cursor advance, then the message store
// sweep marking everything up to the cursor as read.
func (s *ChatService) MarkRead(userID string, roomID domain.RoomID) error {
	participant, advanced, err := s.participants.Touch(userID, roomID, time.Now().UTC())
	if err != nil {
		return err
	}
	if !advanced {
		return nil
	}
	_, err = s.messages.MarkReadThrough(roomID, userID, *participant.LastRead)
	return err
}

func (s *ChatService) History(roomID domain.RoomID, requester string, cursor *string) ([]domain.Message, *string, error) {
	if _, err := s.rooms.GetForUser(roomID, requester); err != nil {
		return nil, nil, err
	}
	return s.messages.GetMessages(roomID, cursor)
}

func (s *ChatService) UnreadCount(userID string, roomID domain.RoomID) (int, error) {
	participant, err := s.participants.Get(userID, roomID)
	if errors.Is(err, errors.ErrForbidden) {
		// No participant record yet: everything from others is unread.
		return s.messages.UnreadCount(roomID, userID, nil)
	}
	if err != nil {
		return 0, err
	}
	return s.messages.UnreadCount(roomID, userID, participant.LastRead)
}

func (s *ChatService) CreateRoom(room domain.Room) (domain.Room, error) {
	return s.rooms.Create(room)
}

// DeleteRoom removes a room and everything hanging off it. The cascade is
// explicit because badger has no foreign keys: messages and participants
// first, the room record last, so a crash in between leaves no orphaned
// room pointing at deleted children.
func (s *ChatService) DeleteRoom(roomID domain.RoomID) error {
	if err := s.messages.DeleteRoomMessages(roomID); err != nil {
		return fmt.Errorf("cascade messages of room %s: %w", roomID, err)
	}
	if err := s.participants.DeleteRoomParticipants(roomID); err != nil {
		return fmt.Errorf("cascade participants of room %s: %w", roomID, err)
	}
	return s.rooms.Delete(roomID)
}
