//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IMessageRepository interface {
	Append(room domain.RoomID, sender, content string) (domain.Message, error)
	GetMessages(room domain.RoomID, cursor *string) ([]domain.Message, *string, error)
	MarkReadThrough(room domain.RoomID, user string, cutoff time.Time) (int, error)
	UnreadCount(room domain.RoomID, user string, since *time.Time) (int, error)
	DeleteRoomMessages(room domain.RoomID) error
}

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int

	// Per-room sequencing point: appends to the same room are serialized
	// just enough to hand out strictly increasing timestamps. Appends to
	// different rooms only contend on this map lookup.
	mu       sync.Mutex
	lastNano map[domain.RoomID]int64
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) *MessageRepository {
	return &MessageRepository{
		db:            db,
		log:           log,
		limitMessages: limitMessages,
		lastNano:      make(map[domain.RoomID]int64),
	}
}

type diskMessage struct {
	ID      uuid.UUID `json:"id"`
	Room    string    `json:"room"`
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	At      int64     `json:"at"`
	IsRead  bool      `json:"is_read"`
}

// messageKey formats "msg:{room_id}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector should two
//     messages ever share a timestamp.
func messageKey(room domain.RoomID, nano int64, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", room, nano, id))
}

func messagePrefix(room domain.RoomID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", room))
}

// nextNano assigns the ordering key for a new message in a room.
// The clock never repeats or goes backward within a room, even when two
// appends land on the same nanosecond.
func (m *MessageRepository) nextNano(room domain.RoomID) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	nano := time.Now().UTC().UnixNano()
	if last := m.lastNano[room]; nano <= last {
		nano = last + 1
	}
	m.lastNano[room] = nano
	return nano
}

// Append durably persists a message with a server-assigned timestamp
// strictly after every previously persisted message in the room, and
// returns the created message so the caller can broadcast its identifier.
func (m *MessageRepository) Append(room domain.RoomID, sender, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, errors.ErrEmptyContent
	}
	if room == "" || sender == "" {
		return domain.Message{}, errors.ErrMalformedEvent
	}

	nano := m.nextNano(room)
	message := domain.Message{
		ID:        uuid.New(),
		Room:      room,
		Sender:    sender,
		Content:   content,
		CreatedAt: time.Unix(0, nano).UTC(),
	}

	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return domain.Message{}, err
	}
	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(room, nano, message.ID), bytes)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("append to room %s: %w", room, err)
	}
	return message, nil
}

// GetMessages retrieves a room's history newest first using a prefix scan.
// Thanks to the padded timestamp in the key, messages are naturally sorted
// by time. It stops collecting once the configured limitMessages is reached
// and returns an opaque cursor for the next page.
func (m *MessageRepository) GetMessages(room domain.RoomID, cursor *string) ([]domain.Message, *string, error) {
	var rawMessages [][]byte
	var lastKey string
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(room)
		prefixLen := len(prefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			// Seek past the newest possible key, then walk backward.
			seekKey = append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		default:
			seekKey = append(append([]byte{}, prefix...), []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if m.limitMessages != nil && len(rawMessages) == *m.limitMessages {
				m.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *m.limitMessages))
				break
			}
			item := it.Item()
			// Memorize cursor part of the actual key
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				rawMessages = append(rawMessages, append([]byte{}, value...))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	var messages []domain.Message
	for _, raw := range rawMessages {
		var dm diskMessage
		if err = json.Unmarshal(raw, &dm); err != nil {
			return nil, nil, err
		}
		messages = append(messages, toMessage(dm))
	}
	return messages, lo.ToPtr(lastKey), nil
}

// MarkReadThrough flips is_read on every message in the room authored by
// someone other than user with a timestamp at or before cutoff. Idempotent
// and monotonic: already-read messages are never unread. Returns the number
// of messages updated.
func (m *MessageRepository) MarkReadThrough(room domain.RoomID, user string, cutoff time.Time) (int, error) {
	cutoffNano := cutoff.UTC().UnixNano()
	updated := 0
	err := updateWithRetry(m.db, func(txn *badger.Txn) error {
		updated = 0
		prefix := messagePrefix(room)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var dm diskMessage
			err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &dm)
			})
			if err != nil {
				return err
			}
			if dm.At > cutoffNano {
				// Keys are time ordered, nothing further qualifies.
				return nil
			}
			if dm.IsRead || dm.Sender == user {
				continue
			}
			dm.IsRead = true
			bytes, err := json.Marshal(dm)
			if err != nil {
				return err
			}
			if err := txn.Set(append([]byte{}, item.Key()...), bytes); err != nil {
				return err
			}
			updated++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("mark read through in room %s: %w", room, err)
	}
	return updated, nil
}

// UnreadCount counts messages authored by others after the given cursor.
// A nil cursor means the user has read nothing yet.
func (m *MessageRepository) UnreadCount(room domain.RoomID, user string, since *time.Time) (int, error) {
	var sinceNano int64
	if since != nil {
		sinceNano = since.UTC().UnixNano()
	}
	count := 0
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(room)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var dm diskMessage
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &dm)
			})
			if err != nil {
				return err
			}
			if dm.Sender != user && dm.At > sinceNano {
				count++
			}
		}
		return nil
	})
	return count, err
}

// DeleteRoomMessages removes the whole message log of a room. Invoked by
// the room registry's explicit cascade; badger has no foreign keys.
func (m *MessageRepository) DeleteRoomMessages(room domain.RoomID) error {
	return m.db.Update(func(txn *badger.Txn) error {
		prefix := messagePrefix(room)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		it := txn.NewIterator(options)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, key := range keys {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func fromMessage(message domain.Message) diskMessage {
	return diskMessage{
		ID:      message.ID,
		Room:    string(message.Room),
		Sender:  message.Sender,
		Content: message.Content,
		At:      message.CreatedAt.UnixNano(),
		IsRead:  message.IsRead,
	}
}

func toMessage(dm diskMessage) domain.Message {
	return domain.Message{
		ID:        dm.ID,
		Room:      domain.RoomID(dm.Room),
		Sender:    dm.Sender,
		Content:   dm.Content,
		CreatedAt: time.Unix(0, dm.At).UTC(),
		IsRead:    dm.IsRead,
	}
}
