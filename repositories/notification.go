//go:generate go run go.uber.org/mock/mockgen -source=notification.go -destination=../mocks/mock_notification_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"chat-hub/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

type INotificationRepository interface {
	Store(notification domain.Notification) error
	ListForRecipient(recipient string, cursor *string) ([]domain.Notification, *string, error)
	MarkRead(recipient string, id uuid.UUID) error
	UnreadCount(recipient string) (int, error)
}

// NotificationRepository persists notification records, newest first per
// recipient. It only owns the records; delivery is someone else's problem.
type NotificationRepository struct {
	db    *badger.DB
	log   *slog.Logger
	limit *int
}

func NewNotificationRepository(db *badger.DB, log *slog.Logger, limit *int) *NotificationRepository {
	return &NotificationRepository{db: db, log: log, limit: limit}
}

type diskNotification struct {
	ID        uuid.UUID `json:"id"`
	Recipient string    `json:"recipient"`
	Sender    string    `json:"sender"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	Room      string    `json:"room"`
	CreatedAt int64     `json:"created_at"`
	IsRead    bool      `json:"is_read"`
}

func notificationKey(recipient string, nano int64, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("notif:%s:%019d:%s", recipient, nano, id))
}

func notificationPrefix(recipient string) []byte {
	return []byte(fmt.Sprintf("notif:%s:", recipient))
}

func (n *NotificationRepository) Store(notification domain.Notification) error {
	bytes, err := json.Marshal(fromNotification(notification))
	if err != nil {
		return err
	}
	return n.db.Update(func(txn *badger.Txn) error {
		return txn.Set(notificationKey(notification.Recipient,
			notification.CreatedAt.UnixNano(), notification.ID), bytes)
	})
}

// ListForRecipient pages through a recipient's notifications newest first,
// mirroring the message history cursor scheme.
func (n *NotificationRepository) ListForRecipient(recipient string, cursor *string) ([]domain.Notification, *string, error) {
	var raw [][]byte
	var lastKey string
	err := n.db.View(func(txn *badger.Txn) error {
		prefix := notificationPrefix(recipient)
		prefixLen := len(prefix)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		it := txn.NewIterator(options)
		defer it.Close()

		var seekKey []byte
		switch cursor {
		case nil:
			seekKey = append(append([]byte{}, prefix...), []byte("9999999999999999999")...)
		default:
			seekKey = append(append([]byte{}, prefix...), []byte(*cursor)...)
		}

		it.Seek(seekKey)

		if cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if n.limit != nil && len(raw) == *n.limit {
				break
			}
			item := it.Item()
			lastKey = string(item.Key()[prefixLen:])
			err := item.Value(func(value []byte) error {
				raw = append(raw, append([]byte{}, value...))
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

	var notifications []domain.Notification
	for _, bytes := range raw {
		var dn diskNotification
		if err = json.Unmarshal(bytes, &dn); err != nil {
			return nil, nil, err
		}
		notifications = append(notifications, toNotification(dn))
	}
	return notifications, lo.ToPtr(lastKey), nil
}

// MarkRead flips the read flag of one notification. Unknown ids are a
// no-op, matching the idempotent read-state semantics everywhere else.
func (n *NotificationRepository) MarkRead(recipient string, id uuid.UUID) error {
	return updateWithRetry(n.db, func(txn *badger.Txn) error {
		prefix := notificationPrefix(recipient)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var dn diskNotification
			err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &dn)
			})
			if err != nil {
				return err
			}
			if dn.ID != id || dn.IsRead {
				continue
			}
			dn.IsRead = true
			bytes, err := json.Marshal(dn)
			if err != nil {
				return err
			}
			return txn.Set(item.KeyCopy(nil), bytes)
		}
		return nil
	})
}

func (n *NotificationRepository) UnreadCount(recipient string) (int, error) {
	count := 0
	err := n.db.View(func(txn *badger.Txn) error {
		prefix := notificationPrefix(recipient)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var dn diskNotification
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &dn)
			})
			if err != nil {
				return err
			}
			if !dn.IsRead {
				count++
			}
		}
		return nil
	})
	return count, err
}

func fromNotification(notification domain.Notification) diskNotification {
	return diskNotification{
		ID:        notification.ID,
		Recipient: notification.Recipient,
		Sender:    notification.Sender,
		Type:      string(notification.Type),
		Message:   notification.Message,
		Room:      string(notification.Room),
		CreatedAt: notification.CreatedAt.UnixNano(),
		IsRead:    notification.IsRead,
	}
}

func toNotification(dn diskNotification) domain.Notification {
	return domain.Notification{
		ID:        dn.ID,
		Recipient: dn.Recipient,
		Sender:    dn.Sender,
		Type:      domain.NotificationType(dn.Type),
		Message:   dn.Message,
		Room:      domain.RoomID(dn.Room),
		CreatedAt: time.Unix(0, dn.CreatedAt).UTC(),
		IsRead:    dn.IsRead,
	}
}
