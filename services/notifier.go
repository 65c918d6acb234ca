package services

import (
	"log/slog"
	"time"

	"chat-hub/domain"
	"chat-hub/repositories"
)

// Notifier is the in-process notification dispatcher. It only creates
// records; email/push delivery consumes them elsewhere.
type Notifier struct {
	notifications repositories.INotificationRepository
	log           *slog.Logger
}

func NewNotifier(notifications repositories.INotificationRepository, log *slog.Logger) *Notifier {
	return &Notifier{notifications: notifications, log: log}
}

func (n *Notifier) CreateChatMessageNotification(recipient, sender string, room domain.RoomID) (domain.Notification, error) {
	notification := domain.NewChatMessageNotification(recipient, sender, room, time.Now().UTC())
	if err := n.notifications.Store(notification); err != nil {
		return domain.Notification{}, err
	}
	return notification, nil
}
