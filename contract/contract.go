//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-hub/domain"
	"chat-hub/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself.
// Can be silly, focused.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives fanned-out domain events for one consumer.
// Implementations must not block indefinitely; the hub bounds delivery
// with the context it passes in.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// SessionID identifies one live connection's subscription, independent
// of the user identity behind it. A user may hold several sessions.
type SessionID string

// IHub routes events to the sessions currently subscribed to a room.
// Subscribe and Unsubscribe are idempotent; Publish is FIFO per room.
type IHub interface {
	Subscribe(roomID domain.RoomID, sessionID SessionID, sink EventSink)
	Unsubscribe(roomID domain.RoomID, sessionID SessionID)
	Publish(ctx context.Context, roomID domain.RoomID, e event.DomainEvent)
}

// INotifier is the consumed notification dispatcher boundary: it creates
// one record per (message, other participant). Delivery is external.
type INotifier interface {
	CreateChatMessageNotification(recipient, sender string, room domain.RoomID) (domain.Notification, error)
}
