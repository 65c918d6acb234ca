package sink

import (
	"context"
	"log/slog"

	"chat-hub/domain/event"
)

// SessionSink bridges the hub's fan-out to one live connection. The hub
// calls Consume; the connection's write loop drains Events.
type SessionSink struct {
	Events chan event.DomainEvent
	log    *slog.Logger
}

func NewSessionSink(log *slog.Logger, bufferSize int) *SessionSink {
	return &SessionSink{
		Events: make(chan event.DomainEvent, bufferSize),
		log:    log,
	}
}

// Consume is called by the hub during fan-out. It redirects the event to
// the connection's channel. When the buffer is full the send blocks until
// the delivery context expires, which is the backpressure bound for a
// slow or unresponsive client.
func (s *SessionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case s.Events <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
