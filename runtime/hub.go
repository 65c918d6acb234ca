// Package runtime wires live sessions to rooms and moves events between
// them. It orchestrates the system without containing domain rules.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/event"
)

// roomGroup is the live subscriber set of one room. Each room carries its
// own lock so that join/leave/publish on unrelated rooms never contend.
type roomGroup struct {
	mu       sync.Mutex
	sessions map[contract.SessionID]contract.EventSink
}

// Hub routes outbound events to exactly the sessions currently subscribed
// to a room. It holds no persisted state: a session vanishes on disconnect
// regardless of cause.
//
// Publish holds the room lock for the duration of the fan-out. That gives
// two guarantees the gateway relies on: events published to one room reach
// every subscriber in publish-call order (FIFO per room), and once
// Unsubscribe returns, no further publish can touch the removed session.
type Hub struct {
	mu              sync.RWMutex
	rooms           map[domain.RoomID]*roomGroup
	log             *slog.Logger
	deliveryTimeout time.Duration
}

func NewHub(log *slog.Logger, deliveryTimeout time.Duration) *Hub {
	return &Hub{
		rooms:           make(map[domain.RoomID]*roomGroup),
		log:             log,
		deliveryTimeout: deliveryTimeout,
	}
}

// Subscribe adds a session to the room's subscriber set. Idempotent:
// re-subscribing the same session simply replaces its sink.
func (h *Hub) Subscribe(roomID domain.RoomID, sessionID contract.SessionID, sink contract.EventSink) {
	for {
		group := h.group(roomID, true)
		group.mu.Lock()
		group.sessions[sessionID] = sink
		group.mu.Unlock()

		// A concurrent Unsubscribe may have evicted this group between
		// lookup and insert; retry until the insert lands in the group
		// actually installed for the room.
		h.mu.RLock()
		installed := h.rooms[roomID] == group
		h.mu.RUnlock()
		if installed {
			return
		}
	}
}

// Unsubscribe removes a session from the room. Safe to call for sessions
// that never subscribed, and safe to race with an in-flight Publish: the
// session either receives that event or it does not, never twice.
func (h *Hub) Unsubscribe(roomID domain.RoomID, sessionID contract.SessionID) {
	group := h.group(roomID, false)
	if group == nil {
		return
	}
	group.mu.Lock()
	delete(group.sessions, sessionID)
	empty := len(group.sessions) == 0
	group.mu.Unlock()

	if !empty {
		return
	}
	// Drop the room entry when nobody is left, so the map does not grow
	// with every room ever visited. Re-check under the write lock: a new
	// subscriber may have arrived in between.
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.rooms[roomID]; ok && current == group {
		group.mu.Lock()
		if len(group.sessions) == 0 {
			delete(h.rooms, roomID)
		}
		group.mu.Unlock()
	}
}

// Publish delivers the event to every session currently subscribed to the
// room. Delivery to each sink is bounded by the hub's timeout; one slow or
// dead subscriber delays the room at most by that bound and never fails
// the publish for the others. The event is not persisted here.
func (h *Hub) Publish(ctx context.Context, roomID domain.RoomID, e event.DomainEvent) {
	group := h.group(roomID, false)
	if group == nil {
		return
	}
	group.mu.Lock()
	defer group.mu.Unlock()

	for sessionID, sink := range group.sessions {
		deliveryCtx, cancel := context.WithTimeout(ctx, h.deliveryTimeout)
		if err := sink.Consume(deliveryCtx, e); err != nil {
			h.log.Warn("Event delivery failed, subscriber skipped",
				"session_id", string(sessionID),
				"room_id", string(roomID),
				"error", err)
		}
		cancel()
	}
}

// SubscriberCount reports the current number of live sessions in a room.
func (h *Hub) SubscriberCount(roomID domain.RoomID) int {
	group := h.group(roomID, false)
	if group == nil {
		return 0
	}
	group.mu.Lock()
	defer group.mu.Unlock()
	return len(group.sessions)
}

func (h *Hub) group(roomID domain.RoomID, create bool) *roomGroup {
	h.mu.RLock()
	group, ok := h.rooms[roomID]
	h.mu.RUnlock()
	if ok || !create {
		return group
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if group, ok = h.rooms[roomID]; ok {
		return group
	}
	group = &roomGroup{sessions: make(map[contract.SessionID]contract.EventSink)}
	h.rooms[roomID] = group
	return group
}
