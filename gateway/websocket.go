package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/errors"
	"chat-hub/services"
	"chat-hub/sink"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second
	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
	// Maximum inbound event size in bytes.
	maxMessageSize = 4096
)

// Gateway owns the per-connection protocol state machine:
// Connecting -> Joined -> Closed. Joined loops on inbound events;
// Closed is absorbing and always unsubscribes, whatever killed the
// connection.
type Gateway struct {
	log                  *slog.Logger
	chat                 services.IChatService
	connectionBufferSize int
}

func NewGateway(log *slog.Logger, chat services.IChatService, connectionBufferSize int) *Gateway {
	return &Gateway{log: log, chat: chat, connectionBufferSize: connectionBufferSize}
}

// Handle runs one connection from accept to close. It blocks until the
// client goes away or the socket dies.
//
// Once the write loop starts, it is the only goroutine allowed to write
// to the socket; the connection supports a single concurrent writer.
// The read loop hands rejections to it through the errs channel instead
// of writing them itself.
func (g *Gateway) Handle(conn *websocket.Conn) {
	roomID := domain.RoomID(conn.Params("roomID"))
	userID, _ := conn.Locals(localUserID).(string)
	displayName, _ := conn.Locals(localDisplayName).(string)
	if userID == "" {
		_ = conn.WriteJSON(OutboundError{Type: "error", Error: errors.ErrMissingIdentity.Error()})
		_ = conn.Close()
		return
	}
	user := domain.User{ID: userID, Name: displayName}

	ctx := context.Background()
	sessionID := contract.SessionID(uuid.NewString())
	sessionSink := sink.NewSessionSink(g.log, g.connectionBufferSize)

	// Connecting: membership is validated before the session ever joins
	// the room's group. Forbidden and NotFound stop here.
	room, err := g.chat.Join(ctx, userID, roomID, sessionID, sessionSink)
	if err != nil {
		g.log.Warn("Connection refused",
			"user_id", userID, "room_id", string(roomID), "error", err)
		_ = conn.WriteJSON(OutboundError{Type: "error", Error: err.Error()})
		_ = conn.Close()
		return
	}
	// Closed: unsubscribe runs unconditionally, also when readLoop exits
	// through a panic in the websocket library or a half-dead socket.
	defer g.chat.Leave(roomID, sessionID)

	g.log.Info("Client joined",
		"user_id", userID, "room_id", string(roomID), "room", room.DisplayName())

	done := make(chan struct{})
	writerDone := make(chan struct{})
	errs := make(chan OutboundError, g.connectionBufferSize)
	go g.writeLoop(conn, sessionSink, errs, done, writerDone, userID)

	g.readLoop(ctx, conn, roomID, user, errs, writerDone)
	close(done)

	g.log.Info("Client left", "user_id", userID, "room_id", string(roomID))
}

// readLoop is the Joined self-loop: decode one inbound event, dispatch,
// repeat. Malformed or unknown events are dropped without surfacing
// anything to other participants. It never writes to the socket itself;
// rejections travel through errs to the write loop.
func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, roomID domain.RoomID,
	user domain.User, errs chan<- OutboundError, writerDone <-chan struct{}) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Warn("Read failed", "user_id", user.ID, "error", err)
			}
			return
		}

		inbound, err := DecodeInbound(data)
		if err != nil {
			g.log.Debug("Dropping inbound event", "user_id", user.ID, "error", err)
			continue
		}

		switch evt := inbound.(type) {
		case ChatMessageIn:
			if _, err := g.chat.PostMessage(ctx, roomID, user, evt.Message); err != nil {
				// Rejection goes to the sender only; the room never
				// sees a message that was not persisted.
				select {
				case errs <- OutboundError{Type: "error", Error: err.Error()}:
				case <-writerDone:
					// Writer gone, the connection is tearing down.
					return
				}
			}
		case TypingIn:
			g.chat.Typing(ctx, roomID, user, evt.IsTyping)
		default:
			g.log.Debug(fmt.Sprintf("No handler for inbound event %T", evt))
		}
	}
}

// writeLoop is the connection's single writer: it drains the session
// sink and the rejection channel toward the socket and keeps the
// connection alive with pings. A write error closes the socket, which
// unblocks readLoop and tears the whole session down.
func (g *Gateway) writeLoop(conn *websocket.Conn, sessionSink *sink.SessionSink,
	errs <-chan OutboundError, done <-chan struct{}, writerDone chan<- struct{}, userID string) {
	defer close(writerDone)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case evt := <-sessionSink.Events:
			outbound, ok := ToOutbound(evt)
			if !ok {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(outbound); err != nil {
				g.log.Warn("Write failed, closing connection", "user_id", userID, "error", err)
				_ = conn.Close()
				return
			}
		case rejection := <-errs:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(rejection); err != nil {
				g.log.Warn("Write failed, closing connection", "user_id", userID, "error", err)
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = conn.Close()
				return
			}
		case <-done:
			return
		}
	}
}
