package e2e

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/url"
	"time"

	"chat-hub/auth"
	"chat-hub/domain"
	"chat-hub/gateway"
	"chat-hub/repositories"
	"chat-hub/runtime"
	"chat-hub/services"

	"github.com/dgraph-io/badger/v4"
	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/suite"
)

// BaseWebsocketSuite boots a full in-process instance (badger on a temp
// dir, hub, services, gateway) on a loopback port and talks to it over
// real websocket connections, the way an external client would.
type BaseWebsocketSuite struct {
	suite.Suite
	Config Config

	Chat          *services.ChatService
	Hub           *runtime.Hub
	Notifications repositories.INotificationRepository

	db     *badger.DB
	app    *fiber.App
	tokens *auth.TokenManager
	addr   string
}

// Frame is the union of every outbound event shape the gateway emits.
type Frame struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	MessageID string `json:"message_id"`
	User      string `json:"user"`
	IsTyping  bool   `json:"is_typing"`
	Error     string `json:"error"`
}

// SetupSuite loads the environment configuration and starts the instance.
func (s *BaseWebsocketSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)

	s.db, err = badger.Open(badger.DefaultOptions(s.T().TempDir()).WithLoggingLevel(badger.ERROR))
	s.Require().NoError(err)

	logger := slog.Default()
	rooms := repositories.NewRoomRepository(s.db, logger)
	messages := repositories.NewMessageRepository(s.db, logger, nil)
	participants := repositories.NewParticipantRepository(s.db, logger)
	s.Notifications = repositories.NewNotificationRepository(s.db, logger, nil)

	s.Hub = runtime.NewHub(logger, time.Second)
	s.Chat = services.NewChatService(logger, rooms, messages, participants,
		s.Hub, services.NewNotifier(s.Notifications, logger))

	s.tokens = auth.NewTokenManager(s.Config.JWTSecret, time.Hour)
	s.app = gateway.NewRouter(logger, gateway.NewGateway(logger, s.Chat, 16), s.tokens)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	s.Require().NoError(err)
	s.addr = listener.Addr().String()
	go func() {
		_ = s.app.Listener(listener)
	}()
}

func (s *BaseWebsocketSuite) TearDownSuite() {
	if s.app != nil {
		_ = s.app.Shutdown()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// Dial opens a websocket connection into a room, authenticated as the
// given user through a freshly signed token.
func (s *BaseWebsocketSuite) Dial(user string, room domain.RoomID) *websocket.Conn {
	token, err := s.tokens.Generate(user, user)
	s.Require().NoError(err)

	target := url.URL{
		Scheme:   "ws",
		Host:     s.addr,
		Path:     "/ws/" + string(room),
		RawQuery: "token=" + url.QueryEscape(token),
	}
	conn, _, err := websocket.DefaultDialer.Dial(target.String(), nil)
	s.Require().NoError(err, "Failed to connect to gateway at "+s.addr)
	return conn
}

// ReadFrame blocks for the next event frame, bounded by the configured
// read timeout.
func (s *BaseWebsocketSuite) ReadFrame(conn *websocket.Conn) Frame {
	s.Require().NoError(conn.SetReadDeadline(time.Now().Add(s.Config.ReadTimeout)))
	_, payload, err := conn.ReadMessage()
	s.Require().NoError(err)

	if s.Config.DebugJSON {
		s.T().Log("FRAME:", string(payload))
	}

	var frame Frame
	s.Require().NoError(json.Unmarshal(payload, &frame))
	return frame
}

// WaitForSubscribers waits until the room's live subscriber set reaches
// the expected size. Joining happens server-side after the upgrade
// handshake returns, so tests must not race it.
func (s *BaseWebsocketSuite) WaitForSubscribers(room domain.RoomID, want int) {
	s.Require().Eventually(func() bool {
		return s.Hub.SubscriberCount(room) == want
	}, 3*time.Second, 20*time.Millisecond, "expected %d live sessions in room %s", want, room)
}
