package gateway

import (
	"log/slog"

	"chat-hub/auth"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

const (
	localUserID      = "user_id"
	localDisplayName = "display_name"
)

// NewRouter wires the websocket endpoint. The identity comes from the
// token the external auth layer issued; everything else about accounts
// is out of scope here.
func NewRouter(log *slog.Logger, gateway *Gateway, tokens *auth.TokenManager) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		token := c.Query("token")
		if token == "" {
			return fiber.ErrUnauthorized
		}
		claims, err := tokens.Validate(token)
		if err != nil {
			log.Warn("Token rejected", "error", err)
			return fiber.ErrUnauthorized
		}
		c.Locals(localUserID, claims.UserID)
		c.Locals(localDisplayName, claims.DisplayName)
		return c.Next()
	})

	app.Get("/ws/:roomID", websocket.New(func(conn *websocket.Conn) {
		gateway.Handle(conn)
	}))

	return app
}
