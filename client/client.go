package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/fasthttp/websocket"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress string `env:"CHAT_SERVER_ADDR,default=localhost:8080"`
	RoomID        string `env:"CHAT_ROOM_ID,required=true"`
	Token         string `env:"CHAT_TOKEN,required=true"`
	LogLevel      string `env:"LOG_LEVEL,required=true"`
}

// Wire shapes of the gateway's JSON events. Kept local on purpose so the
// client exercises the contract the way an external consumer would.
type outboundEvent struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type inboundEvent struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
	IsTyping  bool   `json:"is_typing"`
	Error     string `json:"error"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v", err)
	}
	os.Exit(code)
}

// run handles the websocket client lifecycle, configuration loading, and the
// send/receive loops. Typed lines go out as chat messages; everything the
// room broadcasts is printed.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Dial the chat gateway.
	target := url.URL{
		Scheme:   "ws",
		Host:     config.ServerAddress,
		Path:     "/ws/" + config.RoomID,
		RawQuery: "token=" + url.QueryEscape(config.Token),
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to gateway at %s: %w", config.ServerAddress, err)
	}
	// Defer ensures the connection is closed even if a loop fails later.
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	log.Info(">>> Connected! Listening room (Ctrl+C to quit)...",
		"address", config.ServerAddress, "room_id", config.RoomID)

	// 4. Sender loop: one stdin line, one chat message.
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			payload, err := json.Marshal(outboundEvent{Type: "chat_message", Message: line})
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Error("Send failed", "error", err)
				return
			}
		}
	}()

	// 5. Close the socket when a signal arrives so ReadMessage unblocks.
	go func() {
		<-ctx.Done()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	// 6. Receive loop. Runs until the user quits or the server closes.
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			// Normal exit if the user triggered a shutdown.
			if ctx.Err() != nil {
				log.Info("Stopping client...")
				return exitOK, nil
			}
			return exitRuntime, fmt.Errorf("connection error: %w", err)
		}

		var e inboundEvent
		if err := json.Unmarshal(payload, &e); err != nil {
			log.Warn("Unreadable event", "error", err)
			continue
		}
		switch e.Type {
		case "chat_message":
			at := e.Timestamp
			if parsed, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil {
				at = parsed.Local().Format(time.TimeOnly)
			}
			log.Info(fmt.Sprintf("[%s] %s: %s", at, e.Sender, e.Message))
		case "typing":
			if e.IsTyping {
				log.Info(fmt.Sprintf("%s is typing...", e.User))
			}
		case "error":
			log.Warn("Server refused an event", "error", e.Error)
		}
	}
}
