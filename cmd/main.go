package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chat-hub/auth"
	"chat-hub/gateway"
	"chat-hub/observability"
	"chat-hub/repositories"
	"chat-hub/runtime"
	"chat-hub/runtime/workers"
	"chat-hub/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Chat hub terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Deferred cleanup (database close) always executes, and the initialization logic stays
// testable because nothing here calls os.Exit directly.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()

	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}

	if logger.Enabled(ctx, slog.LevelDebug) {
		debugPort := 8081
		endpoint := "/inspect"
		url := fmt.Sprintf("http://localhost:%d%s", debugPort, endpoint)
		logger.Info("Debug Badger inspector available", "url", url)
		database.StartDebugServer(db, debugPort, endpoint, chatMapper)
	}

	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories, hub and services
	roomRepository := repositories.NewRoomRepository(db, logger)
	messageRepository := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	participantRepository := repositories.NewParticipantRepository(db, logger)
	notificationRepository := repositories.NewNotificationRepository(db, logger, config.LimitMessages)

	hub := runtime.NewHub(logger, config.SinkTimeout)
	notifier := services.NewNotifier(notificationRepository, logger)
	chatService := services.NewChatService(logger, roomRepository, messageRepository, participantRepository, hub, notifier)

	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	chatGateway := gateway.NewGateway(logger, chatService, config.ConnectionBufferSize)
	app := gateway.NewRouter(logger, chatGateway, tokens)

	// 4. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Error (HTTP server & supervisor)
	errChan := make(chan error, 2)

	// 5. Background workers
	monitor, err := observability.NewMonitor()
	if err != nil {
		return exitRuntime, fmt.Errorf("monitor init failed: %w", err)
	}
	sup := workers.NewSupervisor(logger).
		Add(workers.NewReporterWorker(logger, monitor, config.MetricInterval))
	go sup.Run(ctx)

	// 6. Websocket gateway
	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	go func() {
		logger.Info("Starting chat gateway", "address", address, "at", time.Now().UTC())
		if err := app.Listen(address); err != nil {
			errChan <- fmt.Errorf("gateway error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	// The execution blocks here until either a signal is received or the server crashes.
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	// Let in-flight writes finish and connections close their sessions.
	logger.Info("Shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("Gateway shutdown incomplete", "error", err)
	}
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

func chatMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)

	var record struct {
		Sender  string `json:"sender"`
		Content string `json:"content"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(val, &record); err != nil {
		row.Detail = "Error: unmarshal failed"
		return row
	}

	switch {
	case strings.HasPrefix(key, "msg:"):
		row.Type = "MSG"
		row.Detail = fmt.Sprintf("%s: %s", record.Sender, record.Content)
	case strings.HasPrefix(key, "notif:"):
		row.Type = "NOTIF"
		row.Detail = record.Message
	}
	return row
}
