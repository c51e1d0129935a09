package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bapful/chat-server/internal/auth"
	"github.com/bapful/chat-server/internal/config"
	"github.com/bapful/chat-server/internal/data"
	"github.com/bapful/chat-server/internal/db"
	"github.com/bapful/chat-server/internal/middleware"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zl, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	logger := zl.Sugar()

	ctx := context.Background()

	// Initialize database
	dbClient, err := db.New(ctx, cfg.MongoURI)
	if err != nil {
		logger.Fatalw("failed to connect to DB", "error", err)
	}
	defer func() {
		_ = dbClient.Close(context.Background())
	}()

	// Ensure indexes exist; the chats pair-key index in particular is
	// required for correctness, not just speed.
	if err := dbClient.CreateIndexes(ctx); err != nil {
		logger.Fatalw("failed to create indexes", "error", err)
	}

	// Create stores
	users := data.NewUsersStore(dbClient.UsersCollection())
	chats := data.NewChatsStore(dbClient.ChatsCollection(), dbClient.ParticipantsCollection())
	msgs := data.NewMessagesStore(dbClient.MessagesCollection())

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.JWTTTL)

	// Rate limiter for register/login (small burst allows a couple of
	// quick retries).
	limiterStore := middleware.NewLimiterStore(cfg.RateLimitRPM, 3, 1*time.Minute)
	defer limiterStore.Stop()

	hub := NewPresenceHub(logger)
	delivery := NewDelivery(hub, chats, logger)

	srv := newServer(users, chats, msgs, jwtMgr, hub, delivery, limiterStore, logger, cfg)
	app := srv.app()

	errs := make(chan error, 1)
	go func() {
		logger.Infow("server listening", "port", cfg.Port)
		errs <- app.Listen(":" + cfg.Port)
	}()

	// Graceful shutdown on SIGINT/SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errs:
		logger.Fatalw("server exit", "error", err)
	case sig := <-stop:
		logger.Infow("shutting down", "signal", sig.String())
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warnw("shutdown error", "error", err)
	}
}
