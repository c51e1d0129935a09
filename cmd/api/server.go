package main

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/bapful/chat-server/internal/auth"
	"github.com/bapful/chat-server/internal/config"
	"github.com/bapful/chat-server/internal/data"
	"github.com/bapful/chat-server/internal/middleware"
)

// localsClaimsKey is where the websocket upgrade middleware stashes the
// verified claims for the websocket handler to pick up.
const localsClaimsKey = "ws_claims"

// Store interfaces cover exactly what the handlers and sessions consume;
// tests substitute fakes, main wires the Mongo-backed stores.

type usersStore interface {
	CreateUser(ctx context.Context, name, email, hashedPassword string) (*data.User, error)
	GetUserByEmail(ctx context.Context, email string) (*data.User, error)
	GetUserByID(ctx context.Context, id bson.ObjectID) (*data.User, error)
	GetUsersByIDs(ctx context.Context, ids []bson.ObjectID) (map[bson.ObjectID]*data.User, error)
}

type chatsStore interface {
	Find(ctx context.Context, userA, userB bson.ObjectID) (*data.Chat, error)
	GetOrCreate(ctx context.Context, userA, userB bson.ObjectID) (*data.Chat, error)
	Participants(ctx context.Context, chatID bson.ObjectID) ([]*data.Participant, error)
	Memberships(ctx context.Context, userID bson.ObjectID) ([]*data.Participant, error)
	OtherParticipants(ctx context.Context, chatIDs []bson.ObjectID, exclude bson.ObjectID) ([]*data.Participant, error)
	ContactIDs(ctx context.Context, userID bson.ObjectID) ([]bson.ObjectID, error)
}

type messagesStore interface {
	Save(ctx context.Context, chatID, senderID bson.ObjectID, body string) (*data.Message, error)
	History(ctx context.Context, chatID bson.ObjectID, limit, offset int64) ([]*data.Message, int64, error)
	LastMessages(ctx context.Context, chatIDs []bson.ObjectID) (map[bson.ObjectID]*data.Message, error)
}

// Server wires the stores, identity resolver, presence hub and delivery
// engine behind the HTTP and websocket surface.
type Server struct {
	users    usersStore
	chats    chatsStore
	msgs     messagesStore
	auth     *auth.JWTManager
	hub      *PresenceHub
	delivery *Delivery
	limiter  *middleware.LimiterStore
	logger   *zap.SugaredLogger
	cfg      *config.Config
}

// newServer returns a ready-to-use Server wired with stores and auth manager.
func newServer(users usersStore, chats chatsStore, msgs messagesStore, jwtMgr *auth.JWTManager,
	hub *PresenceHub, delivery *Delivery, limiter *middleware.LimiterStore,
	logger *zap.SugaredLogger, cfg *config.Config) *Server {
	return &Server{
		users:    users,
		chats:    chats,
		msgs:     msgs,
		auth:     jwtMgr,
		hub:      hub,
		delivery: delivery,
		limiter:  limiter,
		logger:   logger,
		cfg:      cfg,
	}
}

// app builds the Fiber application with all routes mounted.
func (s *Server) app() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Post("/auth/register", middleware.RateLimit(s.limiter), s.handleRegister)
	app.Post("/auth/login", middleware.RateLimit(s.limiter), s.handleLogin)

	chat := app.Group("/chat")
	chat.Get("/ws", s.wsUpgrade, websocket.New(s.handleWS))

	authed := chat.Group("", middleware.JWTAuth(s.auth))
	authed.Get("/history/:otherUserId", s.handleHistory)
	authed.Get("/contacts", s.handleContacts)
	authed.Get("/users/online", s.handleOnlineUsers)
	authed.Get("/status/:userId", s.handleUserStatus)

	return app
}

// wsUpgrade gates the websocket route. The handshake can't carry an
// Authorization header, so the bearer token rides in the
// Sec-WebSocket-Protocol field; it is validated here, before the upgrade,
// and echoed back as the accepted subprotocol — several client libraries
// abort the handshake when the server doesn't confirm the protocol they
// offered. Invalid tokens still upgrade but get refused with a policy
// close frame in the handler, so the client sees a distinguishable close
// reason rather than an opaque failed handshake.
func (s *Server) wsUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}

	token := c.Get("Sec-WebSocket-Protocol")
	if token != "" {
		c.Set("Sec-Websocket-Protocol", token)
		if claims, err := s.auth.VerifyToken(token); err == nil {
			c.Locals(localsClaimsKey, claims)
		}
	}
	return c.Next()
}
