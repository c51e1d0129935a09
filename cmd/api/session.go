package main

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bapful/chat-server/internal/auth"
)

// sessionState tracks where a connection is in its lifecycle. Transitions
// are strictly forward: Connecting → Authenticated → Active → Closed, with
// a direct Connecting → Closed jump when the handshake token is invalid.
// A closed session is never restarted.
type sessionState int

const (
	stateConnecting sessionState = iota
	stateAuthenticated
	stateActive
	stateClosed
)

// inboundKind is the closed set of inbound event variants. Anything the
// parser doesn't recognize is kindUnknown and gets ignored explicitly.
type inboundKind int

const (
	kindUnknown inboundKind = iota
	kindSendMessage
	kindTyping
)

type inboundEvent struct {
	kind        inboundKind
	recipientID string
	body        string
	isTyping    bool
}

// parseInbound decodes one client frame into an inboundEvent. Malformed
// JSON and unrecognized types both come back as kindUnknown — the session
// ignores them rather than erroring the connection.
func parseInbound(raw []byte) inboundEvent {
	var env struct {
		Type        string `json:"type"`
		RecipientID string `json:"recipient_id"`
		Message     string `json:"message"`
		IsTyping    bool   `json:"is_typing"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return inboundEvent{kind: kindUnknown}
	}

	switch env.Type {
	case "send_message":
		return inboundEvent{kind: kindSendMessage, recipientID: env.RecipientID, body: env.Message}
	case "typing":
		return inboundEvent{kind: kindTyping, recipientID: env.RecipientID, isTyping: env.IsTyping}
	default:
		return inboundEvent{kind: kindUnknown}
	}
}

// wsClient wraps a websocket connection as an EventSender. The mutex
// serializes writes: the session goroutine and hub deliveries from other
// sessions may push events concurrently, and the underlying connection
// allows only one writer at a time.
type wsClient struct {
	mu            sync.Mutex
	conn          *websocket.Conn
	writeDeadline time.Duration
}

func newWSClient(conn *websocket.Conn, writeDeadline time.Duration) *wsClient {
	return &wsClient{conn: conn, writeDeadline: writeDeadline}
}

func (c *wsClient) Send(event any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeDeadline))
	return c.conn.WriteJSON(event)
}

// session owns one websocket connection and the identity resolved for it.
// Each connection runs in its own goroutine; sessions never talk to each
// other directly, only through the hub and the stores. Inbound events are
// processed strictly in receipt order — the read loop handles one event
// fully before reading the next.
type session struct {
	srv    *Server
	conn   *websocket.Conn
	state  sessionState
	userID string
	sender bson.ObjectID
	client *wsClient
}

// handleWS is the websocket handler mounted behind the upgrade middleware.
// It drives the session through its whole lifecycle and guarantees
// teardown (presence unregistration + offline broadcast) on every exit
// path via defer, not per-return bookkeeping.
func (s *Server) handleWS(conn *websocket.Conn) {
	sess := &session{srv: s, conn: conn, state: stateConnecting}

	// The upgrade middleware verified the handshake token and stashed the
	// claims; their absence means the token was invalid and the connection
	// must be refused with a distinguishable close code, never registered.
	claims, ok := conn.Locals(localsClaimsKey).(*auth.Claims)
	if !ok {
		sess.refuse("invalid token")
		return
	}

	sender, err := bson.ObjectIDFromHex(claims.UserID)
	if err != nil {
		sess.refuse("invalid token")
		return
	}

	sess.state = stateAuthenticated
	sess.userID = claims.UserID
	sess.sender = sender
	sess.client = newWSClient(conn, s.cfg.WSWriteDeadline)

	sess.run()
}

// refuse closes a never-authenticated connection with a policy-violation
// close frame. Auth failures are not server errors; log at info only.
func (sess *session) refuse(reason string) {
	sess.state = stateClosed
	deadline := time.Now().Add(time.Second)
	_ = sess.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline)
	_ = sess.conn.Close()
	sess.srv.logger.Infow("connection refused", "reason", reason)
}

func (sess *session) run() {
	srv := sess.srv

	if prev := srv.hub.Register(sess.userID, sess.client); prev != nil {
		// Last-connect-wins: the old handle stays open until its own read
		// loop notices, but it no longer receives deliveries.
		srv.logger.Debugw("replaced existing connection", "user_id", sess.userID)
	}

	defer func() {
		sess.state = stateClosed
		// Release the handle before telling the directory the user is
		// offline; only broadcast if this session's handle was still the
		// registered one (a replaced session must not announce offline
		// for its successor).
		_ = sess.conn.Close()
		if srv.hub.Unregister(sess.userID, sess.client) {
			srv.delivery.BroadcastStatus(context.Background(), sess.userID, "offline")
		}
		srv.logger.Infow("user disconnected", "user_id", sess.userID)
	}()

	// The online broadcast is fire-and-forget; entering Active doesn't
	// wait for it.
	go srv.delivery.BroadcastStatus(context.Background(), sess.userID, "online")

	sess.state = stateActive
	srv.logger.Infow("user connected", "user_id", sess.userID)

	sess.conn.SetReadLimit(srv.cfg.WSReadLimit)
	for {
		msgType, raw, err := sess.conn.ReadMessage()
		if err != nil {
			// Normal close, client drop, or transport failure — all of
			// them just end the session.
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		sess.handleInbound(context.Background(), raw)
	}
}

// handleInbound dispatches one inbound event. Per the error taxonomy,
// nothing a client sends here can fail the connection: bad input is
// dropped, store failures abandon the in-flight event.
func (sess *session) handleInbound(ctx context.Context, raw []byte) {
	ev := parseInbound(raw)
	switch ev.kind {
	case kindSendMessage:
		sess.handleSendMessage(ctx, ev)
	case kindTyping:
		sess.handleTyping(ev)
	case kindUnknown:
		sess.srv.logger.Debugw("ignoring unrecognized event", "user_id", sess.userID)
	}
}

// handleSendMessage persists a direct message and then delivers it to
// both parties. Ordering is strict: no event is pushed to anyone until
// the message is durable, and a failed write pushes nothing at all.
func (sess *session) handleSendMessage(ctx context.Context, ev inboundEvent) {
	srv := sess.srv

	body := strings.TrimSpace(ev.body)
	if body == "" || ev.recipientID == "" {
		return
	}
	recipient, err := bson.ObjectIDFromHex(ev.recipientID)
	if err != nil {
		srv.logger.Debugw("ignoring message with malformed recipient", "user_id", sess.userID)
		return
	}

	chat, err := srv.chats.GetOrCreate(ctx, sess.sender, recipient)
	if err != nil {
		srv.logger.Errorw("failed to resolve chat", "user_id", sess.userID, "error", err)
		return
	}

	msg, err := srv.msgs.Save(ctx, chat.ID, sess.sender, body)
	if err != nil {
		srv.logger.Errorw("failed to save message", "user_id", sess.userID, "chat_id", chat.ID.Hex(), "error", err)
		return
	}

	srv.delivery.DeliverMessage(msg, ev.recipientID)
}

// handleTyping forwards a typing indicator to the recipient only.
func (sess *session) handleTyping(ev inboundEvent) {
	if ev.recipientID == "" {
		return
	}
	sess.srv.delivery.SendTyping(sess.userID, ev.recipientID, ev.isTyping)
}
