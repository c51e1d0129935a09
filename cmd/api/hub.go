package main

import (
	"sync"

	"go.uber.org/zap"
)

// EventSender is the minimal interface the hub needs from a connection:
// the ability to push one outbound event to the connected client.
type EventSender interface {
	Send(event any) error
}

// PresenceHub tracks which users currently have a live connection.
// It maps user ids to at most one connection handle each: a new
// connection for the same user replaces the previous handle
// (last-connect-wins), so there is no multi-device fan-out.
//
// The hub is the only shared mutable structure between connection
// goroutines; all access goes through the mutex here and is never
// exposed to callers.
type PresenceHub struct {
	mu     sync.RWMutex
	conns  map[string]EventSender
	logger *zap.SugaredLogger
}

// NewPresenceHub creates a new hub instance.
func NewPresenceHub(logger *zap.SugaredLogger) *PresenceHub {
	return &PresenceHub{
		conns:  make(map[string]EventSender),
		logger: logger,
	}
}

// Register inserts or replaces the live handle for userID and returns the
// handle it replaced, if any. The caller owns the returned handle; the
// hub never closes connections it evicts this way.
func (h *PresenceHub) Register(userID string, conn EventSender) EventSender {
	h.mu.Lock()
	defer h.mu.Unlock()

	prev := h.conns[userID]
	h.conns[userID] = conn
	return prev
}

// Unregister removes the entry for userID, but only if it still refers to
// the given handle. This makes a replaced session's deferred teardown a
// no-op instead of evicting its successor. Returns whether an entry was
// actually removed (i.e. the user went offline).
func (h *PresenceHub) Unregister(userID string, conn EventSender) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cur, ok := h.conns[userID]; ok && cur == conn {
		delete(h.conns, userID)
		return true
	}
	return false
}

// IsOnline reports whether the user currently has a live handle.
func (h *PresenceHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.conns[userID]
	return ok
}

// OnlineUsers returns the ids of all currently connected users.
func (h *PresenceHub) OnlineUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make([]string, 0, len(h.conns))
	for id := range h.conns {
		users = append(users, id)
	}
	return users
}

// Send attempts best-effort delivery of an event to the user's live
// handle. Offline users are silently skipped. A transport failure is
// treated as an implicit disconnect: the broken handle is removed from
// the hub and the error is logged, never surfaced to the caller —
// persistence of whatever prompted the send has already happened
// independently.
func (h *PresenceHub) Send(userID string, event any) {
	h.mu.RLock()
	conn, ok := h.conns[userID]
	h.mu.RUnlock()

	if !ok {
		return
	}

	if err := conn.Send(event); err != nil {
		h.logger.Warnw("delivery failed, dropping connection", "user_id", userID, "error", err)
		h.Unregister(userID, conn)
	}
}
