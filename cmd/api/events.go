package main

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.uber.org/zap"

	"github.com/bapful/chat-server/internal/data"
)

// Outbound event wire shapes. Every event carries a "type" discriminator
// so clients can dispatch on it.

type newMessageEvent struct {
	Type      string `json:"type"` // always "new_message"
	MessageID string `json:"message_id"`
	ChatID    string `json:"chat_id"`
	SenderID  string `json:"sender_id"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

type typingEvent struct {
	Type     string `json:"type"` // always "typing"
	SenderID string `json:"sender_id"`
	IsTyping bool   `json:"is_typing"`
}

type userStatusEvent struct {
	Type      string `json:"type"` // always "user_status"
	UserID    string `json:"user_id"`
	Status    string `json:"status"` // "online" or "offline"
	Timestamp string `json:"timestamp"`
}

// contactsStore is the slice of ChatsStore the delivery engine needs to
// compute status fan-out targets.
type contactsStore interface {
	ContactIDs(ctx context.Context, userID bson.ObjectID) ([]bson.ObjectID, error)
}

// Delivery routes outbound events to online users through the hub.
// All delivery is best-effort: offline recipients are dropped silently
// and transport failures are handled inside the hub.
type Delivery struct {
	hub    *PresenceHub
	chats  contactsStore
	logger *zap.SugaredLogger
}

// NewDelivery returns a Delivery over the given hub and chat store.
func NewDelivery(hub *PresenceHub, chats contactsStore, logger *zap.SugaredLogger) *Delivery {
	return &Delivery{hub: hub, chats: chats, logger: logger}
}

// DeliverMessage pushes a persisted message to both sides of its chat:
// the sender receives it as a delivery echo, the recipient as the live
// message. Callers must only invoke this after the message is durable.
func (d *Delivery) DeliverMessage(msg *data.Message, recipientID string) {
	event := newMessageEvent{
		Type:      "new_message",
		MessageID: msg.ID.Hex(),
		ChatID:    msg.ChatID.Hex(),
		SenderID:  msg.SenderID.Hex(),
		Message:   msg.Body,
		Timestamp: msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}

	d.hub.Send(msg.SenderID.Hex(), event)
	d.hub.Send(recipientID, event)
}

// SendTyping pushes a typing indicator to the recipient only. Nothing is
// persisted; if the recipient is offline the event simply evaporates.
func (d *Delivery) SendTyping(senderID, recipientID string, isTyping bool) {
	d.hub.Send(recipientID, typingEvent{
		Type:     "typing",
		SenderID: senderID,
		IsTyping: isTyping,
	})
}

// BroadcastStatus fans a user's online/offline transition out to their
// contacts: every user sharing at least one chat with them, recomputed
// from the store at broadcast time. A store failure aborts the broadcast
// with a log line; presence changes are never an error for the session.
func (d *Delivery) BroadcastStatus(ctx context.Context, userID string, status string) {
	uid, err := bson.ObjectIDFromHex(userID)
	if err != nil {
		d.logger.Warnw("status broadcast skipped, bad user id", "user_id", userID, "error", err)
		return
	}

	contacts, err := d.chats.ContactIDs(ctx, uid)
	if err != nil {
		d.logger.Warnw("status broadcast failed to compute contacts", "user_id", userID, "error", err)
		return
	}

	event := userStatusEvent{
		Type:      "user_status",
		UserID:    userID,
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	for _, contact := range contacts {
		d.hub.Send(contact.Hex(), event)
	}
}
