package data

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// User maps to the users collection (id, name, email, password hash, timestamps)
type User struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	Name      string        `bson:"name"`
	Email     string        `bson:"email"`
	Password  string        `bson:"password"`
	CreatedAt time.Time     `bson:"created_at"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

// Chat maps to the chats collection. PairKey is the normalized (sorted)
// pair of participant user ids; a unique index on it enforces that no two
// chats ever share the same participant pair.
type Chat struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	PairKey   string        `bson:"pair_key"`
	CreatedAt time.Time     `bson:"created_at"`
}

// Participant maps to the chat_participants collection: membership of one
// user in one chat. Every chat has exactly two of these rows.
type Participant struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	ChatID    bson.ObjectID `bson:"chat_id"`
	UserID    bson.ObjectID `bson:"user_id"`
	CreatedAt time.Time     `bson:"created_at"`
}

// Message maps to the chat_messages collection. Messages are immutable
// once created; CreatedAt assigns both display order and delivery order.
type Message struct {
	ID        bson.ObjectID `bson:"_id,omitempty"`
	ChatID    bson.ObjectID `bson:"chat_id"`
	SenderID  bson.ObjectID `bson:"sender_id"`
	Body      string        `bson:"message"`
	CreatedAt time.Time     `bson:"created_at"`
}
