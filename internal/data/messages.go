package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MessagesStore provides message database operations.
type MessagesStore struct {
	coll *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using the given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll}
}

// Save inserts a message document and returns the saved record.
// CreatedAt is assigned server-side; it is both the display order for
// history and the delivery order for live push.
func (m *MessagesStore) Save(ctx context.Context, chatID, senderID bson.ObjectID, body string) (*Message, error) {
	msg := &Message{
		ChatID:    chatID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: time.Now(),
	}

	result, err := m.coll.InsertOne(ctx, msg)
	if err != nil {
		return nil, err
	}

	// Extract MongoDB's auto-generated _id; clients see it as message_id.
	msg.ID = result.InsertedID.(bson.ObjectID)
	return msg, nil
}

// History returns one page of a chat's messages, newest first, plus the
// total message count so the caller can compute has_more.
func (m *MessagesStore) History(ctx context.Context, chatID bson.ObjectID, limit, offset int64) ([]*Message, int64, error) {
	filter := bson.M{"chat_id": chatID}

	total, err := m.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	// Newest first; _id breaks ties when two messages share a millisecond.
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(offset).
		SetLimit(limit)

	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var messages []*Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// LastMessages returns the most recent message of each of the given chats,
// keyed by chat id. Chats with no messages yet are absent from the map.
func (m *MessagesStore) LastMessages(ctx context.Context, chatIDs []bson.ObjectID) (map[bson.ObjectID]*Message, error) {
	last := make(map[bson.ObjectID]*Message, len(chatIDs))
	if len(chatIDs) == 0 {
		return last, nil
	}

	// Aggregation pipeline: filter to the chats of interest, sort newest
	// first, then keep the first (= newest) message per chat.
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "chat_id", Value: bson.D{{Key: "$in", Value: chatIDs}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$chat_id"},
			{Key: "message_id", Value: bson.D{{Key: "$first", Value: "$_id"}}},
			{Key: "sender_id", Value: bson.D{{Key: "$first", Value: "$sender_id"}}},
			{Key: "message", Value: bson.D{{Key: "$first", Value: "$message"}}},
			{Key: "created_at", Value: bson.D{{Key: "$first", Value: "$created_at"}}},
		}}},
	}

	cursor, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ChatID    bson.ObjectID `bson:"_id"`
		MessageID bson.ObjectID `bson:"message_id"`
		SenderID  bson.ObjectID `bson:"sender_id"`
		Body      string        `bson:"message"`
		CreatedAt time.Time     `bson:"created_at"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	for _, r := range rows {
		last[r.ChatID] = &Message{
			ID:        r.MessageID,
			ChatID:    r.ChatID,
			SenderID:  r.SenderID,
			Body:      r.Body,
			CreatedAt: r.CreatedAt,
		}
	}
	return last, nil
}
