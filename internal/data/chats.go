package data

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/bapful/chat-server/internal/normalize"
)

// ErrChatNotFound is returned by Find when no chat pairs the two users.
var ErrChatNotFound = errors.New("chat not found")

// ChatsStore resolves and persists dyadic chats and their membership rows.
type ChatsStore struct {
	chats        *mongo.Collection
	participants *mongo.Collection
}

// NewChatsStore returns a ChatsStore over the chats and chat_participants
// collections.
func NewChatsStore(chats, participants *mongo.Collection) *ChatsStore {
	return &ChatsStore{chats: chats, participants: participants}
}

// Find returns the chat pairing the two users, or ErrChatNotFound.
// Lookup is by the normalized pair key, so argument order doesn't matter.
func (s *ChatsStore) Find(ctx context.Context, userA, userB bson.ObjectID) (*Chat, error) {
	var chat Chat
	pairKey := normalize.ChatPairKey(userA.Hex(), userB.Hex())
	err := s.chats.FindOne(ctx, bson.M{"pair_key": pairKey}).Decode(&chat)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	return &chat, nil
}

// GetOrCreate returns the one chat pairing the two users, creating it
// (plus its two participant rows) if it doesn't exist yet.
//
// Two concurrent calls for the same pair may both miss the lookup and
// both attempt the insert; the unique index on pair_key lets exactly one
// insert through. The loser sees a duplicate-key error and falls back to
// reading the winner's chat, so neither caller ever gets an error for
// this race.
func (s *ChatsStore) GetOrCreate(ctx context.Context, userA, userB bson.ObjectID) (*Chat, error) {
	chat, err := s.Find(ctx, userA, userB)
	if err == nil {
		return chat, nil
	}
	if err != ErrChatNotFound {
		return nil, err
	}

	pairKey := normalize.ChatPairKey(userA.Hex(), userB.Hex())
	newChat := &Chat{
		PairKey:   pairKey,
		CreatedAt: time.Now(),
	}

	result, err := s.chats.InsertOne(ctx, newChat)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Lost the creation race; the other caller's chat is the chat.
			return s.Find(ctx, userA, userB)
		}
		return nil, err
	}
	newChat.ID = result.InsertedID.(bson.ObjectID)

	// Creation winner writes exactly two membership rows. A duplicate-key
	// error here means the rows already exist (e.g. a retried call), which
	// is fine — the unique (chat_id, user_id) index keeps the set exact.
	now := time.Now()
	rows := []interface{}{
		&Participant{ChatID: newChat.ID, UserID: userA, CreatedAt: now},
		&Participant{ChatID: newChat.ID, UserID: userB, CreatedAt: now},
	}
	if _, err := s.participants.InsertMany(ctx, rows); err != nil && !mongo.IsDuplicateKeyError(err) {
		return nil, err
	}

	return newChat, nil
}

// Participants returns the membership rows of a chat.
func (s *ChatsStore) Participants(ctx context.Context, chatID bson.ObjectID) ([]*Participant, error) {
	cursor, err := s.participants.Find(ctx, bson.M{"chat_id": chatID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []*Participant
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Memberships returns all participant rows for the given user, one per
// chat the user belongs to.
func (s *ChatsStore) Memberships(ctx context.Context, userID bson.ObjectID) ([]*Participant, error) {
	cursor, err := s.participants.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []*Participant
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// OtherParticipants returns the participant rows in the given chats that
// belong to users other than exclude. For dyadic chats this is the "other
// side" of each chat.
func (s *ChatsStore) OtherParticipants(ctx context.Context, chatIDs []bson.ObjectID, exclude bson.ObjectID) ([]*Participant, error) {
	if len(chatIDs) == 0 {
		return nil, nil
	}

	filter := bson.M{
		"chat_id": bson.M{"$in": chatIDs},
		"user_id": bson.M{"$ne": exclude},
	}
	cursor, err := s.participants.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []*Participant
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ContactIDs returns the deduplicated set of users who share at least one
// chat with the given user. Status broadcasts fan out to exactly this set,
// recomputed from the store each time — there is no cached contact list.
func (s *ChatsStore) ContactIDs(ctx context.Context, userID bson.ObjectID) ([]bson.ObjectID, error) {
	memberships, err := s.Memberships(ctx, userID)
	if err != nil {
		return nil, err
	}

	chatIDs := make([]bson.ObjectID, 0, len(memberships))
	for _, m := range memberships {
		chatIDs = append(chatIDs, m.ChatID)
	}

	others, err := s.OtherParticipants(ctx, chatIDs, userID)
	if err != nil {
		return nil, err
	}

	seen := make(map[bson.ObjectID]bool, len(others))
	var contacts []bson.ObjectID
	for _, p := range others {
		if !seen[p.UserID] {
			seen[p.UserID] = true
			contacts = append(contacts, p.UserID)
		}
	}
	return contacts, nil
}
