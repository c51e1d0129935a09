package main

import (
	"sort"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bapful/chat-server/internal/auth"
	"github.com/bapful/chat-server/internal/data"
	"github.com/bapful/chat-server/internal/middleware"
)

// userResponse is the public view of a user (no password hash).
type userResponse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

type historyMessage struct {
	MessageID    string `json:"message_id"`
	SenderID     string `json:"sender_id"`
	SenderName   string `json:"sender_name"`
	Message      string `json:"message"`
	Timestamp    string `json:"timestamp"`
	IsOwnMessage bool   `json:"is_own_message"`
}

type historyResponse struct {
	ChatID     *string          `json:"chat_id"`
	Messages   []historyMessage `json:"messages"`
	TotalCount int64            `json:"total_count"`
	HasMore    bool             `json:"has_more"`
}

type lastMessagePreview struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	SenderID  string `json:"sender_id"`
}

type contactResponse struct {
	UserID      string              `json:"user_id"`
	Name        string              `json:"name"`
	Email       string              `json:"email"`
	IsOnline    bool                `json:"is_online"`
	ChatID      string              `json:"chat_id"`
	LastMessage *lastMessagePreview `json:"last_message"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// handleRegister creates a user account and returns a token for it.
func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Email) == "" || req.Password == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name, email and password are required"})
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Errorw("failed to hash password", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to register user"})
	}

	user, err := s.users.CreateUser(c.Context(), strings.TrimSpace(req.Name), req.Email, hashed)
	if err != nil {
		if err == data.ErrUserExists {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Email already registered"})
		}
		s.logger.Errorw("create user failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to register user"})
	}

	token, _, err := s.auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		s.logger.Errorw("failed to generate token", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to register user"})
	}

	return c.JSON(authResponse{
		Token: token,
		User:  userResponse{ID: user.ID.Hex(), Name: user.Name, Email: user.Email},
	})
}

// handleLogin authenticates a user and returns a token.
func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	user, err := s.users.GetUserByEmail(c.Context(), req.Email)
	if err != nil {
		// Same response as a wrong password; don't leak which emails exist.
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Incorrect email or password"})
	}
	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Incorrect email or password"})
	}

	token, _, err := s.auth.GenerateToken(user.ID, user.Email)
	if err != nil {
		s.logger.Errorw("failed to generate token", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "authentication failed"})
	}

	return c.JSON(authResponse{
		Token: token,
		User:  userResponse{ID: user.ID.Hex(), Name: user.Name, Email: user.Email},
	})
}

// handleHistory returns one page of the conversation between the caller
// and another user, newest first. No chat yet is an empty result, not a
// 404; a chat the caller isn't part of is a 403.
func (s *Server) handleHistory(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromCtx(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing auth claims"})
	}
	caller, err := bson.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}

	other, err := bson.ObjectIDFromHex(c.Params("otherUserId"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid user id"})
	}

	limit := int64(c.QueryInt("limit", 50))
	offset := int64(c.QueryInt("offset", 0))
	if limit < 1 || limit > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "limit must be between 1 and 100"})
	}
	if offset < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "offset must be >= 0"})
	}

	chat, err := s.chats.Find(c.Context(), caller, other)
	if err != nil {
		if err == data.ErrChatNotFound {
			return c.JSON(historyResponse{Messages: []historyMessage{}})
		}
		s.logger.Errorw("failed to find chat", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch chat history"})
	}

	// Verify the membership set is exactly {caller, other} before handing
	// out messages.
	participants, err := s.chats.Participants(c.Context(), chat.ID)
	if err != nil {
		s.logger.Errorw("failed to load participants", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch chat history"})
	}
	members := make(map[bson.ObjectID]bool, len(participants))
	for _, p := range participants {
		members[p.UserID] = true
	}
	if len(members) != 2 || !members[caller] || !members[other] {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "Not authorized to access this chat"})
	}

	msgs, total, err := s.msgs.History(c.Context(), chat.ID, limit, offset)
	if err != nil {
		s.logger.Errorw("failed to fetch history", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch chat history"})
	}

	senderIDs := make([]bson.ObjectID, 0, 2)
	seen := map[bson.ObjectID]bool{}
	for _, m := range msgs {
		if !seen[m.SenderID] {
			seen[m.SenderID] = true
			senderIDs = append(senderIDs, m.SenderID)
		}
	}
	senders, err := s.users.GetUsersByIDs(c.Context(), senderIDs)
	if err != nil {
		s.logger.Errorw("failed to load senders", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch chat history"})
	}

	out := make([]historyMessage, 0, len(msgs))
	for _, m := range msgs {
		name := ""
		if u := senders[m.SenderID]; u != nil {
			name = u.Name
		}
		out = append(out, historyMessage{
			MessageID:    m.ID.Hex(),
			SenderID:     m.SenderID.Hex(),
			SenderName:   name,
			Message:      m.Body,
			Timestamp:    formatTime(m.CreatedAt),
			IsOwnMessage: m.SenderID == caller,
		})
	}

	chatID := chat.ID.Hex()
	return c.JSON(historyResponse{
		ChatID:     &chatID,
		Messages:   out,
		TotalCount: total,
		HasMore:    offset+limit < total,
	})
}

// handleContacts lists everyone the caller shares a chat with, most
// recent conversation first; contacts with no messages yet sort last.
func (s *Server) handleContacts(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromCtx(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing auth claims"})
	}
	caller, err := bson.ObjectIDFromHex(claims.UserID)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
	}

	memberships, err := s.chats.Memberships(c.Context(), caller)
	if err != nil {
		s.logger.Errorw("failed to load memberships", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch contacts"})
	}

	chatIDs := make([]bson.ObjectID, 0, len(memberships))
	for _, m := range memberships {
		chatIDs = append(chatIDs, m.ChatID)
	}

	others, err := s.chats.OtherParticipants(c.Context(), chatIDs, caller)
	if err != nil {
		s.logger.Errorw("failed to load chat partners", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch contacts"})
	}

	partnerIDs := make([]bson.ObjectID, 0, len(others))
	for _, p := range others {
		partnerIDs = append(partnerIDs, p.UserID)
	}
	partners, err := s.users.GetUsersByIDs(c.Context(), partnerIDs)
	if err != nil {
		s.logger.Errorw("failed to load contact users", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch contacts"})
	}

	lastByChat, err := s.msgs.LastMessages(c.Context(), chatIDs)
	if err != nil {
		s.logger.Errorw("failed to load last messages", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to fetch contacts"})
	}

	contacts := make([]contactResponse, 0, len(others))
	lastTimes := make(map[string]time.Time, len(others))
	for _, p := range others {
		user := partners[p.UserID]
		if user == nil {
			continue
		}
		entry := contactResponse{
			UserID:   user.ID.Hex(),
			Name:     user.Name,
			Email:    user.Email,
			IsOnline: s.hub.IsOnline(user.ID.Hex()),
			ChatID:   p.ChatID.Hex(),
		}
		if last := lastByChat[p.ChatID]; last != nil {
			entry.LastMessage = &lastMessagePreview{
				Message:   last.Body,
				Timestamp: formatTime(last.CreatedAt),
				SenderID:  last.SenderID.Hex(),
			}
			lastTimes[entry.ChatID] = last.CreatedAt
		}
		contacts = append(contacts, entry)
	}

	// Most recent conversation first; chats with no messages yet go last.
	sort.SliceStable(contacts, func(i, j int) bool {
		ti, iOK := lastTimes[contacts[i].ChatID]
		tj, jOK := lastTimes[contacts[j].ChatID]
		if iOK != jOK {
			return iOK
		}
		return ti.After(tj)
	})

	return c.JSON(contacts)
}

// handleOnlineUsers lists currently connected users, excluding the caller.
func (s *Server) handleOnlineUsers(c *fiber.Ctx) error {
	claims, ok := middleware.ClaimsFromCtx(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing auth claims"})
	}

	online := make([]string, 0)
	for _, id := range s.hub.OnlineUsers() {
		if id != claims.UserID {
			online = append(online, id)
		}
	}
	sort.Strings(online)

	return c.JSON(fiber.Map{
		"online_users": online,
		"total_online": len(online),
	})
}

// handleUserStatus reports the presence of a single user.
func (s *Server) handleUserStatus(c *fiber.Ctx) error {
	userID := c.Params("userId")
	isOnline := s.hub.IsOnline(userID)

	status := "offline"
	if isOnline {
		status = "online"
	}
	return c.JSON(fiber.Map{
		"user_id":   userID,
		"is_online": isOnline,
		"status":    status,
	})
}
