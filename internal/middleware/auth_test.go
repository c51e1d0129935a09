package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/bapful/chat-server/internal/auth"
)

func TestJWTAuth(t *testing.T) {
	jwtMgr := auth.NewJWTManager("test-secret", time.Hour)
	userID := bson.NewObjectID()
	token, _, err := jwtMgr.GenerateToken(userID, "auth@example.com")
	if err != nil {
		t.Fatalf("GenerateToken failed: %v", err)
	}

	app := fiber.New()
	app.Get("/private", JWTAuth(jwtMgr), func(c *fiber.Ctx) error {
		claims, ok := ClaimsFromCtx(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(claims.UserID)
	})

	get := func(authHeader string) int {
		req := httptest.NewRequest("GET", "/private", nil)
		if authHeader != "" {
			req.Header.Set("Authorization", authHeader)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test failed: %v", err)
		}
		return resp.StatusCode
	}

	if code := get(""); code != fiber.StatusUnauthorized {
		t.Fatalf("missing header should be 401, got %d", code)
	}
	if code := get("Bearer not-a-token"); code != fiber.StatusUnauthorized {
		t.Fatalf("garbage token should be 401, got %d", code)
	}
	if code := get("Bearer " + token); code != fiber.StatusOK {
		t.Fatalf("valid token should be 200, got %d", code)
	}
}
