package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/bapful/chat-server/internal/auth"
)

// ClaimsKey is the Locals key the auth middleware stores verified claims under.
const ClaimsKey = "claims"

// JWTAuth returns Fiber middleware that requires a valid Bearer token and
// stores the verified claims in Locals for downstream handlers.
func JWTAuth(jwtMgr *auth.JWTManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get("Authorization")
		if header == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer"))
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		claims, err := jwtMgr.VerifyToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid token"})
		}

		c.Locals(ClaimsKey, claims)
		return c.Next()
	}
}

// ClaimsFromCtx extracts the verified claims stored by JWTAuth, if present.
func ClaimsFromCtx(c *fiber.Ctx) (*auth.Claims, bool) {
	claims, ok := c.Locals(ClaimsKey).(*auth.Claims)
	return claims, ok
}
