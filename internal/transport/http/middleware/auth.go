package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/adscript/backend/internal/config"
	"github.com/adscript/backend/pkg/utils/keygen"
	"github.com/gofiber/fiber/v2"
)

// AdminAuth guards the task API with auth.admin_api_key. An empty key leaves
// the API open.
func AdminAuth(cfg *config.Config) fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := cfg.Auth.AdminAPIKey
		if apiKey == "" {
			return c.Next()
		}

		headerToken := c.Get("X-Admin-Token")
		if headerToken == "" {
			headerToken = BearerToken(c)
		}

		if headerToken == "" || subtle.ConstantTimeCompare(keygen.Digest(headerToken), keygen.Digest(apiKey)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "unauthorized",
			})
		}

		return c.Next()
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(c *fiber.Ctx) string {
	auth := c.Get(fiber.HeaderAuthorization)
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return strings.TrimSpace(auth[len(prefix):])
	}
	return ""
}
