package middleware

import (
	"strings"

	"github.com/eunoia-atlas/backend/internal/auth"
	"github.com/eunoia-atlas/backend/internal/config"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// AdminMiddleware guards the payout and charity management surface.
func AdminMiddleware(cfg *config.Config, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "missing authorization header"})
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenStr == authHeader {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid authorization format"})
		}

		if _, err := auth.ParseAdminToken(cfg.AdminJWTSecret, tokenStr); err != nil {
			log.Debug("admin token rejected", zap.Error(err))
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid or expired token"})
		}

		return c.Next()
	}
}
