package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	CtxRequestID    = "request_id"
	headerRequestID = "X-Request-ID"
)

// RequestIDMiddleware tags every request with an id, honoring one
// supplied by the client so donation flow calls can be correlated
// across the API, worker and indexer logs.
func RequestIDMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		c.Locals(CtxRequestID, id)
		c.Set(headerRequestID, id)
		return c.Next()
	}
}
