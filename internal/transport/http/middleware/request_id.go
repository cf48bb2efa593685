package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type requestIDKey struct{}

const requestIDLocal = "request_id"

// RequestID reads the correlation id from header, or generates one, and
// exposes it on the response, c.Locals and the user context.
func RequestID(header string) fiber.Handler {
	if header == "" {
		header = fiber.HeaderXRequestID
	}
	return func(c *fiber.Ctx) error {
		reqID := c.Get(header)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.New().String()
		}

		c.Locals(requestIDLocal, reqID)
		c.SetUserContext(context.WithValue(c.UserContext(), requestIDKey{}, reqID))
		c.Set(header, reqID)
		return c.Next()
	}
}

// GetRequestID returns the id set by RequestID, or "".
func GetRequestID(c *fiber.Ctx) string {
	if v, ok := c.Locals(requestIDLocal).(string); ok {
		return v
	}
	return ""
}

// RequestIDFromContext returns the id carried by ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
