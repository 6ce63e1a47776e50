package middleware

import (
	"context"

	"github.com/NeuralTrust/PrintGate/pkg/common"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type requestIDMiddleware struct{}

func NewRequestIDMiddleware() Middleware {
	return &requestIDMiddleware{}
}

// Middleware keeps a caller supplied X-Request-ID and mints one otherwise.
func (m *requestIDMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Get(common.RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		c.Locals(string(common.RequestIDContextKey), id)
		c.SetUserContext(context.WithValue(c.UserContext(), common.RequestIDContextKey, id))
		c.Set(common.RequestIDHeader, id)
		return c.Next()
	}
}
