package middleware

import (
	"github.com/NeuralTrust/PrintGate/pkg/common"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type panicRecoverMiddleware struct {
	logger *logrus.Logger
}

func NewPanicRecoverMiddleware(logger *logrus.Logger) Middleware {
	return &panicRecoverMiddleware{logger: logger}
}

func (m *panicRecoverMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				fields := logrus.Fields{
					"error": r,
					"path":  c.Path(),
				}
				if id, ok := c.Locals(string(common.RequestIDContextKey)).(string); ok {
					fields["request_id"] = id
				}
				m.logger.WithFields(fields).Error("HTTP server panic recovered")

				c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)
				err = c.Status(fiber.StatusInternalServerError).SendString("Internal Server Error")
			}
		}()

		return c.Next()
	}
}
