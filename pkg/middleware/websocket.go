package middleware

import (
	"github.com/NeuralTrust/PrintGate/pkg/common"
	infra "github.com/NeuralTrust/PrintGate/pkg/infra/websocket"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type websocketMiddleware struct {
	logger    *logrus.Logger
	semaphore *infra.Semaphore
}

// NewWebsocketMiddleware guards the status stream: plain HTTP gets 426 and
// upgrades beyond maxConnections get 429.
func NewWebsocketMiddleware(logger *logrus.Logger, maxConnections int) Middleware {
	return &websocketMiddleware{
		logger:    logger,
		semaphore: infra.NewSemaphore(infra.WithMaxConnections(maxConnections)),
	}
}

func (m *websocketMiddleware) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		if !m.semaphore.Acquire() {
			m.logger.Warn("maximum status stream connections reached, rejecting connection")
			return fiber.ErrTooManyRequests
		}
		c.Locals(string(common.WsSemaphoreKey), m.semaphore)
		return c.Next()
	}
}
