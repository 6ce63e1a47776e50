package router

import (
	"net/http"
	"time"

	"github.com/NeuralTrust/PrintGate/pkg/common"
	"github.com/NeuralTrust/PrintGate/pkg/config"
	handlers "github.com/NeuralTrust/PrintGate/pkg/handlers/http"
	wsHandlers "github.com/NeuralTrust/PrintGate/pkg/handlers/websocket"
	"github.com/NeuralTrust/PrintGate/pkg/middleware"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
)

type proxyRouter struct {
	middlewareTransport *middleware.Transport
	wsMiddleware        middleware.Middleware
	handlerTransport    handlers.HandlerTransport
	wsHandlerTransport  wsHandlers.HandlerTransport
	docs                config.DocsConfig
}

func NewProxyRouter(
	middlewareTransport *middleware.Transport,
	wsMiddleware middleware.Middleware,
	handlerTransport handlers.HandlerTransport,
	wsHandlerTransport wsHandlers.HandlerTransport,
	docs config.DocsConfig,
) ServerRouter {
	return &proxyRouter{
		middlewareTransport: middlewareTransport,
		wsMiddleware:        wsMiddleware,
		handlerTransport:    handlerTransport,
		wsHandlerTransport:  wsHandlerTransport,
		docs:                docs,
	}
}

func (r *proxyRouter) BuildRoutes(router *fiber.App) error {
	handlerTransport, ok := r.handlerTransport.GetTransport().(*handlers.HandlerTransportDTO)
	if !ok {
		return ErrInvalidHandlerTransport
	}

	wsHandlerTransport, ok := r.wsHandlerTransport.GetTransport().(*wsHandlers.HandlerTransportDTO)
	if !ok {
		return ErrInvalidHandlerTransport
	}

	router.Get(common.HealthPath, func(ctx *fiber.Ctx) error {
		return ctx.Status(http.StatusOK).JSON(fiber.Map{
			"status": "ok",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	router.Get(common.PingPath, func(ctx *fiber.Ctx) error {
		return ctx.Status(http.StatusOK).JSON(fiber.Map{
			"message": "pong",
		})
	})

	router.Get(common.VersionPath, handlerTransport.GetVersionHandler.Handle)

	if r.docs.Enabled {
		router.Get(common.SwaggerJSONPath, func(ctx *fiber.Ctx) error {
			return ctx.SendFile(r.docs.SpecFile)
		})
		router.Get(common.DocsPath, swagger.New(swagger.Config{
			URL: common.SwaggerJSONPath,
		}))
	}

	router.Use(r.middlewareTransport.GetMiddlewares()...)

	// All methods reach the proxies so they can answer 405 themselves.
	for _, path := range []string{common.PrintProxyPath, common.ClientPrintPath} {
		router.All(path, handlerTransport.PrintProxyHandler.Handle)
	}
	for _, path := range []string{common.StatusProxyPath, common.ClientStatusPath} {
		router.All(path, handlerTransport.StatusProxyHandler.Handle)
	}

	router.Get(common.StatusStreamPath, r.wsMiddleware.Middleware(), websocket.New(
		wsHandlerTransport.StatusStreamHandler.Handle,
		websocket.Config{
			HandshakeTimeout: 15 * time.Second,
			ReadBufferSize:   1024,
			WriteBufferSize:  1024,
		},
	))

	return nil
}
