package http

import "github.com/gofiber/fiber/v2"

type Handler interface {
	Handle(ctx *fiber.Ctx) error
}

type HandlerTransport interface {
	GetTransport() HandlerTransport
}

type HandlerTransportDTO struct {
	PrintProxyHandler  Handler
	StatusProxyHandler Handler
	GetVersionHandler  Handler
}

func (t *HandlerTransportDTO) GetTransport() HandlerTransport {
	return t
}
