package http

import (
	"github.com/NeuralTrust/PrintGate/pkg/config"
	"github.com/NeuralTrust/PrintGate/pkg/infra/printer"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type statusProxyHandler struct {
	*BaseHandler
	printer printer.Client
}

func NewStatusProxyHandler(logger *logrus.Logger, cfg config.ProxyConfig, printerClient printer.Client) Handler {
	return &statusProxyHandler{
		BaseHandler: NewBaseHandler(logger, cfg),
		printer:     printerClient,
	}
}

// Handle @Summary Printer status
// @Description Relays the printer service status endpoint
// @Tags Print
// @Produce plain
// @Success 200 {string} string "Printer service response, relayed verbatim"
// @Failure 502 {string} string "Printer service unreachable"
// @Failure 504 {string} string "Printer service timeout"
// @Router /status-proxy [get]
func (h *statusProxyHandler) Handle(c *fiber.Ctx) error {
	if err := h.RequireMethod(c, fiber.MethodGet); err != nil {
		return h.HandleErrorResponse(c, err)
	}
	if err := h.RequireUpstream(); err != nil {
		return h.HandleErrorResponse(c, err)
	}

	resp, err := h.printer.Status(c.UserContext(), printer.Endpoint{
		URL:     h.cfg.UpstreamURL + h.cfg.StatusPath,
		APIKey:  h.cfg.APIKey,
		Timeout: h.cfg.StatusTimeout,
	})
	if err != nil {
		h.requestLogger(c).WithError(err).Warn("printer status unavailable")
		return h.HandleErrorResponse(c, h.UpstreamError(err, "Upstream timeout", "Bad gateway"))
	}
	return h.HandleUpstreamResponse(c, resp)
}
