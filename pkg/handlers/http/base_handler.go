package http

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"sync/atomic"

	"github.com/NeuralTrust/PrintGate/pkg/common"
	"github.com/NeuralTrust/PrintGate/pkg/config"
	domain "github.com/NeuralTrust/PrintGate/pkg/domain/errors"
	"github.com/NeuralTrust/PrintGate/pkg/infra/httpx"
	"github.com/NeuralTrust/PrintGate/pkg/infra/printer"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

const textContentType = "text/plain; charset=utf-8"

type BaseHandler struct {
	logger *logrus.Logger
	cfg    config.ProxyConfig
}

func NewBaseHandler(logger *logrus.Logger, cfg config.ProxyConfig) *BaseHandler {
	return &BaseHandler{
		logger: logger,
		cfg:    cfg,
	}
}

// HandleErrorResponse writes err as a plain-text response. Anything that is
// not a *domain.ProxyError is reported as a 500.
func (h *BaseHandler) HandleErrorResponse(c *fiber.Ctx, err error) error {
	var proxyErr *domain.ProxyError
	if !errors.As(err, &proxyErr) {
		proxyErr = domain.NewProxyError(fiber.StatusInternalServerError, "Internal Server Error", err)
	}
	for k, v := range proxyErr.Headers {
		c.Set(k, v)
	}
	c.Set(fiber.HeaderContentType, textContentType)
	return c.Status(proxyErr.StatusCode).SendString(proxyErr.Message)
}

// HandleUpstreamResponse relays the printer service status code and body
// unchanged.
func (h *BaseHandler) HandleUpstreamResponse(c *fiber.Ctx, resp *printer.Response) error {
	contentType := resp.ContentType
	if contentType == "" {
		contentType = textContentType
	}
	c.Set(fiber.HeaderContentType, contentType)
	return c.Status(resp.StatusCode).Send(resp.Body)
}

// RequireMethod rejects anything but method with 405.
func (h *BaseHandler) RequireMethod(c *fiber.Ctx, method string) error {
	if c.Method() == method {
		return nil
	}
	c.Set(fiber.HeaderAllow, method)
	return domain.NewProxyError(fiber.StatusMethodNotAllowed, "Method Not Allowed", domain.ErrMethodNotAllowed)
}

// RequireUpstream checks the settings shared by both proxies, in the order
// an operator would fix them.
func (h *BaseHandler) RequireUpstream() error {
	if h.cfg.UpstreamURL == "" {
		return h.misconfigured(config.UpstreamURLEnv)
	}
	if h.cfg.APIKey == "" {
		return h.misconfigured(config.UpstreamAPIKeyEnv)
	}
	return nil
}

func (h *BaseHandler) misconfigured(variable string) error {
	err := domain.NewMissingConfigError(variable)
	h.logger.WithField("variable", variable).Error("proxy is missing required configuration")
	return domain.NewProxyError(fiber.StatusInternalServerError, err.Error(), err)
}

// UpstreamError maps a printer client failure to 504 for timeouts and 502
// for everything else.
func (h *BaseHandler) UpstreamError(err error, timeoutMessage, failureMessage string) error {
	if errors.Is(err, domain.ErrUpstreamTimeout) {
		return domain.NewProxyError(fiber.StatusGatewayTimeout, timeoutMessage, err)
	}
	return domain.NewProxyError(fiber.StatusBadGateway, failureMessage, err)
}

func (h *BaseHandler) requestLogger(c *fiber.Ctx) *logrus.Entry {
	fields := logrus.Fields{
		"method": c.Method(),
		"path":   c.Path(),
	}
	if id, ok := c.Locals(string(common.RequestIDContextKey)).(string); ok && id != "" {
		fields["request_id"] = id
	}
	return h.logger.WithFields(fields)
}

func clientIP(c *fiber.Ctx) string {
	if ip, ok := c.Locals(string(common.ClientIPContextKey)).(string); ok && ip != "" {
		return ip
	}
	return httpx.ClientIP(func(key string) string { return c.Get(key) }, c.Context().RemoteAddr().String())
}

// requestBody returns the inbound body without buffering it when the server
// streams request bodies.
func requestBody(c *fiber.Ctx) io.Reader {
	if stream := c.Context().RequestBodyStream(); stream != nil {
		return stream
	}
	return bytes.NewReader(c.Body())
}

// declaredContentLength returns the Content-Length the caller sent, or -1.
func declaredContentLength(c *fiber.Ctx) int64 {
	raw := c.Get(fiber.HeaderContentLength)
	if raw == "" {
		return -1
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// limitedBody fails the read that takes the body past limit, so an oversized
// job aborts the upstream request instead of arriving truncated. A limit of
// zero or less disables the cap.
type limitedBody struct {
	r        io.Reader
	limit    int64
	read     int64
	exceeded atomic.Bool
}

func limitBody(r io.Reader, limit int64) *limitedBody {
	return &limitedBody{r: r, limit: limit}
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if b.limit <= 0 {
		return b.r.Read(p)
	}
	if b.exceeded.Load() {
		return 0, domain.ErrBodyTooLarge
	}
	if room := b.limit - b.read + 1; int64(len(p)) > room {
		p = p[:room]
	}
	n, err := b.r.Read(p)
	b.read += int64(n)
	if b.read > b.limit {
		b.exceeded.Store(true)
		return n - int(b.read-b.limit), domain.ErrBodyTooLarge
	}
	return n, err
}

// Exceeded reports whether the caller sent more than limit bytes.
func (b *limitedBody) Exceeded() bool {
	return b.exceeded.Load()
}

func payloadTooLarge(err error) error {
	return domain.NewProxyError(fiber.StatusRequestEntityTooLarge, "Payload Too Large", err)
}
