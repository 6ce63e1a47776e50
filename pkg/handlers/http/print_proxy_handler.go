package http

import (
	"fmt"
	"strconv"

	"github.com/NeuralTrust/PrintGate/pkg/common"
	"github.com/NeuralTrust/PrintGate/pkg/config"
	domain "github.com/NeuralTrust/PrintGate/pkg/domain/errors"
	"github.com/NeuralTrust/PrintGate/pkg/infra/httpx"
	"github.com/NeuralTrust/PrintGate/pkg/infra/printer"
	"github.com/NeuralTrust/PrintGate/pkg/infra/prometheus"
	"github.com/NeuralTrust/PrintGate/pkg/infra/turnstile"
	"github.com/NeuralTrust/PrintGate/pkg/ratelimit"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type PrintProxyHandlerDeps struct {
	Logger      *logrus.Logger
	Config      config.ProxyConfig
	TokenHeader string
	Verifier    turnstile.Verifier
	Printer     printer.Client
	// Limiter is optional; nil disables server-side throttling.
	Limiter        ratelimit.Limiter
	MetricsEnabled bool
}

type printProxyHandler struct {
	*BaseHandler
	tokenHeader string
	verifier    turnstile.Verifier
	printer     printer.Client
	limiter     ratelimit.Limiter
	metrics     bool
}

func NewPrintProxyHandler(deps PrintProxyHandlerDeps) Handler {
	tokenHeader := deps.TokenHeader
	if tokenHeader == "" {
		tokenHeader = config.DefaultTokenHeader
	}
	return &printProxyHandler{
		BaseHandler: NewBaseHandler(deps.Logger, deps.Config),
		tokenHeader: tokenHeader,
		verifier:    deps.Verifier,
		printer:     deps.Printer,
		limiter:     deps.Limiter,
		metrics:     deps.MetricsEnabled,
	}
}

// Handle @Summary Print a drawing
// @Description Verifies the Turnstile token and streams the multipart job to the printer service
// @Tags Print
// @Accept multipart/form-data
// @Produce plain
// @Param cf-turnstile-response header string true "Turnstile token"
// @Success 200 {string} string "Printer service response, relayed verbatim"
// @Failure 400 {string} string "Missing Content-Type or token"
// @Failure 403 {string} string "Turnstile verification failed"
// @Failure 413 {string} string "Print job larger than the body limit"
// @Failure 429 {string} string "Rate limited"
// @Failure 502 {string} string "Printer service unreachable"
// @Failure 504 {string} string "Printer service timeout"
// @Router /print-proxy [post]
func (h *printProxyHandler) Handle(c *fiber.Ctx) error {
	if err := h.process(c); err != nil {
		return h.HandleErrorResponse(c, err)
	}
	return nil
}

func (h *printProxyHandler) process(c *fiber.Ctx) error {
	if err := h.RequireMethod(c, fiber.MethodPost); err != nil {
		return err
	}
	if err := h.RequireUpstream(); err != nil {
		return err
	}
	if h.cfg.TurnstileSecret == "" {
		return h.misconfigured(config.TurnstileSecretEnv)
	}

	contentType := c.Get(fiber.HeaderContentType)
	if contentType == "" {
		return domain.NewProxyError(fiber.StatusBadRequest, "Missing Content-Type", domain.ErrMissingContentType)
	}
	token := c.Get(h.tokenHeader)
	if token == "" {
		return domain.NewProxyError(fiber.StatusBadRequest, "Missing Turnstile token", domain.ErrMissingToken)
	}
	// Streamed bodies bypass the server's own limit.
	contentLength := declaredContentLength(c)
	if h.cfg.MaxBodySize > 0 && contentLength > h.cfg.MaxBodySize {
		return payloadTooLarge(domain.ErrBodyTooLarge)
	}

	ctx := c.UserContext()
	ip := clientIP(c)
	log := h.requestLogger(c).WithField("client_ip", ip)

	if h.limiter != nil {
		if err := h.throttle(c, ip, log); err != nil {
			return err
		}
	}

	outcome, err := h.verifier.Verify(ctx, turnstile.VerifyRequest{
		Secret:   h.cfg.TurnstileSecret,
		Token:    token,
		RemoteIP: ip,
	})
	if err != nil {
		h.countVerification(prometheus.OutcomeError)
		log.WithError(err).Error("turnstile verification unavailable")
		return domain.NewProxyError(fiber.StatusBadGateway, "Bad gateway: verification service unreachable", err)
	}
	if !outcome.Success {
		h.countVerification(prometheus.OutcomeRejected)
		log.WithField("error_codes", outcome.ErrorCodes).Warn("turnstile verification rejected")
		return domain.NewProxyError(fiber.StatusForbidden, "Turnstile verification failed", domain.ErrVerificationFailed)
	}
	h.countVerification(prometheus.OutcomeSuccess)

	body := limitBody(requestBody(c), h.cfg.MaxBodySize)
	resp, err := h.printer.Print(ctx, printer.Endpoint{
		URL:     h.cfg.UpstreamURL + h.cfg.PrintPath,
		APIKey:  h.cfg.APIKey,
		Timeout: h.cfg.PrintTimeout,
	}, printer.PrintRequest{
		ContentType:   contentType,
		ContentLength: contentLength,
		Body:          body,
	})
	if err != nil {
		if body.Exceeded() {
			log.WithField("max_body_size", h.cfg.MaxBodySize).Warn("print job exceeded body limit")
			return payloadTooLarge(err)
		}
		log.WithError(err).Error("error proxying to printer")
		return h.UpstreamError(err,
			"Upstream timeout: printer tunnel not responding",
			"Bad gateway: failed to reach printer service",
		)
	}

	log.WithField("upstream_status", resp.StatusCode).Info("print job relayed")
	return h.HandleUpstreamResponse(c, resp)
}

// throttle fails open: a Redis outage must not take printing down with it.
func (h *printProxyHandler) throttle(c *fiber.Ctx, ip string, log *logrus.Entry) error {
	decision, err := h.limiter.Allow(c.UserContext(), common.PrintRateLimitScope, httpx.ClientKey(ip))
	if err != nil {
		log.WithError(err).Warn("rate limiter unavailable, allowing request")
		return nil
	}

	c.Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
	c.Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))
	if decision.Allowed {
		return nil
	}

	if h.metrics {
		prometheus.RateLimited.Inc()
	}
	retryAfter := decision.RetryAfterSeconds()
	log.WithField("retry_after", retryAfter).Info("print request rate limited")
	return domain.NewProxyError(
		fiber.StatusTooManyRequests,
		fmt.Sprintf("Too Many Requests: try again in %d seconds", retryAfter),
		domain.ErrRateLimited,
	).WithHeader(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
}

func (h *printProxyHandler) countVerification(outcome string) {
	if h.metrics {
		prometheus.TurnstileVerifications.WithLabelValues(outcome).Inc()
	}
}
